package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
	"github.com/samber/lo"
)

const (
	timerDeadline   = "deadline"
	timerHint       = "hint"
	timerCountdown  = "countdown"
	timerNextRound  = "next_round"
	timerCloseRetry = "close_retry"
)

// DefaultMaxCloseRetries is how often a failed round close is retried
// unless EngineOptions says otherwise.
const DefaultMaxCloseRetries = 3

type EngineOptions struct {
	// TimeUnit is the length of one configured time unit (round timers,
	// countdowns, pauses). Production uses one second.
	TimeUnit time.Duration
	// StartDelay is the pause between start and the first round, in units.
	StartDelay int
	// ReadyCountdown is the auto start countdown once everyone is ready.
	ReadyCountdown int
	// MaxCloseRetries bounds how often a failed round close is retried.
	MaxCloseRetries int
	// ChatHistory is how many recent messages a joiner receives.
	ChatHistory int
}

func (o EngineOptions) withDefaults() EngineOptions {
	if o.TimeUnit <= 0 {
		o.TimeUnit = time.Second
	}
	if o.StartDelay <= 0 {
		o.StartDelay = 2
	}
	if o.ReadyCountdown <= 0 {
		o.ReadyCountdown = 5
	}
	if o.MaxCloseRetries <= 0 {
		o.MaxCloseRetries = DefaultMaxCloseRetries
	}
	if o.ChatHistory <= 0 {
		o.ChatHistory = 50
	}
	return o
}

// Engine runs every live session. Each session has its own lock; all
// operations and timer callbacks for a session hold it, so different
// sessions never contend.
type Engine struct {
	store   Store
	catalog Catalog
	bus     Publisher
	scoring *ScoringService
	metrics *Metrics
	opts    EngineOptions

	mu       sync.RWMutex
	sessions map[string]*sessionState

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEngine(store Store, catalog Catalog, bus Publisher, metrics *Metrics, opts EngineOptions) *Engine {
	opts = opts.withDefaults()
	if metrics == nil {
		metrics = NewMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    store,
		catalog:  catalog,
		bus:      bus,
		scoring:  NewScoringService(opts.TimeUnit),
		metrics:  metrics,
		opts:     opts,
		sessions: make(map[string]*sessionState),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

func (e *Engine) units(n int) time.Duration {
	return time.Duration(n) * e.opts.TimeUnit
}

type sessionState struct {
	mu           sync.Mutex
	session      *models.Session
	roster       []*models.Participant
	round        *liveRound
	timers       *timerSet
	lastActivity time.Time
	resumed      bool
	evicted      bool
}

func newSessionState(sess *models.Session) *sessionState {
	roster := make([]*models.Participant, 0, len(sess.Participants))
	for i := range sess.Participants {
		p := sess.Participants[i]
		roster = append(roster, &p)
	}
	slices.SortStableFunc(roster, func(a, b *models.Participant) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	sess.Participants = nil

	return &sessionState{
		session:      sess,
		roster:       roster,
		timers:       newTimerSet(),
		lastActivity: sess.UpdatedAt,
	}
}

func (st *sessionState) id() string {
	return st.session.ID
}

func (st *sessionState) touch() {
	st.lastActivity = time.Now()
}

func (st *sessionState) participant(id string) *models.Participant {
	p, _ := lo.Find(st.roster, func(p *models.Participant) bool { return p.ID == id })
	return p
}

func (st *sessionState) byIdentity(accountID, anonymousID *string) *models.Participant {
	p, _ := lo.Find(st.roster, func(p *models.Participant) bool {
		if accountID != nil {
			return p.AccountID != nil && *p.AccountID == *accountID
		}
		return p.AccountID == nil && p.AnonymousID != nil && anonymousID != nil && *p.AnonymousID == *anonymousID
	})
	return p
}

func (st *sessionState) remove(id string) {
	st.roster = lo.Reject(st.roster, func(p *models.Participant, _ int) bool { return p.ID == id })
}

func (st *sessionState) active() []*models.Participant {
	return lo.Filter(st.roster, func(p *models.Participant, _ int) bool { return !p.IsEliminated })
}

func (st *sessionState) isHost(participantID string) bool {
	return participantID != "" && st.session.HostParticipantID == participantID
}

func (st *sessionState) settings() Settings {
	s := st.session
	return Settings{
		Mode:               s.Mode,
		Rounds:             s.Rounds,
		RoundTimer:         s.RoundTimer,
		BetweenRoundsTimer: s.BetweenRoundsTimer,
		HintsEnabled:       s.HintsEnabled,
		MaxPlayers:         s.MaxPlayers,
		TargetScore:        s.TargetScore,
	}
}

func (st *sessionState) snapshot() Snapshot {
	snap := Snapshot{
		ID:                st.session.ID,
		InviteCode:        st.session.InviteCode,
		HostParticipantID: st.session.HostParticipantID,
		Status:            st.session.Status,
		CurrentRound:      st.session.CurrentRound,
		Settings:          st.settings(),
		Participants: lo.Map(st.roster, func(p *models.Participant, _ int) models.Participant {
			return *p
		}),
		CreatedAt: st.session.CreatedAt,
	}
	if lr := st.round; lr != nil && lr.phase != RoundClosed {
		view := &RoundView{
			RoundNumber: lr.model.RoundNumber,
			Item:        itemRef(lr.item),
			EndsAt:      lr.model.EndsAt,
			Answered:    lr.agg.Answered(),
		}
		if lr.hintAt != nil && lr.item != nil {
			view.Hint = lr.item.Hint
		}
		snap.Round = view
	}
	return snap
}

type Settings struct {
	Mode               string `json:"mode"`
	Rounds             int    `json:"rounds"`
	RoundTimer         int    `json:"round_timer"`
	BetweenRoundsTimer int    `json:"between_rounds_timer"`
	HintsEnabled       bool   `json:"hints_enabled"`
	MaxPlayers         int    `json:"max_players"`
	TargetScore        *int   `json:"target_score,omitempty"`
}

type RoundView struct {
	RoundNumber int       `json:"round_number"`
	Item        ItemRef   `json:"item"`
	EndsAt      time.Time `json:"ends_at"`
	Hint        string    `json:"hint,omitempty"`
	Answered    int       `json:"answered"`
}

// Snapshot is the client facing view of a session.
type Snapshot struct {
	ID                string               `json:"id"`
	InviteCode        string               `json:"invite_code"`
	HostParticipantID string               `json:"host_participant_id"`
	Status            string               `json:"status"`
	CurrentRound      int                  `json:"current_round"`
	Settings          Settings             `json:"settings"`
	Participants      []models.Participant `json:"participants"`
	Round             *RoundView           `json:"round,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

// timerSet holds the deferred callbacks of one session. Every armed timer
// carries a sequence number; a callback only runs if it still owns its slot,
// so a stopped or replaced timer that already fired is a no-op.
type timerSet struct {
	seq    uint64
	timers map[string]armedTimer
}

type armedTimer struct {
	timer *time.Timer
	seq   uint64
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]armedTimer)}
}

func (ts *timerSet) arm(kind string, d time.Duration, fire func(seq uint64)) {
	ts.stop(kind)
	ts.seq++
	seq := ts.seq
	ts.timers[kind] = armedTimer{seq: seq, timer: time.AfterFunc(d, func() { fire(seq) })}
}

func (ts *timerSet) claim(kind string, seq uint64) bool {
	at, ok := ts.timers[kind]
	if !ok || at.seq != seq {
		return false
	}
	delete(ts.timers, kind)
	return true
}

func (ts *timerSet) armed(kind string) bool {
	_, ok := ts.timers[kind]
	return ok
}

func (ts *timerSet) stop(kind string) {
	if at, ok := ts.timers[kind]; ok {
		at.timer.Stop()
		delete(ts.timers, kind)
	}
}

func (ts *timerSet) stopAll() {
	for kind := range ts.timers {
		ts.stop(kind)
	}
}

// schedule arms a session timer. fn runs under the session lock.
// Must be called with st.mu held.
func (e *Engine) schedule(st *sessionState, kind string, d time.Duration, fn func(ctx context.Context)) {
	if d < 0 {
		d = 0
	}
	st.timers.arm(kind, d, func(seq uint64) {
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.evicted || !st.timers.claim(kind, seq) || e.ctx.Err() != nil {
			return
		}
		fn(e.ctx)
	})
}

// acquire returns the session's state with its lock held, loading it from the
// store on first use.
func (e *Engine) acquire(ctx context.Context, sessionID string) (*sessionState, error) {
	for range 3 {
		e.mu.RLock()
		st := e.sessions[sessionID]
		e.mu.RUnlock()

		if st == nil {
			sess, err := e.store.GetSession(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			e.mu.Lock()
			if st = e.sessions[sessionID]; st == nil {
				st = newSessionState(sess)
				e.sessions[sessionID] = st
				e.metrics.activeSessions.Add(1)
			}
			e.mu.Unlock()
		}

		st.mu.Lock()
		if st.evicted {
			st.mu.Unlock()
			continue
		}
		if !st.resumed {
			st.resumed = true
			e.resume(ctx, st)
		}
		return st, nil
	}
	return nil, ErrSessionNotFound
}

// enter is acquire for participant driven operations; it counts as activity.
func (e *Engine) enter(ctx context.Context, sessionID string) (*sessionState, error) {
	st, err := e.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st.touch()
	return st, nil
}

// resume rebuilds the in-process round state of a session that was playing
// when it was last unloaded.
func (e *Engine) resume(ctx context.Context, st *sessionState) {
	if st.session.Status != models.SessionStatusPlaying {
		return
	}

	round, err := e.store.ActiveRound(ctx, st.id())
	if err != nil && !errors.Is(err, ErrRoundNotFound) {
		log.Printf("engine: session %s: load active round: %v", st.id(), err)
		return
	}
	if round == nil {
		e.schedule(st, timerNextRound, e.units(st.session.BetweenRoundsTimer), func(ctx context.Context) {
			e.openRound(ctx, st)
		})
		return
	}

	item, err := e.catalog.Get(ctx, round.ItemID)
	if err != nil {
		log.Printf("engine: session %s: load item %s: %v", st.id(), round.ItemID, err)
	}
	guesses, err := e.store.RoundGuesses(ctx, round.ID)
	if err != nil {
		log.Printf("engine: session %s: load guesses: %v", st.id(), err)
	}

	lr := e.newLiveRound(st, round, item)
	lr.phase = RoundActive
	complete := false
	for _, g := range guesses {
		if done, err := lr.agg.Submit(g); err == nil && done {
			complete = true
		}
	}
	st.round = lr

	budget := e.units(st.session.RoundTimer)
	if round.HintDispatched {
		at := round.StartedAt.Add(budget / 2)
		lr.hintAt = &at
	} else if st.session.HintsEnabled && item != nil && item.Hint != "" {
		e.schedule(st, timerHint, time.Until(round.StartedAt.Add(budget/2)), func(ctx context.Context) {
			e.dispatchHint(ctx, st, round.ID)
		})
	}

	wait := time.Until(round.EndsAt)
	if complete {
		wait = 0
	}
	e.schedule(st, timerDeadline, wait, func(ctx context.Context) {
		e.closeRound(ctx, st, round.ID)
	})
	log.Printf("engine: resumed round %d of session %s", round.RoundNumber, st.id())
}

func (e *Engine) publish(st *sessionState, ev Event) {
	e.bus.Publish(st.id(), ev)
}

func (e *Engine) systemMessage(ctx context.Context, st *sessionState, format string, args ...any) {
	msg := &models.ChatMessage{
		SessionID: st.id(),
		Body:      fmt.Sprintf(format, args...),
		Kind:      models.ChatKindSystem,
		CreatedAt: time.Now(),
	}
	if err := e.store.CreateChatMessage(ctx, msg); err != nil {
		log.Printf("engine: session %s: store system message: %v", st.id(), err)
		return
	}
	e.publish(st, ChatMessagePosted{Message: *msg})
}

// Evict drops a session from memory and cancels all its timers.
func (e *Engine) Evict(sessionID string) {
	e.mu.Lock()
	st := e.sessions[sessionID]
	delete(e.sessions, sessionID)
	e.mu.Unlock()
	if st == nil {
		return
	}
	e.metrics.activeSessions.Add(-1)

	st.mu.Lock()
	st.retire()
	st.mu.Unlock()
}

// retire makes every later acquire reload the session and every pending
// callback a no-op. Must be called with st.mu held.
func (st *sessionState) retire() {
	st.evicted = true
	st.timers.stopAll()
	if st.round != nil {
		st.round.agg.Release()
		st.round = nil
	}
}

// Shutdown stops every timer. Pending callbacks become no-ops.
func (e *Engine) Shutdown() {
	e.cancel()

	e.mu.RLock()
	states := lo.Values(e.sessions)
	e.mu.RUnlock()

	for _, st := range states {
		st.mu.Lock()
		st.timers.stopAll()
		st.mu.Unlock()
	}
}

// Loaded reports how many sessions are held in memory.
func (e *Engine) Loaded() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}
