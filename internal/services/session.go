package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
	"github.com/google/uuid"
)

const (
	DefaultRounds        = 5
	DefaultRoundTimer    = 30
	DefaultBetweenRounds = 5
	DefaultMaxPlayers    = 8

	inviteCodeLength   = 6
	inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type CreateSessionParams struct {
	CreatedBy          string
	Mode               string
	Rounds             int
	RoundTimer         int
	BetweenRoundsTimer int
	HintsEnabled       *bool
	MaxPlayers         int
	TargetScore        *int
}

// CreateSession opens a new lobby. Zero fields take their defaults.
func (e *Engine) CreateSession(ctx context.Context, params CreateSessionParams) (*models.Session, error) {
	session := &models.Session{
		CreatedBy:          params.CreatedBy,
		Mode:               params.Mode,
		Status:             models.SessionStatusWaiting,
		Rounds:             params.Rounds,
		RoundTimer:         params.RoundTimer,
		BetweenRoundsTimer: params.BetweenRoundsTimer,
		HintsEnabled:       true,
		MaxPlayers:         params.MaxPlayers,
		TargetScore:        params.TargetScore,
	}
	if session.Mode == "" {
		session.Mode = models.ModeClassic
	}
	if session.Rounds <= 0 {
		session.Rounds = DefaultRounds
	}
	if session.RoundTimer <= 0 {
		session.RoundTimer = DefaultRoundTimer
	}
	if session.BetweenRoundsTimer <= 0 {
		session.BetweenRoundsTimer = DefaultBetweenRounds
	}
	if session.MaxPlayers <= 0 {
		session.MaxPlayers = DefaultMaxPlayers
	}
	if params.HintsEnabled != nil {
		session.HintsEnabled = *params.HintsEnabled
	}

	for range 5 {
		session.ID = ""
		session.InviteCode = generateInviteCode()
		err := e.store.CreateSession(ctx, session)
		if errors.Is(err, ErrInviteCodeTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		e.metrics.sessionsCreated.Add(1)
		log.Printf("engine: session %s created (%s, code %s)", session.ID, session.Mode, session.InviteCode)
		return session, nil
	}
	return nil, ErrInviteCodeTaken
}

func generateInviteCode() string {
	code := make([]byte, inviteCodeLength)
	for i := range code {
		code[i] = inviteCodeAlphabet[rand.IntN(len(inviteCodeAlphabet))]
	}
	return string(code)
}

// JoinRequest identifies the joiner by AccountID when set, else AnonymousID.
type JoinRequest struct {
	SessionID   string
	AccountID   string
	AnonymousID string
	DisplayName string
	Avatar      string
}

type JoinResult struct {
	Participant models.Participant   `json:"participant"`
	Session     Snapshot             `json:"session"`
	Messages    []models.ChatMessage `json:"messages"`
	IsRejoin    bool                 `json:"is_rejoin"`
}

func (e *Engine) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	var accountID, anonymousID *string
	switch {
	case req.AccountID != "":
		accountID = &req.AccountID
	case req.AnonymousID != "":
		anonymousID = &req.AnonymousID
	default:
		return nil, ErrIdentityRequired
	}

	st, err := e.enter(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()

	if p := st.byIdentity(accountID, anonymousID); p != nil {
		return e.joinResult(ctx, st, p, true), nil
	}

	switch st.session.Status {
	case models.SessionStatusFinished:
		return nil, ErrSessionFinished
	case models.SessionStatusPlaying:
		return nil, ErrSessionInProgress
	}
	if len(st.roster) >= st.session.MaxPlayers {
		return nil, ErrSessionFull
	}

	p, created, err := e.store.CreateParticipant(ctx, &models.Participant{
		SessionID:   st.id(),
		AccountID:   accountID,
		AnonymousID: anonymousID,
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
		JoinedAt:    time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("join session: %w", err)
	}
	if !created {
		if existing := st.participant(p.ID); existing != nil {
			return e.joinResult(ctx, st, existing, true), nil
		}
		st.roster = append(st.roster, p)
		return e.joinResult(ctx, st, p, true), nil
	}

	st.roster = append(st.roster, p)
	e.metrics.participantsJoined.Add(1)
	e.cancelCountdown(st)
	e.publish(st, ParticipantJoined{Participant: *p})
	e.systemMessage(ctx, st, "%s joined", p.DisplayName)
	e.succeedHost(ctx, st)

	return e.joinResult(ctx, st, p, false), nil
}

func (e *Engine) joinResult(ctx context.Context, st *sessionState, p *models.Participant, rejoin bool) *JoinResult {
	messages, err := e.store.RecentChatMessages(ctx, st.id(), e.opts.ChatHistory)
	if err != nil {
		log.Printf("engine: session %s: load chat history: %v", st.id(), err)
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return &JoinResult{Participant: *p, Session: st.snapshot(), Messages: messages, IsRejoin: rejoin}
}

func (e *Engine) SetReady(ctx context.Context, sessionID, participantID string, ready bool) error {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()

	p := st.participant(participantID)
	if p == nil {
		return ErrParticipantNotFound
	}
	if st.session.Status != models.SessionStatusWaiting {
		return ErrSessionNotWaiting
	}

	if p.IsReady != ready {
		if err := e.store.UpdateParticipant(ctx, p.ID, map[string]any{"is_ready": ready}); err != nil {
			return fmt.Errorf("set ready: %w", err)
		}
		p.IsReady = ready
	}
	e.publish(st, ReadyChanged{ParticipantID: p.ID, IsReady: ready})
	e.evaluateCountdown(st)
	return nil
}

func (st *sessionState) allReady() bool {
	if st.session.Status != models.SessionStatusWaiting {
		return false
	}
	active := st.active()
	if len(active) < 2 {
		return false
	}
	for _, p := range active {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// evaluateCountdown arms the auto start countdown when everyone is ready and
// cancels it otherwise.
func (e *Engine) evaluateCountdown(st *sessionState) {
	if !st.allReady() {
		e.cancelCountdown(st)
		return
	}
	if st.timers.armed(timerCountdown) {
		return
	}

	e.schedule(st, timerCountdown, e.units(e.opts.ReadyCountdown), func(ctx context.Context) {
		if !st.allReady() {
			return
		}
		if err := e.beginGame(ctx, st); err != nil {
			log.Printf("engine: session %s: auto start: %v", st.id(), err)
			e.publish(st, ErrorEventFor(err))
		}
	})
	e.publish(st, GameStarting{Countdown: e.opts.ReadyCountdown})
}

func (e *Engine) cancelCountdown(st *sessionState) {
	st.timers.stop(timerCountdown)
}

func (e *Engine) Start(ctx context.Context, sessionID, requestorID string) error {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()

	if !st.isHost(requestorID) {
		return ErrNotHost
	}
	if st.session.Status != models.SessionStatusWaiting {
		return ErrSessionNotWaiting
	}
	if len(st.roster) < 2 {
		return ErrInsufficientParticipants
	}
	return e.beginGame(ctx, st)
}

func (e *Engine) beginGame(ctx context.Context, st *sessionState) error {
	total, err := e.catalog.Count(ctx, nil)
	if err != nil {
		return Wrap(CodeUnavailable, "item catalog unavailable", err)
	}
	if total == 0 {
		return ErrNoItemsAvailable
	}

	e.cancelCountdown(st)
	fields := map[string]any{"status": models.SessionStatusPlaying, "current_round": 1}
	if err := e.store.UpdateSession(ctx, st.id(), fields); err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	st.session.Status = models.SessionStatusPlaying
	st.session.CurrentRound = 1

	e.metrics.gamesStarted.Add(1)
	e.publish(st, GameStarted{Mode: st.session.Mode, TotalRounds: st.session.Rounds, StartsIn: e.opts.StartDelay})
	e.systemMessage(ctx, st, "Game started")

	e.schedule(st, timerNextRound, e.units(e.opts.StartDelay), func(ctx context.Context) {
		e.openRound(ctx, st)
	})
	return nil
}

// SettingsPatch lists the settings to change; nil fields are left alone.
type SettingsPatch struct {
	Mode               *string
	Rounds             *int
	RoundTimer         *int
	BetweenRoundsTimer *int
	HintsEnabled       *bool
	MaxPlayers         *int
	TargetScore        *int
}

func (e *Engine) UpdateSettings(ctx context.Context, sessionID, requestorID string, patch SettingsPatch) (Settings, error) {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return Settings{}, err
	}
	defer st.mu.Unlock()

	if !st.isHost(requestorID) {
		return Settings{}, ErrNotHost
	}
	if st.session.Status != models.SessionStatusWaiting {
		return Settings{}, ErrSessionInProgress
	}
	if patch.MaxPlayers != nil && *patch.MaxPlayers < len(st.roster) {
		return Settings{}, ErrMaxPlayersTooSmall
	}

	next := *st.session
	fields := make(map[string]any)
	if patch.Mode != nil {
		next.Mode = *patch.Mode
		fields["mode"] = next.Mode
	}
	if patch.Rounds != nil {
		next.Rounds = *patch.Rounds
		fields["rounds"] = next.Rounds
	}
	if patch.RoundTimer != nil {
		next.RoundTimer = *patch.RoundTimer
		fields["round_timer"] = next.RoundTimer
	}
	if patch.BetweenRoundsTimer != nil {
		next.BetweenRoundsTimer = *patch.BetweenRoundsTimer
		fields["between_rounds_timer"] = next.BetweenRoundsTimer
	}
	if patch.HintsEnabled != nil {
		next.HintsEnabled = *patch.HintsEnabled
		fields["hints_enabled"] = next.HintsEnabled
	}
	if patch.MaxPlayers != nil {
		next.MaxPlayers = *patch.MaxPlayers
		fields["max_players"] = next.MaxPlayers
	}
	if patch.TargetScore != nil {
		target := *patch.TargetScore
		next.TargetScore = &target
		fields["target_score"] = target
	}
	if len(fields) == 0 {
		return st.settings(), nil
	}

	if err := e.store.UpdateSession(ctx, st.id(), fields); err != nil {
		return Settings{}, fmt.Errorf("update settings: %w", err)
	}
	*st.session = next

	e.cancelCountdown(st)
	e.publish(st, SessionUpdated{Settings: st.settings(), Status: st.session.Status})
	e.systemMessage(ctx, st, "Settings updated")
	return st.settings(), nil
}

func (e *Engine) Restart(ctx context.Context, sessionID, requestorID string) error {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()

	if !st.isHost(requestorID) {
		return ErrNotHost
	}
	if st.session.Status != models.SessionStatusFinished {
		return ErrSessionNotFinished
	}

	st.timers.stopAll()
	if err := e.store.ResetSession(ctx, st.id()); err != nil {
		return fmt.Errorf("restart session: %w", err)
	}
	if st.round != nil {
		st.round.agg.Release()
		st.round = nil
	}
	for _, p := range st.roster {
		p.Score = 0
		p.Streak = 0
		p.IsEliminated = false
		p.IsReady = false
	}
	st.session.Status = models.SessionStatusWaiting
	st.session.CurrentRound = 0

	e.publish(st, SessionRestarted{Session: st.snapshot()})
	e.systemMessage(ctx, st, "Session restarted")
	return nil
}

func (e *Engine) Leave(ctx context.Context, sessionID, participantID string) error {
	return e.leave(ctx, sessionID, participantID, "left")
}

// Disconnect is Leave for a dropped connection.
func (e *Engine) Disconnect(ctx context.Context, sessionID, participantID string) error {
	return e.leave(ctx, sessionID, participantID, "disconnected")
}

func (e *Engine) leave(ctx context.Context, sessionID, participantID, reason string) error {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()

	p := st.participant(participantID)
	if p == nil {
		return ErrParticipantNotFound
	}
	return e.depart(ctx, st, p, reason)
}

func (e *Engine) Kick(ctx context.Context, sessionID, requestorID, targetID string) error {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()

	if !st.isHost(requestorID) {
		return ErrNotHost
	}
	if targetID == requestorID {
		return ErrCannotKickSelf
	}
	target := st.participant(targetID)
	if target == nil {
		return ErrParticipantNotFound
	}

	e.bus.SendTo(st.id(), target.ID, ErrorEvent{Message: "you were removed from the session", Code: CodeForbidden})
	e.bus.Detach(st.id(), target.ID)
	return e.depart(ctx, st, target, "kicked")
}

// depart removes p and applies every consequence of the departure: an empty
// session is finished, a game with a single remaining player ends, an open
// round may now be complete and a missing host is replaced.
func (e *Engine) depart(ctx context.Context, st *sessionState, p *models.Participant, reason string) error {
	if err := e.store.DeleteParticipant(ctx, p.ID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	st.remove(p.ID)
	e.cancelCountdown(st)
	e.publish(st, ParticipantLeft{ParticipantID: p.ID, DisplayName: p.DisplayName, Reason: reason})

	if len(st.roster) == 0 {
		e.finalize(ctx, st, "empty")
		return nil
	}
	e.systemMessage(ctx, st, "%s %s", p.DisplayName, reason)

	if st.session.Status == models.SessionStatusPlaying {
		active := st.active()
		lr := st.round
		if len(active) <= 1 {
			winnerID := ""
			if len(active) == 1 {
				winnerID = active[0].ID
			}
			if lr != nil && lr.phase == RoundActive {
				lr.agg.Remove(p.ID)
				lr.phase = RoundClosing
				lr.winnerID = winnerID
				st.timers.stop(timerDeadline)
				st.timers.stop(timerHint)
				if !e.settleRound(ctx, st, lr, true) {
					// game_ended follows the retried close.
					e.succeedHost(ctx, st)
					return nil
				}
			}
			e.finishGame(ctx, st, winnerID)
			return nil
		}
		if lr != nil && lr.phase == RoundActive && lr.agg.Remove(p.ID) {
			e.closeRound(ctx, st, lr.model.ID)
		}
	}

	e.succeedHost(ctx, st)
	return nil
}

// succeedHost hands the host role to the earliest joined participant when
// the current host is no longer in the session.
func (e *Engine) succeedHost(ctx context.Context, st *sessionState) {
	if len(st.roster) == 0 || st.participant(st.session.HostParticipantID) != nil {
		return
	}
	next := st.roster[0]
	if err := e.store.UpdateSession(ctx, st.id(), map[string]any{"host_participant_id": next.ID}); err != nil {
		log.Printf("engine: session %s: assign host: %v", st.id(), err)
		return
	}
	previous := st.session.HostParticipantID
	st.session.HostParticipantID = next.ID
	e.publish(st, HostChanged{HostParticipantID: next.ID, DisplayName: next.DisplayName})
	if previous != "" {
		e.systemMessage(ctx, st, "%s is now the host", next.DisplayName)
	}
}

func (e *Engine) TransferHost(ctx context.Context, sessionID, requestorID, targetID string) error {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()

	if !st.isHost(requestorID) {
		return ErrNotHost
	}
	target := st.participant(targetID)
	if target == nil {
		return ErrParticipantNotFound
	}
	if target.IsGuest() {
		return ErrAnonymousHost
	}
	if target.ID == requestorID {
		return nil
	}

	if err := e.store.UpdateSession(ctx, st.id(), map[string]any{"host_participant_id": target.ID}); err != nil {
		return fmt.Errorf("transfer host: %w", err)
	}
	st.session.HostParticipantID = target.ID
	e.publish(st, HostChanged{HostParticipantID: target.ID, DisplayName: target.DisplayName})
	e.systemMessage(ctx, st, "%s is now the host", target.DisplayName)
	return nil
}

func (e *Engine) SubmitGuess(ctx context.Context, sessionID, participantID string, value int) (err error) {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer st.mu.Unlock()
	defer func() {
		if err != nil {
			e.metrics.guessesRejected.Add(1)
		}
	}()

	p := st.participant(participantID)
	if p == nil {
		return ErrParticipantNotFound
	}
	if st.session.Status != models.SessionStatusPlaying {
		return ErrSessionNotPlaying
	}
	lr := st.round
	if lr == nil || (lr.phase != RoundActive && lr.phase != RoundClosing) {
		return ErrNoActiveRound
	}
	if p.IsEliminated {
		return ErrParticipantEliminated
	}

	g := models.Guess{
		ID:            uuid.NewString(),
		RoundID:       lr.model.ID,
		ParticipantID: p.ID,
		Value:         value,
		SubmittedAt:   time.Now(),
	}
	if lr.hintAt != nil {
		g.HintsUsed = 1
	}

	shouldClose, err := lr.agg.Submit(g)
	if err != nil {
		return err
	}
	if err := e.store.CreateGuess(ctx, &g); err != nil {
		lr.agg.Withdraw(p.ID)
		if errors.Is(err, ErrDuplicateGuess) {
			return err
		}
		return fmt.Errorf("store guess: %w", err)
	}

	e.metrics.guessesAccepted.Add(1)
	e.bus.SendTo(st.id(), p.ID, GuessSubmitted{RoundNumber: lr.model.RoundNumber, Value: value})
	if shouldClose {
		e.closeRound(ctx, st, lr.model.ID)
	}
	return nil
}

// finalize ends a session outside of normal game flow, e.g. when it empties
// or goes idle.
func (e *Engine) finalize(ctx context.Context, st *sessionState, reason string) {
	st.timers.stopAll()
	e.dropRound(ctx, st)
	e.markFinished(ctx, st)
	e.publish(st, SessionFinished{Reason: reason})
	log.Printf("engine: session %s finished (%s)", st.id(), reason)
}

func (e *Engine) Snapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	st, err := e.acquire(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	defer st.mu.Unlock()
	return st.snapshot(), nil
}

func (e *Engine) SnapshotByInviteCode(ctx context.Context, code string) (Snapshot, error) {
	session, err := e.store.GetSessionByInviteCode(ctx, code)
	if err != nil {
		return Snapshot{}, err
	}
	return e.Snapshot(ctx, session.ID)
}

func (e *Engine) Leaderboard(ctx context.Context, sessionID string) ([]LeaderboardEntry, error) {
	st, err := e.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()
	return Leaderboard(st.roster), nil
}

// Abandon finishes a session that has seen no activity since idleSince. It
// reports whether the session was finished by this call.
func (e *Engine) Abandon(ctx context.Context, sessionID string, idleSince time.Time) (bool, error) {
	st, err := e.acquire(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer st.mu.Unlock()

	if st.session.Status == models.SessionStatusFinished || st.lastActivity.After(idleSince) {
		return false, nil
	}
	e.finalize(ctx, st, "idle")
	e.metrics.sessionsAbandoned.Add(1)
	return true, nil
}
