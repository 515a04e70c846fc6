package services_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/database"
	"github.com/ZAPHODh/ws-guess-server/internal/models"
	"github.com/ZAPHODh/ws-guess-server/internal/services"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testUnit    = 10 * time.Millisecond
	waitTimeout = 3 * time.Second
	waitTick    = 5 * time.Millisecond
)

var testItems = []models.Item{
	{ID: "item-moon", Title: "Moon landing", Value: 1969},
	{ID: "item-wall", Title: "Berlin wall falls", Value: 1989},
	{ID: "item-web", Title: "First web page", Value: 1991},
	{ID: "item-iphone", Title: "First iPhone", Value: 2007},
	{ID: "item-titanic", Title: "Titanic sinks", Value: 1912},
}

func itemValue(t *testing.T, id string) int {
	t.Helper()
	for _, it := range testItems {
		if it.ID == id {
			return it.Value
		}
	}
	t.Fatalf("unknown item %q", id)
	return 0
}

type published struct {
	sessionID string
	to        string
	event     services.Event
}

// recorder is a services.Publisher that keeps everything it is given.
type recorder struct {
	mu       sync.Mutex
	events   []published
	detached []string
}

func (r *recorder) Publish(sessionID string, ev services.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{sessionID: sessionID, event: ev})
}

func (r *recorder) SendTo(sessionID, participantID string, ev services.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{sessionID: sessionID, to: participantID, event: ev})
}

func (r *recorder) Detach(sessionID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = append(r.detached, participantID)
}

func (r *recorder) wasDetached(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.detached, participantID)
}

// broadcasts returns the events of type T published to the whole session.
func broadcasts[T services.Event](r *recorder, sessionID string) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	for _, p := range r.events {
		if p.sessionID != sessionID || p.to != "" {
			continue
		}
		if ev, ok := p.event.(T); ok {
			out = append(out, ev)
		}
	}
	return out
}

// directed returns the events of type T sent to one participant.
func directed[T services.Event](r *recorder, sessionID, participantID string) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	for _, p := range r.events {
		if p.sessionID != sessionID || p.to != participantID {
			continue
		}
		if ev, ok := p.event.(T); ok {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	engine  *services.Engine
	store   *database.Store
	catalog *database.Catalog
	db      *gorm.DB
	rec     *recorder
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithItems(t, testItems)
}

func newHarnessWithItems(t *testing.T, items []models.Item) *harness {
	t.Helper()
	return newCustomHarness(t, items, harnessOptions{})
}

// harnessOptions wrap the store and catalog the engine sees. The harness
// itself keeps the real ones.
type harnessOptions struct {
	store   func(services.Store) services.Store
	catalog func(services.Catalog) services.Catalog
}

func newCustomHarness(t *testing.T, items []models.Item, opts harnessOptions) *harness {
	t.Helper()

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	h := &harness{
		store:   database.NewStore(db),
		catalog: database.NewCatalog(db),
		db:      db,
		rec:     &recorder{},
	}
	require.NoError(t, h.catalog.Add(context.Background(), slices.Clone(items)))

	var store services.Store = h.store
	if opts.store != nil {
		store = opts.store(store)
	}
	var catalog services.Catalog = h.catalog
	if opts.catalog != nil {
		catalog = opts.catalog(catalog)
	}
	h.engine = services.NewEngine(store, catalog, h.rec, nil, services.EngineOptions{TimeUnit: testUnit})
	t.Cleanup(h.engine.Shutdown)
	return h
}

func (h *harness) createSession(t *testing.T, params services.CreateSessionParams) string {
	t.Helper()
	if params.HintsEnabled == nil {
		off := false
		params.HintsEnabled = &off
	}
	sess, err := h.engine.CreateSession(context.Background(), params)
	require.NoError(t, err)
	return sess.ID
}

func (h *harness) join(t *testing.T, sessionID, name string) models.Participant {
	t.Helper()
	res, err := h.engine.Join(context.Background(), services.JoinRequest{
		SessionID:   sessionID,
		AnonymousID: "anon-" + name,
		DisplayName: name,
	})
	require.NoError(t, err)
	return res.Participant
}

func (h *harness) joinAccount(t *testing.T, sessionID, name string) models.Participant {
	t.Helper()
	res, err := h.engine.Join(context.Background(), services.JoinRequest{
		SessionID:   sessionID,
		AccountID:   "acct-" + name,
		DisplayName: name,
	})
	require.NoError(t, err)
	return res.Participant
}

// waitRound blocks until round n has started and returns its announcement.
func (h *harness) waitRound(t *testing.T, sessionID string, n int) services.RoundStarted {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(broadcasts[services.RoundStarted](h.rec, sessionID)) >= n
	}, waitTimeout, waitTick, "round %d never started", n)
	return broadcasts[services.RoundStarted](h.rec, sessionID)[n-1]
}

func (h *harness) waitRoundEnded(t *testing.T, sessionID string, n int) services.RoundEnded {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(broadcasts[services.RoundEnded](h.rec, sessionID)) >= n
	}, waitTimeout, waitTick, "round %d never ended", n)
	return broadcasts[services.RoundEnded](h.rec, sessionID)[n-1]
}

func (h *harness) waitGameEnded(t *testing.T, sessionID string) services.GameEnded {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(broadcasts[services.GameEnded](h.rec, sessionID)) >= 1
	}, waitTimeout, waitTick, "game never ended")
	return broadcasts[services.GameEnded](h.rec, sessionID)[0]
}

func (h *harness) snapshot(t *testing.T, sessionID string) services.Snapshot {
	t.Helper()
	snap, err := h.engine.Snapshot(context.Background(), sessionID)
	require.NoError(t, err)
	return snap
}

func (h *harness) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func participantByID(snap services.Snapshot, id string) *models.Participant {
	for i := range snap.Participants {
		if snap.Participants[i].ID == id {
			return &snap.Participants[i]
		}
	}
	return nil
}

func intPtr(n int) *int { return &n }
