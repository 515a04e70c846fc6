package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
)

type SweeperConfig struct {
	Interval          time.Duration
	IdleGrace         time.Duration
	FinishedRetention time.Duration
}

// Sweeper finishes sessions nobody has touched for IdleGrace and deletes
// finished sessions older than FinishedRetention.
type Sweeper struct {
	engine *Engine
	store  Store
	cfg    SweeperConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweeper(engine *Engine, store Store, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.IdleGrace <= 0 {
		cfg.IdleGrace = 30 * time.Minute
	}
	if cfg.FinishedRetention <= 0 {
		cfg.FinishedRetention = 24 * time.Hour
	}
	return &Sweeper{engine: engine, store: store, cfg: cfg, stopCh: make(chan struct{})}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				res := s.Sweep(context.Background())
				if res.Abandoned > 0 || res.Purged > 0 {
					log.Printf("[Sweeper] finished %d idle sessions, purged %d", res.Abandoned, res.Purged)
				}
			}
		}
	}()
	log.Printf("[Sweeper] started (every %s, idle grace %s, retention %s)", s.cfg.Interval, s.cfg.IdleGrace, s.cfg.FinishedRetention)
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

type SweepResult struct {
	Abandoned int
	Purged    int
	Failed    int
}

// Sweep runs one pass. A failure on one session is logged and the pass
// continues with the next.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	now := time.Now()

	idleCutoff := now.Add(-s.cfg.IdleGrace)
	idle, err := s.store.ListIdleSessions(ctx, idleCutoff)
	if err != nil {
		log.Printf("[Sweeper] list idle sessions: %v", err)
	}
	for _, sess := range idle {
		done, err := s.engine.Abandon(ctx, sess.ID, idleCutoff)
		if err != nil {
			log.Printf("[Sweeper] finish idle session %s: %v", sess.ID, err)
			res.Failed++
			continue
		}
		if done {
			res.Abandoned++
			s.engine.Evict(sess.ID)
		}
	}

	retentionCutoff := now.Add(-s.cfg.FinishedRetention)
	finished, err := s.store.ListFinishedSessions(ctx, retentionCutoff)
	if err != nil {
		log.Printf("[Sweeper] list finished sessions: %v", err)
	}
	for _, sess := range finished {
		done, err := s.engine.Purge(ctx, sess.ID, retentionCutoff)
		if err != nil {
			log.Printf("[Sweeper] purge session %s: %v", sess.ID, err)
			res.Failed++
			continue
		}
		if done {
			res.Purged++
		}
	}
	return res
}

// Purge deletes a finished session whose last activity is before cutoff.
func (e *Engine) Purge(ctx context.Context, sessionID string, cutoff time.Time) (bool, error) {
	st, err := e.acquire(ctx, sessionID)
	if err != nil {
		return false, err
	}

	if st.session.Status != models.SessionStatusFinished || st.lastActivity.After(cutoff) {
		st.mu.Unlock()
		return false, nil
	}
	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		st.mu.Unlock()
		return false, err
	}
	st.retire()
	st.mu.Unlock()

	e.mu.Lock()
	if e.sessions[sessionID] == st {
		delete(e.sessions, sessionID)
		e.metrics.activeSessions.Add(-1)
	}
	e.mu.Unlock()
	e.metrics.sessionsPurged.Add(1)
	return true, nil
}
