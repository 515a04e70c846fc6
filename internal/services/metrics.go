package services

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics counts engine activity. All methods are safe for concurrent use.
type Metrics struct {
	sessionsCreated    atomic.Int64
	activeSessions     atomic.Int64
	participantsJoined atomic.Int64
	gamesStarted       atomic.Int64
	gamesFinished      atomic.Int64
	roundsStarted      atomic.Int64
	roundsCompleted    atomic.Int64
	roundCloseFailures atomic.Int64
	guessesAccepted    atomic.Int64
	guessesRejected    atomic.Int64
	chatMessages       atomic.Int64
	sessionsAbandoned  atomic.Int64
	sessionsPurged     atomic.Int64
	rateLimited        atomic.Int64
	activeConnections  atomic.Int64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrementRateLimited() { m.rateLimited.Add(1) }

func (m *Metrics) IncrementConnections() { m.activeConnections.Add(1) }

func (m *Metrics) DecrementConnections() { m.activeConnections.Add(-1) }

type MetricsSnapshot struct {
	SessionsCreated    int64  `json:"sessions_created"`
	ActiveSessions     int64  `json:"active_sessions"`
	ParticipantsJoined int64  `json:"participants_joined"`
	GamesStarted       int64  `json:"games_started"`
	GamesFinished      int64  `json:"games_finished"`
	RoundsStarted      int64  `json:"rounds_started"`
	RoundsCompleted    int64  `json:"rounds_completed"`
	RoundCloseFailures int64  `json:"round_close_failures"`
	GuessesAccepted    int64  `json:"guesses_accepted"`
	GuessesRejected    int64  `json:"guesses_rejected"`
	ChatMessages       int64  `json:"chat_messages"`
	SessionsAbandoned  int64  `json:"sessions_abandoned"`
	SessionsPurged     int64  `json:"sessions_purged"`
	RateLimited        int64  `json:"rate_limited"`
	ActiveConnections  int64  `json:"active_connections"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
	MemoryUsageMB      uint64 `json:"memory_usage_mb"`
	NumGoroutines      int    `json:"num_goroutines"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		SessionsCreated:    m.sessionsCreated.Load(),
		ActiveSessions:     m.activeSessions.Load(),
		ParticipantsJoined: m.participantsJoined.Load(),
		GamesStarted:       m.gamesStarted.Load(),
		GamesFinished:      m.gamesFinished.Load(),
		RoundsStarted:      m.roundsStarted.Load(),
		RoundsCompleted:    m.roundsCompleted.Load(),
		RoundCloseFailures: m.roundCloseFailures.Load(),
		GuessesAccepted:    m.guessesAccepted.Load(),
		GuessesRejected:    m.guessesRejected.Load(),
		ChatMessages:       m.chatMessages.Load(),
		SessionsAbandoned:  m.sessionsAbandoned.Load(),
		SessionsPurged:     m.sessionsPurged.Load(),
		RateLimited:        m.rateLimited.Load(),
		ActiveConnections:  m.activeConnections.Load(),
		UptimeSeconds:      int64(time.Since(m.startTime).Seconds()),
		MemoryUsageMB:      memStats.Alloc / 1024 / 1024,
		NumGoroutines:      runtime.NumGoroutine(),
	}
}
