package services

import (
	"context"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
)

// ParticipantUpdate carries the standings a round close writes back.
type ParticipantUpdate struct {
	ID           string
	Score        int
	Streak       int
	IsEliminated bool
}

// RoundOutcome is everything a round close persists. Stores apply it in a
// single transaction.
type RoundOutcome struct {
	SessionID     string
	RoundID       string
	EndedAt       time.Time
	Guesses       []models.Guess
	Participants  []ParticipantUpdate
	SessionStatus string
	CurrentRound  int
}

// Store is the persistence the engine needs. Lookups of missing rows return
// ErrSessionNotFound, ErrParticipantNotFound or ErrRoundNotFound.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetSessionByInviteCode(ctx context.Context, code string) (*models.Session, error)
	UpdateSession(ctx context.Context, id string, fields map[string]any) error
	DeleteSession(ctx context.Context, id string) error
	ListIdleSessions(ctx context.Context, before time.Time) ([]models.Session, error)
	ListFinishedSessions(ctx context.Context, before time.Time) ([]models.Session, error)

	// CreateParticipant inserts p unless a participant with the same identity
	// already exists in the session, in which case that row is returned and
	// created is false.
	CreateParticipant(ctx context.Context, p *models.Participant) (existing *models.Participant, created bool, err error)
	UpdateParticipant(ctx context.Context, id string, fields map[string]any) error
	DeleteParticipant(ctx context.Context, id string) error

	CreateRound(ctx context.Context, round *models.Round) error
	UpdateRound(ctx context.Context, id string, fields map[string]any) error
	ActiveRound(ctx context.Context, sessionID string) (*models.Round, error)
	UsedItemIDs(ctx context.Context, sessionID string) ([]string, error)

	// CreateGuess returns ErrDuplicateGuess when the participant already has
	// a guess for the round.
	CreateGuess(ctx context.Context, guess *models.Guess) error
	RoundGuesses(ctx context.Context, roundID string) ([]models.Guess, error)

	CompleteRound(ctx context.Context, outcome RoundOutcome) error
	// ResetSession deletes rounds and guesses, clears participant progress and
	// puts the session back to WAITING.
	ResetSession(ctx context.Context, sessionID string) error

	CreateChatMessage(ctx context.Context, msg *models.ChatMessage) error
	RecentChatMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	CreateReaction(ctx context.Context, reaction *models.Reaction) error
}
