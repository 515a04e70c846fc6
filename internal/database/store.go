package database

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
	"github.com/ZAPHODh/ws-guess-server/internal/services"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Store is the gorm backed services.Store.
type Store struct {
	db *gorm.DB
}

var _ services.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	err := s.db.WithContext(ctx).Create(session).Error
	if isUniqueViolation(err) {
		return services.ErrInviteCodeTaken
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, notFound(err, services.ErrSessionNotFound)
	}
	return &session, nil
}

func (s *Store) GetSessionByInviteCode(ctx context.Context, code string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Where("invite_code = ?", strings.ToUpper(code)).First(&session).Error
	if err != nil {
		return nil, notFound(err, services.ErrSessionNotFound)
	}
	return &session, nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes the session and everything it owns.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteRounds(tx, id); err != nil {
			return err
		}
		for _, model := range []any{&models.Participant{}, &models.ChatMessage{}, &models.Reaction{}} {
			if err := tx.Where("session_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return services.ErrSessionNotFound
		}
		return nil
	})
}

func deleteRounds(tx *gorm.DB, sessionID string) error {
	rounds := tx.Session(&gorm.Session{NewDB: true}).
		Model(&models.Round{}).
		Select("id").
		Where("session_id = ?", sessionID)
	if err := tx.Where("round_id IN (?)", rounds).Delete(&models.Guess{}).Error; err != nil {
		return err
	}
	return tx.Where("session_id = ?", sessionID).Delete(&models.Round{}).Error
}

func (s *Store) ListIdleSessions(ctx context.Context, before time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("status <> ? AND updated_at < ?", models.SessionStatusFinished, before).
		Find(&sessions).Error
	return sessions, err
}

func (s *Store) ListFinishedSessions(ctx context.Context, before time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.SessionStatusFinished, before).
		Find(&sessions).Error
	return sessions, err
}

func (s *Store) findParticipant(ctx context.Context, p *models.Participant) (*models.Participant, error) {
	q := s.db.WithContext(ctx).Where("session_id = ?", p.SessionID)
	if p.AccountID != nil {
		q = q.Where("account_id = ?", *p.AccountID)
	} else if p.AnonymousID != nil {
		q = q.Where("anonymous_id = ? AND account_id IS NULL", *p.AnonymousID)
	} else {
		return nil, services.ErrIdentityRequired
	}

	var found models.Participant
	if err := q.First(&found).Error; err != nil {
		return nil, notFound(err, services.ErrParticipantNotFound)
	}
	return &found, nil
}

func (s *Store) CreateParticipant(ctx context.Context, p *models.Participant) (*models.Participant, bool, error) {
	existing, err := s.findParticipant(ctx, p)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, services.ErrParticipantNotFound) {
		return nil, false, err
	}

	err = s.db.WithContext(ctx).Create(p).Error
	if isUniqueViolation(err) {
		// Lost a race with a concurrent join of the same identity.
		existing, err := s.findParticipant(ctx, p)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *Store) UpdateParticipant(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Participant{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrParticipantNotFound
	}
	return nil
}

func (s *Store) DeleteParticipant(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Participant{}).Error
}

func (s *Store) CreateRound(ctx context.Context, round *models.Round) error {
	return s.db.WithContext(ctx).Create(round).Error
}

func (s *Store) UpdateRound(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Round{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrRoundNotFound
	}
	return nil
}

func (s *Store) ActiveRound(ctx context.Context, sessionID string) (*models.Round, error) {
	var round models.Round
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, models.RoundStatusActive).
		First(&round).Error
	if err != nil {
		return nil, notFound(err, services.ErrRoundNotFound)
	}
	return &round, nil
}

func (s *Store) UsedItemIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Round{}).
		Where("session_id = ?", sessionID).
		Pluck("item_id", &ids).Error
	return lo.Uniq(ids), err
}

func (s *Store) CreateGuess(ctx context.Context, guess *models.Guess) error {
	err := s.db.WithContext(ctx).Create(guess).Error
	if isUniqueViolation(err) {
		return services.ErrDuplicateGuess
	}
	return err
}

func (s *Store) RoundGuesses(ctx context.Context, roundID string) ([]models.Guess, error) {
	var guesses []models.Guess
	err := s.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("submitted_at ASC").
		Find(&guesses).Error
	return guesses, err
}

// CompleteRound writes a round close in one transaction: the round, its
// scored guesses, the participants' standings and the session's progress.
func (s *Store) CompleteRound(ctx context.Context, o services.RoundOutcome) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Round{}).
			Where("id = ? AND status = ?", o.RoundID, models.RoundStatusActive).
			Updates(map[string]any{"status": models.RoundStatusCompleted, "ended_at": o.EndedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return services.ErrRoundNotFound
		}

		for _, g := range o.Guesses {
			err := tx.Model(&models.Guess{}).Where("id = ?", g.ID).Updates(map[string]any{
				"points":      g.Points,
				"speed_bonus": g.SpeedBonus,
				"accuracy":    g.Accuracy,
			}).Error
			if err != nil {
				return err
			}
		}

		for _, p := range o.Participants {
			err := tx.Model(&models.Participant{}).Where("id = ?", p.ID).Updates(map[string]any{
				"score":         p.Score,
				"streak":        p.Streak,
				"is_eliminated": p.IsEliminated,
			}).Error
			if err != nil {
				return err
			}
		}

		return tx.Model(&models.Session{}).Where("id = ?", o.SessionID).Updates(map[string]any{
			"status":        o.SessionStatus,
			"current_round": o.CurrentRound,
		}).Error
	})
}

func (s *Store) ResetSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteRounds(tx, sessionID); err != nil {
			return err
		}
		err := tx.Model(&models.Participant{}).Where("session_id = ?", sessionID).Updates(map[string]any{
			"score":         0,
			"streak":        0,
			"is_ready":      false,
			"is_eliminated": false,
		}).Error
		if err != nil {
			return err
		}
		res := tx.Model(&models.Session{}).Where("id = ?", sessionID).Updates(map[string]any{
			"status":        models.SessionStatusWaiting,
			"current_round": 0,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return services.ErrSessionNotFound
		}
		return nil
	})
}

func (s *Store) CreateChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// RecentChatMessages returns up to limit messages, oldest first.
func (s *Store) RecentChatMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func (s *Store) CreateReaction(ctx context.Context, reaction *models.Reaction) error {
	return s.db.WithContext(ctx).Create(reaction).Error
}
