package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Guess struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	RoundID       string    `gorm:"size:36;not null;uniqueIndex:idx_guess_unique" json:"round_id"`
	ParticipantID string    `gorm:"size:36;not null;uniqueIndex:idx_guess_unique;index" json:"participant_id"`
	Value         int       `gorm:"not null" json:"value"`
	Points        int       `gorm:"not null" json:"points"`
	SpeedBonus    int       `gorm:"not null" json:"speed_bonus"`
	Accuracy      int       `gorm:"not null" json:"accuracy"`
	HintsUsed     int       `gorm:"not null" json:"hints_used"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

func (g *Guess) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}
