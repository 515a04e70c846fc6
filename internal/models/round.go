package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Round struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	SessionID      string     `gorm:"size:36;not null;uniqueIndex:idx_round_number;index:idx_round_active,unique,where:status = 'ACTIVE'" json:"session_id"`
	RoundNumber    int        `gorm:"not null;uniqueIndex:idx_round_number" json:"round_number"`
	ItemID         string     `gorm:"size:36;not null;index" json:"item_id"`
	CorrectValue   int        `gorm:"not null" json:"-"`
	Status         string     `gorm:"size:20;not null" json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	EndsAt         time.Time  `json:"ends_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	HintDispatched bool       `gorm:"not null" json:"hint_dispatched"`
}

const (
	RoundStatusActive    = "ACTIVE"
	RoundStatusCompleted = "COMPLETED"
)

func (r *Round) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
