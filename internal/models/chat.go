package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatMessage struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID     string    `gorm:"size:36;not null;index:idx_chat_session_time" json:"session_id"`
	ParticipantID *string   `gorm:"size:36" json:"participant_id,omitempty"`
	DisplayName   string    `gorm:"size:50" json:"display_name"`
	Body          string    `gorm:"size:500;not null" json:"body"`
	Kind          string    `gorm:"size:10;not null" json:"kind"`
	CreatedAt     time.Time `gorm:"index:idx_chat_session_time" json:"created_at"`
}

const (
	ChatKindChat   = "CHAT"
	ChatKindSystem = "SYSTEM"
)

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type Reaction struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID     string    `gorm:"size:36;not null;index" json:"session_id"`
	ParticipantID string    `gorm:"size:36;not null" json:"participant_id"`
	RoundID       *string   `gorm:"size:36" json:"round_id,omitempty"`
	Emoji         string    `gorm:"size:10;not null" json:"emoji"`
	TargetType    string    `gorm:"size:20" json:"target_type,omitempty"`
	TargetID      string    `gorm:"size:36" json:"target_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *Reaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
