package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant is keyed within its session by AccountID when set, otherwise by
// AnonymousID. Only one of the two is stored.
type Participant struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID    string    `gorm:"size:36;not null;index;uniqueIndex:idx_participant_account;uniqueIndex:idx_participant_anonymous" json:"session_id"`
	AccountID    *string   `gorm:"size:36;uniqueIndex:idx_participant_account" json:"account_id,omitempty"`
	AnonymousID  *string   `gorm:"size:64;uniqueIndex:idx_participant_anonymous" json:"-"`
	DisplayName  string    `gorm:"size:50;not null" json:"display_name"`
	Avatar       string    `gorm:"size:10" json:"avatar"`
	Score        int       `gorm:"not null" json:"score"`
	Streak       int       `gorm:"not null" json:"streak"`
	IsReady      bool      `gorm:"not null" json:"is_ready"`
	IsEliminated bool      `gorm:"not null" json:"is_eliminated"`
	JoinedAt     time.Time `gorm:"index" json:"joined_at"`
}

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// IsGuest reports whether the participant joined without an account.
func (p *Participant) IsGuest() bool {
	return p.AccountID == nil
}
