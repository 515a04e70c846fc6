package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Session struct {
	ID                 string        `gorm:"primaryKey;size:36" json:"id"`
	HostParticipantID  string        `gorm:"size:36" json:"host_participant_id"`
	CreatedBy          string        `gorm:"size:36;index" json:"created_by,omitempty"`
	Mode               string        `gorm:"size:20;not null" json:"mode"`
	Status             string        `gorm:"size:20;not null;index" json:"status"`
	Rounds             int           `gorm:"not null" json:"rounds"`
	RoundTimer         int           `gorm:"not null" json:"round_timer"`
	BetweenRoundsTimer int           `gorm:"not null" json:"between_rounds_timer"`
	HintsEnabled       bool          `gorm:"not null" json:"hints_enabled"`
	MaxPlayers         int           `gorm:"not null" json:"max_players"`
	CurrentRound       int           `gorm:"not null" json:"current_round"`
	TargetScore        *int          `json:"target_score,omitempty"`
	InviteCode         string        `gorm:"size:6;uniqueIndex" json:"invite_code"`
	Participants       []Participant `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `gorm:"index" json:"updated_at"`
}

const (
	ModeClassic     = "CLASSIC"
	ModeElimination = "ELIMINATION"
	ModeMarathon    = "MARATHON"

	SessionStatusWaiting  = "WAITING"
	SessionStatusPlaying  = "PLAYING"
	SessionStatusFinished = "FINISHED"
)

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
