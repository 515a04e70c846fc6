package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
)

func (e *Engine) SendMessage(ctx context.Context, sessionID, participantID, body string) (*models.ChatMessage, error) {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()

	p := st.participant(participantID)
	if p == nil {
		return nil, ErrParticipantNotFound
	}

	author := p.ID
	msg := &models.ChatMessage{
		SessionID:     st.id(),
		ParticipantID: &author,
		DisplayName:   p.DisplayName,
		Body:          strings.TrimSpace(body),
		Kind:          models.ChatKindChat,
		CreatedAt:     time.Now(),
	}
	if err := e.store.CreateChatMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	e.metrics.chatMessages.Add(1)
	e.publish(st, ChatMessagePosted{Message: *msg})
	return msg, nil
}

type ReactionRequest struct {
	Emoji      string
	TargetType string
	TargetID   string
}

// SendReaction records an emoji reaction, tied to the open round if any.
func (e *Engine) SendReaction(ctx context.Context, sessionID, participantID string, req ReactionRequest) (*models.Reaction, error) {
	st, err := e.enter(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()

	p := st.participant(participantID)
	if p == nil {
		return nil, ErrParticipantNotFound
	}

	reaction := &models.Reaction{
		SessionID:     st.id(),
		ParticipantID: p.ID,
		Emoji:         req.Emoji,
		TargetType:    req.TargetType,
		TargetID:      req.TargetID,
		CreatedAt:     time.Now(),
	}
	if st.round != nil {
		roundID := st.round.model.ID
		reaction.RoundID = &roundID
	}
	if err := e.store.CreateReaction(ctx, reaction); err != nil {
		return nil, fmt.Errorf("store reaction: %w", err)
	}
	e.publish(st, ReactionAdded{Reaction: *reaction})
	return reaction, nil
}
