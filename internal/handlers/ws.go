package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/middleware"
	"github.com/ZAPHODh/ws-guess-server/internal/services"
	"github.com/ZAPHODh/ws-guess-server/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
)

const actionTimeout = 10 * time.Second

// Inbound action types.
const (
	ActionJoinSession     = "join_session"
	ActionLeaveSession    = "leave_session"
	ActionSetReady        = "set_ready"
	ActionStartGame       = "start_game"
	ActionUpdateSettings  = "update_settings"
	ActionRestartGame     = "restart_game"
	ActionSubmitGuess     = "submit_guess"
	ActionSendMessage     = "send_message"
	ActionSendReaction    = "send_reaction"
	ActionKickParticipant = "kick_participant"
	ActionTransferHost    = "transfer_host"
)

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type JoinSessionPayload struct {
	SessionID   string `json:"session_id" binding:"required_without=InviteCode,max=36"`
	InviteCode  string `json:"invite_code" binding:"omitempty,len=6"`
	AnonymousID string `json:"anonymous_id" binding:"omitempty,max=64"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=50"`
	Avatar      string `json:"avatar" binding:"max=10"`
}

type SetReadyPayload struct {
	Ready bool `json:"ready"`
}

type UpdateSettingsPayload struct {
	Mode               *string `json:"mode" binding:"omitempty,oneof=CLASSIC ELIMINATION MARATHON"`
	Rounds             *int    `json:"rounds" binding:"omitempty,min=1,max=50"`
	RoundTimer         *int    `json:"round_timer" binding:"omitempty,min=5,max=300"`
	BetweenRoundsTimer *int    `json:"between_rounds_timer" binding:"omitempty,min=1,max=60"`
	HintsEnabled       *bool   `json:"hints_enabled"`
	MaxPlayers         *int    `json:"max_players" binding:"omitempty,min=2,max=50"`
	TargetScore        *int    `json:"target_score" binding:"omitempty,min=1"`
}

type SubmitGuessPayload struct {
	Value int `json:"value" binding:"min=1800,max=2030"`
}

type SendMessagePayload struct {
	Body string `json:"body" binding:"required,min=1,max=500"`
}

type SendReactionPayload struct {
	Emoji      string `json:"emoji" binding:"required,max=10"`
	TargetType string `json:"target_type" binding:"omitempty,max=20"`
	TargetID   string `json:"target_id" binding:"omitempty,max=36"`
}

type TargetPayload struct {
	ParticipantID string `json:"participant_id" binding:"required,max=36"`
}

type WSHandler struct {
	engine   *services.Engine
	hub      *ws.Hub
	limiter  *ws.RateLimiter
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *services.Engine, hub *ws.Hub, limiter *ws.RateLimiter, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:  engine,
		hub:     hub,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleWebSocket godoc
// @Summary      Game websocket
// @Description  Bidirectional game channel. Frames are {"type", "data"} envelopes; send join_session first. Pass an account token as ?token= to join with a stable identity.
// @Tags         websocket
// @Param        token query string false "Account JWT"
// @Router       /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := ws.NewClient(conn, c.GetString(middleware.AccountIDKey))
	metrics := h.engine.Metrics()
	metrics.IncrementConnections()
	defer metrics.DecrementConnections()

	go client.WritePump()
	client.ReadPump(func(data []byte) {
		h.dispatch(client, data)
	})

	h.limiter.Reset(client.ID)
	h.release(client, h.engine.Disconnect)
}

// release removes client from its session, calling depart only if it is
// still the participant's current connection.
func (h *WSHandler) release(client *ws.Client, depart func(ctx context.Context, sessionID, participantID string) error) {
	sessionID, participantID := client.Binding()
	if sessionID == "" || !h.hub.Remove(sessionID, participantID, client) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	if err := depart(ctx, sessionID, participantID); err != nil && services.CodeOf(err) != services.CodeNotFound {
		log.Printf("ws: release %s from session %s: %v", participantID, sessionID, err)
	}
}

func sendError(client *ws.Client, err error) {
	client.SendMessage(ws.WSMessage{Type: services.EventError, Data: services.ErrorEventFor(err)})
}

// decode unmarshals data into payload and validates its binding tags.
func decode(data json.RawMessage, payload any) error {
	if len(data) > 0 {
		if err := json.Unmarshal(data, payload); err != nil {
			return services.Invalid("malformed payload", err)
		}
	}
	if err := binding.Validator.ValidateStruct(payload); err != nil {
		return services.Invalid(err.Error(), nil)
	}
	return nil
}

func (h *WSHandler) dispatch(client *ws.Client, data []byte) {
	if !h.limiter.Allow(client.ID) {
		h.engine.Metrics().IncrementRateLimited()
		sendError(client, services.ErrRateLimited)
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		sendError(client, services.Invalid("malformed message", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	if err := h.handle(ctx, client, msg); err != nil {
		sendError(client, err)
	}
}

func (h *WSHandler) handle(ctx context.Context, client *ws.Client, msg inboundMessage) error {
	if msg.Type == ActionJoinSession {
		return h.join(ctx, client, msg.Data)
	}

	sessionID, participantID := client.Binding()
	if sessionID == "" {
		return services.ErrParticipantNotFound
	}

	switch msg.Type {
	case ActionLeaveSession:
		h.release(client, h.engine.Leave)
		return nil

	case ActionSetReady:
		var p SetReadyPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		return h.engine.SetReady(ctx, sessionID, participantID, p.Ready)

	case ActionStartGame:
		return h.engine.Start(ctx, sessionID, participantID)

	case ActionUpdateSettings:
		var p UpdateSettingsPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		_, err := h.engine.UpdateSettings(ctx, sessionID, participantID, services.SettingsPatch{
			Mode:               p.Mode,
			Rounds:             p.Rounds,
			RoundTimer:         p.RoundTimer,
			BetweenRoundsTimer: p.BetweenRoundsTimer,
			HintsEnabled:       p.HintsEnabled,
			MaxPlayers:         p.MaxPlayers,
			TargetScore:        p.TargetScore,
		})
		return err

	case ActionRestartGame:
		return h.engine.Restart(ctx, sessionID, participantID)

	case ActionSubmitGuess:
		var p SubmitGuessPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		return h.engine.SubmitGuess(ctx, sessionID, participantID, p.Value)

	case ActionSendMessage:
		var p SendMessagePayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		_, err := h.engine.SendMessage(ctx, sessionID, participantID, p.Body)
		return err

	case ActionSendReaction:
		var p SendReactionPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		_, err := h.engine.SendReaction(ctx, sessionID, participantID, services.ReactionRequest{
			Emoji:      p.Emoji,
			TargetType: p.TargetType,
			TargetID:   p.TargetID,
		})
		return err

	case ActionKickParticipant:
		var p TargetPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		return h.engine.Kick(ctx, sessionID, participantID, p.ParticipantID)

	case ActionTransferHost:
		var p TargetPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		return h.engine.TransferHost(ctx, sessionID, participantID, p.ParticipantID)

	default:
		return services.Invalid("unknown message type "+msg.Type, nil)
	}
}

func (h *WSHandler) join(ctx context.Context, client *ws.Client, data json.RawMessage) error {
	var p JoinSessionPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if client.AccountID == "" && p.AnonymousID == "" {
		return services.ErrIdentityRequired
	}

	sessionID := p.SessionID
	if sessionID == "" {
		snap, err := h.engine.SnapshotByInviteCode(ctx, p.InviteCode)
		if err != nil {
			return err
		}
		sessionID = snap.ID
	}

	result, err := h.engine.Join(ctx, services.JoinRequest{
		SessionID:   sessionID,
		AccountID:   client.AccountID,
		AnonymousID: p.AnonymousID,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
	})
	if err != nil {
		return err
	}

	// A connection acts for one participant at a time.
	if current, participantID := client.Binding(); current != "" &&
		(current != sessionID || participantID != result.Participant.ID) {
		h.release(client, h.engine.Leave)
		if current == sessionID {
			if snap, err := h.engine.Snapshot(ctx, sessionID); err == nil {
				result.Session = snap
			}
		}
	}

	h.hub.Attach(sessionID, result.Participant.ID, client)
	client.SendMessage(ws.WSMessage{
		Type: services.EventSessionJoined,
		Data: services.SessionJoined{
			ParticipantID: result.Participant.ID,
			Session:       result.Session,
			Messages:      result.Messages,
		},
	})
	return nil
}
