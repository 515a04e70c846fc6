package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ZAPHODh/ws-guess-server/internal/middleware"
	"github.com/ZAPHODh/ws-guess-server/internal/models"
	"github.com/ZAPHODh/ws-guess-server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

const inviteQRSize = 256

type SessionHandler struct {
	engine        *services.Engine
	publicBaseURL string
}

func NewSessionHandler(engine *services.Engine, publicBaseURL string) *SessionHandler {
	return &SessionHandler{engine: engine, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

type CreateSessionRequest struct {
	Mode               string `json:"mode" binding:"omitempty,oneof=CLASSIC ELIMINATION MARATHON" example:"CLASSIC"`
	Rounds             int    `json:"rounds" binding:"omitempty,min=1,max=50" example:"5"`
	RoundTimer         int    `json:"round_timer" binding:"omitempty,min=5,max=300" example:"30"`
	BetweenRoundsTimer int    `json:"between_rounds_timer" binding:"omitempty,min=1,max=60" example:"5"`
	HintsEnabled       *bool  `json:"hints_enabled" example:"true"`
	MaxPlayers         int    `json:"max_players" binding:"omitempty,min=2,max=50" example:"8"`
	TargetScore        *int   `json:"target_score" binding:"omitempty,min=1" example:"1000"`
}

// CreateSession godoc
// @Summary      Create a game session
// @Description  Open a lobby with an invite code. Omitted settings take their defaults.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CreateSessionRequest true "Session settings"
// @Success      201 {object} models.Session
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session, err := h.engine.CreateSession(c.Request.Context(), services.CreateSessionParams{
		CreatedBy:          c.GetString(middleware.AccountIDKey),
		Mode:               req.Mode,
		Rounds:             req.Rounds,
		RoundTimer:         req.RoundTimer,
		BetweenRoundsTimer: req.BetweenRoundsTimer,
		HintsEnabled:       req.HintsEnabled,
		MaxPlayers:         req.MaxPlayers,
		TargetScore:        req.TargetScore,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession godoc
// @Summary      Get session state
// @Description  Current settings, roster and open round of a session
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} services.Snapshot
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	snap, err := h.engine.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetSessionByCode godoc
// @Summary      Find a session by invite code
// @Tags         sessions
// @Produce      json
// @Param        code path string true "Invite code"
// @Success      200 {object} services.Snapshot
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/code/{code} [get]
func (h *SessionHandler) GetSessionByCode(c *gin.Context) {
	snap, err := h.engine.SnapshotByInviteCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetLeaderboard godoc
// @Summary      Session leaderboard
// @Description  Participants ranked by score, ties in join order
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {array} services.LeaderboardEntry
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/leaderboard [get]
func (h *SessionHandler) GetLeaderboard(c *gin.Context) {
	board, err := h.engine.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// InviteLink returns the URL a player opens to join with code.
func (h *SessionHandler) InviteLink(code string) string {
	return fmt.Sprintf("%s/join/%s", h.publicBaseURL, code)
}

// GetInviteQR godoc
// @Summary      Invite QR code
// @Description  PNG QR code encoding the session's join link
// @Tags         sessions
// @Produce      png
// @Param        id path string true "Session ID"
// @Success      200 {file} binary
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/sessions/{id}/invite.png [get]
func (h *SessionHandler) GetInviteQR(c *gin.Context) {
	snap, err := h.engine.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if snap.Status == models.SessionStatusFinished {
		respondError(c, services.ErrSessionFinished)
		return
	}

	png, err := qrcode.Encode(h.InviteLink(snap.InviteCode), qrcode.Medium, inviteQRSize)
	if err != nil {
		respondError(c, fmt.Errorf("encode invite qr: %w", err))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
