package handlers

import (
	"net/http"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/services"

	"github.com/gin-gonic/gin"
)

type SystemHandler struct {
	engine  *services.Engine
	started time.Time
}

func NewSystemHandler(engine *services.Engine) *SystemHandler {
	return &SystemHandler{engine: engine, started: time.Now()}
}

type HealthResponse struct {
	Status         string `json:"status" example:"ok"`
	Uptime         string `json:"uptime" example:"1h2m3s"`
	LoadedSessions int    `json:"loaded_sessions" example:"3"`
}

// Health godoc
// @Summary      Liveness check
// @Tags         system
// @Produce      json
// @Success      200 {object} HealthResponse
// @Router       /healthz [get]
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:         "ok",
		Uptime:         time.Since(h.started).Round(time.Second).String(),
		LoadedSessions: h.engine.Loaded(),
	})
}

// Metrics godoc
// @Summary      Engine counters
// @Tags         system
// @Produce      json
// @Success      200 {object} services.MetricsSnapshot
// @Router       /metrics [get]
func (h *SystemHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Metrics().Snapshot())
}
