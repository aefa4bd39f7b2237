package ws

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/ws"
	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/httputil"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

type Handler struct {
	hub    *ws.Hub
	logger *logger.Logger
}

func NewHandler(hub *ws.Hub, logger *logger.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// RegisterRoutes expects r to already require authentication.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Connect)
}

// Connect upgrades the request and subscribes the caller to pushes about
// their own appointments.
func (h *Handler) Connect(c *gin.Context) {
	actor, ok := middleware.Actor(c)
	if !ok {
		httputil.RespondWithError(c, errors.NewUnauthenticated("authentication required", nil))
		return
	}

	// The upgrader has already written an HTTP error on failure.
	if err := h.hub.Serve(c.Writer, c.Request, actor.ID); err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", actor.ID.String(), "error", err.Error())
	}
}
