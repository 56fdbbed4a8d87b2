package handlers

import (
	"context"
	"net/http"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/api/middleware"
	"github.com/AmirShokry/medicalchallengearena-sub000/internal/websocket"
	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler upgrades authenticated requests into hub clients.
type WebSocketHandler struct {
	// ctx outlives the request; it is cancelled on server shutdown.
	ctx      context.Context
	hub      *websocket.Hub
	upgrader *gorillaws.Upgrader
	handler  websocket.Handler
	limiter  *ratelimit.RateLimiter
	logger   *zap.Logger
}

func NewWebSocketHandler(ctx context.Context, hub *websocket.Hub, upgrader *gorillaws.Upgrader, handler websocket.Handler, limiter *ratelimit.RateLimiter, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		ctx:      ctx,
		hub:      hub,
		upgrader: upgrader,
		handler:  handler,
		limiter:  limiter,
		logger:   logger,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	websocket.ServeWs(h.ctx, h.hub, h.upgrader, h.handler, h.limiter, c.Writer, c.Request, identity, h.logger)
}
