package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/ratelimit"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 16 * 1024

	sendBufferSize = 256
)

// Handler receives the lifecycle and inbound events of every client.
type Handler interface {
	OnConnect(transportID string, id models.Identity)
	OnDisconnect(transportID string)
	Handle(ctx context.Context, transportID, event string, payload json.RawMessage)
}

// Upgrader builds the websocket upgrader. An empty origin list accepts any
// origin.
func Upgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// inbound is the frame clients send.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client is one live websocket connection.
type Client struct {
	id       string
	identity models.Identity
	hub      *Hub
	conn     *websocket.Conn
	send     chan *Message
	handler  Handler
	limiter  *ratelimit.RateLimiter
	logger   *zap.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, identity models.Identity, handler Handler, limiter *ratelimit.RateLimiter, logger *zap.Logger) *Client {
	id := newTransportID()
	return &Client{
		id:       id,
		identity: identity,
		hub:      hub,
		conn:     conn,
		send:     make(chan *Message, sendBufferSize),
		handler:  handler,
		limiter:  limiter,
		logger:   logger.With(zap.String("transportId", id), zap.String("userId", identity.UserID)),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// readPump reads frames until the connection drops, then unregisters the
// client and reports the disconnect.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if c.hub.unregister(c) {
			c.handler.OnDisconnect(c.id)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}
		c.dispatch(ctx, data)
	}
}

// dispatch decodes one frame and hands it to the handler.
func (c *Client) dispatch(ctx context.Context, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.hub.Emit(c.id, models.EventError, models.ErrorPayload{Reason: "malformed message"})
		return
	}

	if c.limiter != nil && !c.limiter.Allow(c.identity.UserID) {
		c.logger.Warn("Inbound message rate limited", zap.String("type", msg.Type))
		c.hub.Emit(c.id, models.EventError, models.ErrorPayload{Event: msg.Type, Reason: "rate limited"})
		return
	}

	c.handler.Handle(ctx, c.id, msg.Type, msg.Payload)
}

// writePump drains the send channel to the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message",
					zap.String("type", message.Type),
					zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades an authenticated request and starts the client's pumps.
// The handler sees OnConnect before any inbound frame.
func ServeWs(ctx context.Context, hub *Hub, upgrader *websocket.Upgrader, handler Handler, limiter *ratelimit.RateLimiter,
	w http.ResponseWriter, r *http.Request, identity models.Identity, logger *zap.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := NewClient(hub, conn, identity, handler, limiter, logger)
	hub.register(client)
	handler.OnConnect(client.id, identity)

	go client.writePump()
	go client.readPump(ctx)
}
