package websocket

import (
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Hub tracks live clients, the user each one authenticated as, and the rooms
// they joined. It implements service.Transport.
type Hub struct {
	mu sync.RWMutex

	// transportID -> client
	clients map[string]*Client
	// userID -> transportIDs, oldest first
	byUser map[string][]string
	// room -> transportIDs
	rooms map[string]map[string]struct{}

	logger *zap.Logger
}

// Message is the outbound frame.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		byUser:  make(map[string][]string),
		rooms:   make(map[string]map[string]struct{}),
		logger:  logger.Named("hub"),
	}
}

func newTransportID() string {
	return ulid.Make().String()
}

// register adds the client under a fresh transport id.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.id] = client
	h.byUser[client.identity.UserID] = append(h.byUser[client.identity.UserID], client.id)

	h.logger.Info("WebSocket client registered",
		zap.String("transportId", client.id),
		zap.String("userId", client.identity.UserID),
		zap.Int("totalClients", len(h.clients)))
}

// unregister removes the client from every index and closes its send channel.
// It reports false when the client was already gone.
func (h *Hub) unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client.id]; !exists {
		return false
	}
	delete(h.clients, client.id)

	uid := client.identity.UserID
	ids := h.byUser[uid]
	for i, id := range ids {
		if id == client.id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(h.byUser, uid)
	} else {
		h.byUser[uid] = ids
	}

	for room, members := range h.rooms {
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}

	close(client.send)
	h.logger.Info("WebSocket client unregistered",
		zap.String("transportId", client.id),
		zap.String("userId", uid),
		zap.Int("totalClients", len(h.clients)))
	return true
}

// Emit queues an event for one transport without blocking. A full buffer
// drops the event.
func (h *Hub) Emit(transportID, event string, payload interface{}) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[transportID]
	if !ok {
		return false
	}
	return h.queue(client, &Message{Type: event, Payload: payload})
}

func (h *Hub) queue(client *Client, msg *Message) bool {
	select {
	case client.send <- msg:
		return true
	default:
		h.logger.Warn("Client send channel full",
			zap.String("transportId", client.id),
			zap.String("type", msg.Type))
		return false
	}
}

func (h *Hub) EmitToRoom(room, exceptTransportID, event string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := &Message{Type: event, Payload: payload}
	for id := range h.rooms[room] {
		if id == exceptTransportID {
			continue
		}
		if client, ok := h.clients[id]; ok {
			h.queue(client, msg)
		}
	}
}

func (h *Hub) Join(transportID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[transportID]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[transportID] = struct{}{}
}

func (h *Hub) Leave(transportID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, transportID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// TransportsOf lists the live transports of userID, newest first.
func (h *Hub) TransportsOf(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := h.byUser[userID]
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

func (h *Hub) Connected(transportID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[transportID]
	if !ok {
		return "", false
	}
	return client.identity.UserID, true
}

// RoomMembers lists the transports joined to room.
func (h *Hub) RoomMembers(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		out = append(out, id)
	}
	return out
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll shuts every client's send channel so write pumps close their
// connections. Used on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
