package service

import (
	"context"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
)

// Transport delivers events to live connections and groups them into rooms.
// The websocket Hub is the production implementation.
type Transport interface {
	// Emit sends to a single transport and reports whether it was queued.
	Emit(transportID, event string, payload interface{}) bool
	// EmitToRoom sends to every member of room except exceptTransportID.
	EmitToRoom(room, exceptTransportID, event string, payload interface{})
	Join(transportID, room string)
	Leave(transportID, room string)
	// TransportsOf lists live transports authenticated as userID, newest first.
	TransportsOf(userID string) []string
	// Connected reports the authenticated user of a live transport.
	Connected(transportID string) (userID string, ok bool)
}

// FriendStore reads the accepted friendship graph.
type FriendStore interface {
	AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// DeckProvider assembles an ordered deck. Failures are not retried.
type DeckProvider interface {
	AssembleDeck(ctx context.Context, params models.DeckParams) (models.Deck, error)
}

// ResultStore persists final match rows and per-user stat increments.
// SaveResult writes hasWon=false; MarkWinner flips exactly one row to true
// and MarkDraw sets both rows to NULL.
type ResultStore interface {
	SaveResult(ctx context.Context, result *models.MatchResult) error
	MarkWinner(ctx context.Context, sessionID, winnerID string) error
	MarkDraw(ctx context.Context, sessionID string) error
	IncrementUserStats(ctx context.Context, userID string, record models.FinalRecord) error
}

// emitToUser sends to every live transport of userID and returns how many
// accepted the event.
func emitToUser(t Transport, userID, event string, payload interface{}) int {
	sent := 0
	for _, id := range t.TransportsOf(userID) {
		if t.Emit(id, event, payload) {
			sent++
		}
	}
	return sent
}
