package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"go.uber.org/zap"
)

type sentEvent struct {
	To      string
	Event   string
	Payload interface{}
}

// fakeTransport records every emitted event.
type fakeTransport struct {
	mu    sync.Mutex
	conns map[string]string
	order []string
	rooms map[string]map[string]bool
	sent  []sentEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		conns: make(map[string]string),
		rooms: make(map[string]map[string]bool),
	}
}

func (f *fakeTransport) connect(transportID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[transportID] = userID
	f.order = append(f.order, transportID)
}

func (f *fakeTransport) disconnect(transportID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, transportID)
	for _, members := range f.rooms {
		delete(members, transportID)
	}
}

func (f *fakeTransport) Emit(transportID, event string, payload interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conns[transportID]; !ok {
		return false
	}
	f.sent = append(f.sent, sentEvent{To: transportID, Event: event, Payload: payload})
	return true
}

func (f *fakeTransport) EmitToRoom(room, except, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.rooms[room] {
		if id == except {
			continue
		}
		f.sent = append(f.sent, sentEvent{To: id, Event: event, Payload: payload})
	}
}

func (f *fakeTransport) Join(transportID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conns[transportID]; !ok {
		return
	}
	if f.rooms[room] == nil {
		f.rooms[room] = make(map[string]bool)
	}
	f.rooms[room][transportID] = true
}

func (f *fakeTransport) Leave(transportID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms[room], transportID)
}

func (f *fakeTransport) TransportsOf(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for i := len(f.order) - 1; i >= 0; i-- {
		id := f.order[i]
		if f.conns[id] == userID {
			out = append(out, id)
		}
	}
	return out
}

func (f *fakeTransport) Connected(transportID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.conns[transportID]
	return uid, ok
}

func (f *fakeTransport) inRoom(room, transportID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[room][transportID]
}

func (f *fakeTransport) eventsTo(transportID, event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.sent {
		if e.To == transportID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) last(transportID, event string) (sentEvent, bool) {
	evs := f.eventsTo(transportID, event)
	if len(evs) == 0 {
		return sentEvent{}, false
	}
	return evs[len(evs)-1], true
}

type fakeFriends struct {
	graph map[string][]string
	err   error
}

func (f *fakeFriends) AcceptedFriendIDs(_ context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.graph[userID], nil
}

type fakeDecks struct {
	mu     sync.Mutex
	deck   models.Deck
	err    error
	panics bool
	calls  []models.DeckParams
}

func (f *fakeDecks) AssembleDeck(_ context.Context, params models.DeckParams) (models.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	if f.panics {
		panic("content provider exploded")
	}
	return f.deck, f.err
}

type fakeResults struct {
	mu      sync.Mutex
	rows    map[string][]*models.MatchResult
	stats   map[string]models.FinalRecord
	saveErr error
	// afterSave runs once a row is written, outside the lock.
	afterSave func(r *models.MatchResult)
}

func newFakeResults() *fakeResults {
	return &fakeResults{
		rows:  make(map[string][]*models.MatchResult),
		stats: make(map[string]models.FinalRecord),
	}
}

func (f *fakeResults) SaveResult(_ context.Context, r *models.MatchResult) error {
	f.mu.Lock()
	if f.saveErr != nil {
		f.mu.Unlock()
		return f.saveErr
	}
	row := *r
	f.rows[r.SessionID] = append(f.rows[r.SessionID], &row)
	hook := f.afterSave
	f.mu.Unlock()

	if hook != nil {
		hook(r)
	}
	return nil
}

func (f *fakeResults) MarkWinner(_ context.Context, sessionID, winnerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows[sessionID] {
		if r.UserID == winnerID {
			won := true
			r.HasWon = &won
		}
	}
	return nil
}

func (f *fakeResults) MarkDraw(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows[sessionID] {
		r.HasWon = nil
	}
	return nil
}

func (f *fakeResults) IncrementUserStats(_ context.Context, userID string, rec models.FinalRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.stats[userID]
	cur.TotalPoints += rec.TotalPoints
	cur.CorrectAnswers += rec.CorrectAnswers
	cur.WrongAnswers += rec.WrongAnswers
	cur.TimeSpentMs += rec.TimeSpentMs
	f.stats[userID] = cur
	return nil
}

func (f *fakeResults) rowsFor(sessionID string) []models.MatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.MatchResult, 0, len(f.rows[sessionID]))
	for _, r := range f.rows[sessionID] {
		out = append(out, *r)
	}
	return out
}

// testDeck builds a deck whose i-th case has counts[i] questions.
func testDeck(counts ...int) models.Deck {
	deck := make(models.Deck, 0, len(counts))
	qid := uint(1)
	for i, n := range counts {
		c := models.Case{ID: uint(i + 1), Title: "case"}
		for j := 0; j < n; j++ {
			c.Questions = append(c.Questions, models.Question{
				ID:       qid,
				CaseID:   c.ID,
				Position: j,
				Choices: []models.Choice{
					{Position: 0, Body: "a", IsCorrect: true},
					{Position: 1, Body: "b"},
				},
			})
			qid++
		}
		deck = append(deck, c)
	}
	return deck
}

type harness struct {
	t           *testing.T
	transport   *fakeTransport
	friends     *fakeFriends
	decks       *fakeDecks
	results     *fakeResults
	presence    *PresenceService
	pool        *MatchmakingPool
	sessions    *SessionStore
	peers       *PeerTable
	matchmaking *MatchmakingService
	relay       *RelayService
	game        *GameService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()

	h := &harness{
		t:         t,
		transport: newFakeTransport(),
		friends:   &fakeFriends{graph: map[string][]string{}},
		decks:     &fakeDecks{deck: testDeck(3, 2)},
		results:   newFakeResults(),
	}
	h.presence = NewPresenceService(h.friends, logger)
	h.pool = NewMatchmakingPool(DefaultCandidateWindow)
	h.sessions = NewSessionStore(logger)
	h.peers = NewPeerTable()
	h.matchmaking = NewMatchmakingService(h.transport, h.presence, h.pool, h.sessions, h.peers, h.decks, 10, logger)
	h.relay = NewRelayService(h.transport, h.sessions, h.peers, logger)
	results := NewResultService(h.sessions, h.results, logger)
	h.game = NewGameService(h.transport, h.presence, h.pool, h.sessions, h.peers, h.matchmaking, h.relay, results, logger)
	return h
}

func (h *harness) connect(transportID, userID string) {
	h.transport.connect(transportID, userID)
	h.game.OnConnect(transportID, models.Identity{UserID: userID, Username: userID + "-name"})
}

func (h *harness) disconnect(transportID string) {
	h.transport.disconnect(transportID)
	h.game.OnDisconnect(transportID)
}

func (h *harness) send(transportID, event string, payload interface{}) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("marshal payload: %v", err)
		}
		raw = b
	}
	h.game.Handle(context.Background(), transportID, event, raw)
}

// startMatch pairs a and b through challenge and starts the game as a.
func (h *harness) startMatch(aTransport, bTransport string) models.MatchSession {
	h.t.Helper()
	h.send(aTransport, models.EventChallenge, nil)
	h.send(bTransport, models.EventChallenge, nil)
	h.send(aTransport, models.EventStartGame, models.DeckParams{CategoryIDs: []uint{1}, Count: 2})

	aUser, _ := h.transport.Connected(aTransport)
	ms, err := h.sessions.FindSessionByUserID(aUser)
	if err != nil {
		h.t.Fatalf("session not created: %v", err)
	}
	return ms
}
