package service

import (
	"sync"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewSession describes a match to install in the store.
type NewSession struct {
	RoomKey   string
	Deck      models.Deck
	Player1ID string
	Player2ID string
	MasterID  string
}

// AdvanceResult is the outcome of AdvanceQuestion. Advanced is false when the
// call observed an advance that already happened.
type AdvanceResult struct {
	Advanced bool
	Finished bool
	Cursor   models.Cursor
}

// FinishState is returned by MarkPersisted.
type FinishState struct {
	Complete bool
	Session  models.MatchSession
}

// SessionStore is the authoritative in-memory record of active matches.
// Operations on one room are serialized by that room's mutex; different
// rooms proceed in parallel.
type SessionStore struct {
	mu     sync.RWMutex
	rooms  map[string]*roomEntry
	byUser map[string]string // userID -> roomKey

	now    func() time.Time
	logger *zap.Logger
}

type roomEntry struct {
	mu      sync.Mutex
	session models.MatchSession
	closed  bool
}

func NewSessionStore(logger *zap.Logger) *SessionStore {
	return &SessionStore{
		rooms:  make(map[string]*roomEntry),
		byUser: make(map[string]string),
		now:    time.Now,
		logger: logger,
	}
}

// CreateSession installs a new match and indexes both users to its room. It
// fails if either user already has an active session.
func (s *SessionStore) CreateSession(ns NewSession) (models.MatchSession, error) {
	if ns.RoomKey == "" || ns.Player1ID == "" || ns.Player2ID == "" || ns.Player1ID == ns.Player2ID {
		return models.MatchSession{}, ErrInvalidInput
	}
	if len(ns.Deck) == 0 {
		return models.MatchSession{}, ErrEmptyDeck
	}

	now := s.now()
	session := models.MatchSession{
		ID:              uuid.New().String(),
		RoomKey:         ns.RoomKey,
		Deck:            ns.Deck,
		Player1ID:       ns.Player1ID,
		Player2ID:       ns.Player2ID,
		Player1Progress: models.NewPlayerProgress(now),
		Player2Progress: models.NewPlayerProgress(now),
		Player1Conn:     models.ConnConnected,
		Player2Conn:     models.ConnConnected,
		MasterID:        ns.MasterID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if session.MasterID == "" {
		session.MasterID = ns.Player1ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.byUser[ns.Player1ID]; busy {
		return models.MatchSession{}, ErrUserAlreadyInSession
	}
	if _, busy := s.byUser[ns.Player2ID]; busy {
		return models.MatchSession{}, ErrUserAlreadyInSession
	}
	if _, exists := s.rooms[ns.RoomKey]; exists {
		return models.MatchSession{}, ErrUserAlreadyInSession
	}

	s.rooms[ns.RoomKey] = &roomEntry{session: session}
	s.byUser[ns.Player1ID] = ns.RoomKey
	s.byUser[ns.Player2ID] = ns.RoomKey

	s.logger.Info("Session created",
		zap.String("sessionId", session.ID),
		zap.String("room", ns.RoomKey),
		zap.String("player1", ns.Player1ID),
		zap.String("player2", ns.Player2ID),
		zap.Int("cases", len(ns.Deck)))

	return session, nil
}

// withRoom runs fn with the room locked. fn may mutate the session in place.
func (s *SessionStore) withRoom(roomKey string, fn func(*models.MatchSession) error) error {
	s.mu.RLock()
	entry, ok := s.rooms[roomKey]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.closed {
		return ErrSessionNotFound
	}
	return fn(&entry.session)
}

// RecordAnswer appends answer to userID's progress, replaces the stats
// snapshot and marks the current question solved. The opponent is untouched.
func (s *SessionStore) RecordAnswer(roomKey, userID string, answer models.AnswerRecord, stats models.AggregateStats) (models.PlayerProgress, error) {
	var out models.PlayerProgress
	err := s.withRoom(roomKey, func(ms *models.MatchSession) error {
		now := s.now()
		switch ms.Seat(userID) {
		case 1:
			ms.Player1Progress = ms.Player1Progress.WithAnswer(answer, stats, now)
			out = ms.Player1Progress
		case 2:
			ms.Player2Progress = ms.Player2Progress.WithAnswer(answer, stats, now)
			out = ms.Player2Progress
		default:
			return ErrNotParticipant
		}
		ms.UpdatedAt = now
		return nil
	})
	return out, err
}

// AdvanceQuestion moves both players to the next question exactly once per
// solved cycle. When neither player is marked solved the call is a duplicate
// of an advance that already happened and nothing changes.
func (s *SessionStore) AdvanceQuestion(roomKey string) (AdvanceResult, error) {
	var res AdvanceResult
	err := s.withRoom(roomKey, func(ms *models.MatchSession) error {
		cur := ms.Player1Progress.Cursor()
		res.Cursor = cur

		if !ms.Player1Progress.HasSolvedCurrent && !ms.Player2Progress.HasSolvedCurrent {
			return nil
		}
		if cur.CaseIndex >= len(ms.Deck) {
			res.Finished = true
			return nil
		}

		next := nextCursor(ms.Deck, cur)
		ms.Player1Progress = ms.Player1Progress.AtCursor(next)
		ms.Player2Progress = ms.Player2Progress.AtCursor(next)
		ms.UpdatedAt = s.now()

		res.Advanced = true
		res.Cursor = next
		res.Finished = next.CaseIndex >= len(ms.Deck)
		return nil
	})
	return res, err
}

// nextCursor increments the flat number and in-case index, rolling over to
// the next non-empty case when the current one is exhausted.
func nextCursor(deck models.Deck, cur models.Cursor) models.Cursor {
	next := models.Cursor{
		CaseIndex:      cur.CaseIndex,
		QuestionIndex:  cur.QuestionIndex + 1,
		QuestionNumber: cur.QuestionNumber + 1,
	}
	if next.QuestionIndex >= deck.QuestionCount(next.CaseIndex) {
		next.CaseIndex++
		next.QuestionIndex = 0
		for next.CaseIndex < len(deck) && deck.QuestionCount(next.CaseIndex) == 0 {
			next.CaseIndex++
		}
	}
	return next
}

// SetConnectionState records a participant's connection state.
func (s *SessionStore) SetConnectionState(roomKey, userID string, state models.ConnState) error {
	return s.withRoom(roomKey, func(ms *models.MatchSession) error {
		switch ms.Seat(userID) {
		case 1:
			ms.Player1Conn = state
		case 2:
			ms.Player2Conn = state
		default:
			return ErrNotParticipant
		}
		ms.UpdatedAt = s.now()
		return nil
	})
}

// ReportFinished stores userID's final record. A second report is rejected
// until DiscardReport clears a failed one.
func (s *SessionStore) ReportFinished(roomKey, userID string, record models.FinalRecord) (models.MatchSession, error) {
	var out models.MatchSession
	err := s.withRoom(roomKey, func(ms *models.MatchSession) error {
		slot, err := finalSlot(ms, userID)
		if err != nil {
			return err
		}
		if *slot != nil {
			return ErrAlreadyReported
		}
		now := s.now()
		*slot = &models.FinalReport{Record: record, ReportedAt: now}
		ms.UpdatedAt = now
		out = *ms
		return nil
	})
	return out, err
}

// MarkPersisted flags userID's result row as durable. Exactly one caller, the
// one that persists the second row, observes Complete.
func (s *SessionStore) MarkPersisted(roomKey, userID string) (FinishState, error) {
	var out FinishState
	err := s.withRoom(roomKey, func(ms *models.MatchSession) error {
		slot, err := finalSlot(ms, userID)
		if err != nil {
			return err
		}
		if *slot == nil {
			return ErrInvalidInput
		}
		if (*slot).Persisted {
			out.Session = *ms
			return nil
		}
		report := **slot
		report.Persisted = true
		*slot = &report

		out.Complete = ms.Player1Final != nil && ms.Player1Final.Persisted &&
			ms.Player2Final != nil && ms.Player2Final.Persisted
		out.Session = *ms
		return nil
	})
	return out, err
}

// DiscardReport drops an unpersisted report so the client can retry.
func (s *SessionStore) DiscardReport(roomKey, userID string) error {
	return s.withRoom(roomKey, func(ms *models.MatchSession) error {
		slot, err := finalSlot(ms, userID)
		if err != nil {
			return err
		}
		if *slot != nil && !(*slot).Persisted {
			*slot = nil
		}
		return nil
	})
}

func finalSlot(ms *models.MatchSession, userID string) (**models.FinalReport, error) {
	switch ms.Seat(userID) {
	case 1:
		return &ms.Player1Final, nil
	case 2:
		return &ms.Player2Final, nil
	}
	return nil, ErrNotParticipant
}

// RoomOf returns the room key indexed for userID.
func (s *SessionStore) RoomOf(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byUser[userID]
	return key, ok
}

// HasActiveSession reports whether userID is indexed to a session.
func (s *SessionStore) HasActiveSession(userID string) bool {
	_, ok := s.RoomOf(userID)
	return ok
}

// Get returns a copy of the session in roomKey.
func (s *SessionStore) Get(roomKey string) (models.MatchSession, error) {
	var out models.MatchSession
	err := s.withRoom(roomKey, func(ms *models.MatchSession) error {
		out = *ms
		return nil
	})
	return out, err
}

// FindSessionByUserID returns the active session of userID.
func (s *SessionStore) FindSessionByUserID(userID string) (models.MatchSession, error) {
	key, ok := s.RoomOf(userID)
	if !ok {
		return models.MatchSession{}, ErrSessionNotFound
	}
	return s.Get(key)
}

func (s *SessionStore) GetOpponentID(roomKey, userID string) (string, error) {
	ms, err := s.Get(roomKey)
	if err != nil {
		return "", err
	}
	opp := ms.OpponentOf(userID)
	if opp == "" {
		return "", ErrNotParticipant
	}
	return opp, nil
}

func (s *SessionStore) GetProgress(roomKey, userID string) (models.PlayerProgress, error) {
	ms, err := s.Get(roomKey)
	if err != nil {
		return models.PlayerProgress{}, err
	}
	switch ms.Seat(userID) {
	case 1:
		return ms.Player1Progress, nil
	case 2:
		return ms.Player2Progress, nil
	}
	return models.PlayerProgress{}, ErrNotParticipant
}

func (s *SessionStore) GetOpponentProgress(roomKey, userID string) (models.PlayerProgress, error) {
	opp, err := s.GetOpponentID(roomKey, userID)
	if err != nil {
		return models.PlayerProgress{}, err
	}
	return s.GetProgress(roomKey, opp)
}

func (s *SessionStore) GetConnectionState(roomKey, userID string) (models.ConnState, error) {
	ms, err := s.Get(roomKey)
	if err != nil {
		return "", err
	}
	switch ms.Seat(userID) {
	case 1:
		return ms.Player1Conn, nil
	case 2:
		return ms.Player2Conn, nil
	}
	return "", ErrNotParticipant
}

// Snapshot builds the state a reconnecting client replaces its view with.
func (s *SessionStore) Snapshot(roomKey, userID string) (models.SessionSnapshot, error) {
	ms, err := s.Get(roomKey)
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	snap := models.SessionSnapshot{
		SessionID:  ms.ID,
		RoomKey:    ms.RoomKey,
		Deck:       ms.Deck,
		IsMaster:   ms.MasterID == userID,
		ServerTime: s.now(),
	}
	switch ms.Seat(userID) {
	case 1:
		snap.OpponentID = ms.Player2ID
		snap.Progress = ms.Player1Progress
		snap.OpponentProgress = ms.Player2Progress
		snap.OpponentConn = ms.Player2Conn
	case 2:
		snap.OpponentID = ms.Player1ID
		snap.Progress = ms.Player2Progress
		snap.OpponentProgress = ms.Player1Progress
		snap.OpponentConn = ms.Player1Conn
	default:
		return models.SessionSnapshot{}, ErrNotParticipant
	}
	return snap, nil
}

// CleanupSession removes the session and both user index entries. Only the
// first call for a room reports true.
func (s *SessionStore) CleanupSession(roomKey string) (models.MatchSession, bool) {
	return s.remove(roomKey, nil)
}

// cleanupIfStale removes the room only if it was not updated since cutoff.
// The check and the removal happen under the same locks.
func (s *SessionStore) cleanupIfStale(roomKey string, cutoff time.Time) (models.MatchSession, bool) {
	return s.remove(roomKey, func(ms *models.MatchSession) bool {
		return ms.UpdatedAt.Before(cutoff)
	})
}

func (s *SessionStore) remove(roomKey string, cond func(*models.MatchSession) bool) (models.MatchSession, bool) {
	s.mu.Lock()
	entry, ok := s.rooms[roomKey]
	if !ok {
		s.mu.Unlock()
		return models.MatchSession{}, false
	}

	entry.mu.Lock()
	if cond != nil && !cond(&entry.session) {
		entry.mu.Unlock()
		s.mu.Unlock()
		return models.MatchSession{}, false
	}
	delete(s.rooms, roomKey)
	entry.closed = true
	ms := entry.session
	entry.mu.Unlock()

	for _, uid := range []string{ms.Player1ID, ms.Player2ID} {
		if s.byUser[uid] == roomKey {
			delete(s.byUser, uid)
		}
	}
	s.mu.Unlock()

	s.logger.Info("Session removed",
		zap.String("sessionId", ms.ID),
		zap.String("room", roomKey))

	return ms, true
}

// SweepStale removes sessions whose last update is older than maxAge and
// returns them.
func (s *SessionStore) SweepStale(maxAge time.Duration) []models.MatchSession {
	cutoff := s.now().Add(-maxAge)

	s.mu.RLock()
	candidates := make([]string, 0)
	for key, entry := range s.rooms {
		entry.mu.Lock()
		if entry.session.UpdatedAt.Before(cutoff) {
			candidates = append(candidates, key)
		}
		entry.mu.Unlock()
	}
	s.mu.RUnlock()

	removed := make([]models.MatchSession, 0, len(candidates))
	for _, key := range candidates {
		if ms, ok := s.cleanupIfStale(key, cutoff); ok {
			removed = append(removed, ms)
		}
	}

	if len(removed) > 0 {
		s.logger.Info("Swept stale sessions",
			zap.Int("removed", len(removed)),
			zap.Duration("maxAge", maxAge))
	}
	return removed
}

// Count returns the number of active sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
