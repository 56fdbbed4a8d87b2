package service

import (
	"errors"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"go.uber.org/zap"
)

// RelayService forwards gameplay events between the two participants of a
// match. The session store is the source of truth for who the opponent is;
// transport references are resolved on every call.
type RelayService struct {
	transport Transport
	sessions  *SessionStore
	peers     *PeerTable
	now       func() time.Time
	logger    *zap.Logger
}

func NewRelayService(transport Transport, sessions *SessionStore, peers *PeerTable, logger *zap.Logger) *RelayService {
	return &RelayService{
		transport: transport,
		sessions:  sessions,
		peers:     peers,
		now:       time.Now,
		logger:    logger,
	}
}

// ResolveRoom returns the caller's room. When the connection lost its room
// after a reconnect, the room is restored from the session store and the
// transport rejoins it.
func (s *RelayService) ResolveRoom(caller Caller) (string, bool) {
	if p, ok := s.peers.Get(caller.TransportID); ok && p.RoomKey != "" {
		if active, ok := s.sessions.RoomOf(caller.UserID); !ok || active == p.RoomKey {
			return p.RoomKey, true
		}
	}

	room, ok := s.sessions.RoomOf(caller.UserID)
	if !ok {
		return "", false
	}
	s.transport.Join(caller.TransportID, room)
	s.peers.SetRoom(caller.TransportID, room, "")

	s.logger.Debug("Restored room association",
		zap.String("userId", caller.UserID),
		zap.String("transportId", caller.TransportID),
		zap.String("room", room))
	return room, true
}

// ResolveOpponent finds the opponent's current transport.
//
// The session store names the opponent and the newest live transport
// authenticated as that user wins, preferring one already bound to the room.
// A cached transport is only used when it is still live and still belongs to
// the opponent.
func (s *RelayService) ResolveOpponent(caller Caller) (string, bool) {
	opponentID := ""
	if room, ok := s.ResolveRoom(caller); ok {
		if id, err := s.sessions.GetOpponentID(room, caller.UserID); err == nil {
			opponentID = id
			if t, ok := s.liveTransportOf(opponentID, room); ok {
				s.peers.SetRoom(caller.TransportID, room, t)
				return t, true
			}
		}
	}

	p, ok := s.peers.Get(caller.TransportID)
	if !ok || p.OpponentTransportID == "" {
		return "", false
	}
	uid, live := s.transport.Connected(p.OpponentTransportID)
	if !live || uid == caller.UserID || (opponentID != "" && uid != opponentID) {
		return "", false
	}
	return p.OpponentTransportID, true
}

func (s *RelayService) liveTransportOf(userID, room string) (string, bool) {
	ids := s.transport.TransportsOf(userID)
	if len(ids) == 0 {
		return "", false
	}
	for _, id := range ids {
		if p, ok := s.peers.Get(id); ok && p.RoomKey == room {
			return id, true
		}
	}
	return ids[0], true
}

// SubmitAnswer records the caller's answer and forwards it to the opponent.
// A missing opponent transport is not an error; the store already holds the
// answer.
func (s *RelayService) SubmitAnswer(caller Caller, req models.SubmitAnswerRequest) error {
	room, ok := s.ResolveRoom(caller)
	if !ok {
		return ErrSessionNotFound
	}

	if _, err := s.sessions.RecordAnswer(room, caller.UserID, req.Record, req.Stats); err != nil {
		return err
	}

	opp, ok := s.ResolveOpponent(caller)
	if !ok {
		s.logger.Warn("Opponent transport not found, answer not relayed",
			zap.String("userId", caller.UserID),
			zap.String("room", room))
		return nil
	}

	payload := models.OpponentAnsweredPayload{
		UserID: caller.UserID,
		Record: req.Record.Normalize(),
		Stats:  req.Stats,
	}
	if !s.transport.Emit(opp, models.EventOpponentAnswered, payload) {
		s.logger.Warn("Answer relay dropped",
			zap.String("userId", caller.UserID),
			zap.String("opponentTransportId", opp))
	}
	return nil
}

// RequestAdvance runs the idempotent advance and broadcasts the new cursor
// to the room. Duplicate requests are silently ignored.
func (s *RelayService) RequestAdvance(caller Caller) error {
	room, ok := s.ResolveRoom(caller)
	if !ok {
		return ErrSessionNotFound
	}

	res, err := s.sessions.AdvanceQuestion(room)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			s.logger.Debug("Advance for a closed session ignored",
				zap.String("userId", caller.UserID),
				zap.String("room", room))
			return nil
		}
		return err
	}

	payload := models.QuestionAdvancedPayload{
		Cursor:    res.Cursor,
		Finished:  res.Finished,
		Timestamp: s.now().UnixMilli(),
	}

	switch {
	case res.Advanced:
		s.transport.EmitToRoom(room, "", models.EventQuestionAdvanced, payload)
		// The opponent may not have rejoined the room yet after a reconnect.
		if opp, ok := s.ResolveOpponent(caller); ok {
			if p, _ := s.peers.Get(opp); p.RoomKey != room {
				s.transport.Emit(opp, models.EventQuestionAdvanced, payload)
			}
		}
		s.logger.Debug("Question advanced",
			zap.String("room", room),
			zap.Int("caseIndex", res.Cursor.CaseIndex),
			zap.Int("questionIndex", res.Cursor.QuestionIndex),
			zap.Int("questionNumber", res.Cursor.QuestionNumber),
			zap.Bool("finished", res.Finished))
	case res.Finished:
		s.transport.Emit(caller.TransportID, models.EventQuestionAdvanced, payload)
	default:
		s.logger.Debug("Duplicate advance ignored",
			zap.String("userId", caller.UserID),
			zap.String("room", room))
	}
	return nil
}

// NotifyOpponent sends an advisory event about the caller to the opponent.
func (s *RelayService) NotifyOpponent(caller Caller, event string) bool {
	opp, ok := s.ResolveOpponent(caller)
	if !ok {
		s.logger.Debug("Opponent transport not found, advisory dropped",
			zap.String("userId", caller.UserID),
			zap.String("event", event))
		return false
	}
	return s.transport.Emit(opp, event, models.OpponentPayload{UserID: caller.UserID})
}
