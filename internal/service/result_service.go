package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"go.uber.org/zap"
)

// ResultService persists each player's final record and decides the match
// once both rows are durable.
type ResultService struct {
	sessions *SessionStore
	results  ResultStore
	now      func() time.Time
	logger   *zap.Logger
}

func NewResultService(sessions *SessionStore, results ResultStore, logger *zap.Logger) *ResultService {
	return &ResultService{
		sessions: sessions,
		results:  results,
		now:      time.Now,
		logger:   logger,
	}
}

// Report stores the caller's final record. The row is written with
// hasWon=false. The call that persists the second row decides the match,
// removes the session and returns the outcome; every other call returns nil.
func (s *ResultService) Report(ctx context.Context, userID string, req models.ReportFinishedRequest) (*models.MatchOutcome, models.MatchSession, error) {
	room, ok := s.sessions.RoomOf(userID)
	if !ok {
		return nil, models.MatchSession{}, ErrSessionNotFound
	}

	ms, err := s.sessions.ReportFinished(room, userID, req.Record)
	if err != nil {
		return nil, models.MatchSession{}, err
	}
	if req.SessionID != "" && req.SessionID != ms.ID {
		_ = s.sessions.DiscardReport(room, userID)
		return nil, models.MatchSession{}, ErrSessionNotFound
	}

	lost := false
	row := &models.MatchResult{
		SessionID:      ms.ID,
		UserID:         userID,
		OpponentID:     ms.OpponentOf(userID),
		TotalPoints:    req.Record.TotalPoints,
		CorrectAnswers: req.Record.CorrectAnswers,
		WrongAnswers:   req.Record.WrongAnswers,
		TimeSpentMs:    req.Record.TimeSpentMs,
		HasWon:         &lost,
		FinishedAt:     s.now(),
	}

	// No session lock is held across the store calls.
	if err := s.results.SaveResult(ctx, row); err != nil {
		_ = s.sessions.DiscardReport(room, userID)
		return nil, models.MatchSession{}, fmt.Errorf("failed to save match result: %w", err)
	}
	if err := s.results.IncrementUserStats(ctx, userID, req.Record); err != nil {
		s.logger.Error("Failed to increment user stats",
			zap.String("userId", userID),
			zap.String("sessionId", ms.ID),
			zap.Error(err))
	}

	state, err := s.sessions.MarkPersisted(room, userID)
	if errors.Is(err, ErrSessionNotFound) {
		// Removed while the row was being written; the row stays, no outcome is decided.
		s.logger.Warn("Session removed before result could be decided",
			zap.String("sessionId", ms.ID),
			zap.String("room", room),
			zap.String("userId", userID))
		return nil, ms, nil
	}
	if err != nil {
		return nil, models.MatchSession{}, err
	}
	if !state.Complete {
		s.logger.Info("Final record stored, waiting for opponent",
			zap.String("sessionId", ms.ID),
			zap.String("userId", userID))
		return nil, state.Session, nil
	}

	outcome := s.decide(ctx, state.Session)
	final, removed := s.sessions.CleanupSession(room)
	if !removed {
		final = state.Session
	}
	return &outcome, final, nil
}

func (s *ResultService) decide(ctx context.Context, ms models.MatchSession) models.MatchOutcome {
	outcome := models.MatchOutcome{SessionID: ms.ID}
	p1, p2 := ms.Player1Final.Record.TotalPoints, ms.Player2Final.Record.TotalPoints

	var winner string
	switch {
	case p1 > p2:
		winner = ms.Player1ID
	case p2 > p1:
		winner = ms.Player2ID
	}

	if winner == "" {
		outcome.Draw = true
		if err := s.results.MarkDraw(ctx, ms.ID); err != nil {
			s.logger.Error("Failed to record draw",
				zap.String("sessionId", ms.ID),
				zap.Error(err))
		}
	} else {
		outcome.WinnerID = &winner
		if err := s.results.MarkWinner(ctx, ms.ID, winner); err != nil {
			s.logger.Error("Failed to record winner",
				zap.String("sessionId", ms.ID),
				zap.String("winnerId", winner),
				zap.Error(err))
		}
	}

	s.logger.Info("Match decided",
		zap.String("sessionId", ms.ID),
		zap.Int("player1Points", p1),
		zap.Int("player2Points", p2),
		zap.Bool("draw", outcome.Draw))
	return outcome
}
