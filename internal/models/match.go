package models

import "time"

// MatchResult is the durable per-player row written when a match finishes.
// HasWon is nil for a draw and false until the winner is decided.
type MatchResult struct {
	ID             string    `json:"id" db:"id"`
	SessionID      string    `json:"sessionId" db:"session_id"`
	UserID         string    `json:"userId" db:"user_id"`
	OpponentID     string    `json:"opponentId" db:"opponent_id"`
	TotalPoints    int       `json:"totalPoints" db:"total_points"`
	CorrectAnswers int       `json:"correctAnswers" db:"correct_answers"`
	WrongAnswers   int       `json:"wrongAnswers" db:"wrong_answers"`
	TimeSpentMs    int64     `json:"timeSpentMs" db:"time_spent_ms"`
	HasWon         *bool     `json:"hasWon" db:"has_won"`
	FinishedAt     time.Time `json:"finishedAt" db:"finished_at"`
}

// MatchOutcome is broadcast once both players have reported.
type MatchOutcome struct {
	SessionID string  `json:"sessionId"`
	WinnerID  *string `json:"winnerId"`
	Draw      bool    `json:"draw"`
}
