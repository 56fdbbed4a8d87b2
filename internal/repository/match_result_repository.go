package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/database"
)

type MatchResultRepository struct {
	db *database.DB
}

func NewMatchResultRepository(db *database.DB) *MatchResultRepository {
	return &MatchResultRepository{db: db}
}

// SaveResult inserts one player's final row. The id is filled in on success.
func (r *MatchResultRepository) SaveResult(ctx context.Context, result *models.MatchResult) error {
	query := `
		INSERT INTO match_results (
			session_id, user_id, opponent_id, total_points,
			correct_answers, wrong_answers, time_spent_ms, has_won, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var hasWon sql.NullBool
	if result.HasWon != nil {
		hasWon = sql.NullBool{Bool: *result.HasWon, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		result.SessionID,
		result.UserID,
		result.OpponentID,
		result.TotalPoints,
		result.CorrectAnswers,
		result.WrongAnswers,
		result.TimeSpentMs,
		hasWon,
		result.FinishedAt,
	).Scan(&result.ID)

	if err != nil {
		return fmt.Errorf("failed to save match result: %w", err)
	}

	return nil
}

// MarkWinner sets has_won for both rows of a session and credits the win.
func (r *MatchResultRepository) MarkWinner(ctx context.Context, sessionID, winnerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE match_results
		SET has_won = (user_id = $2)
		WHERE session_id = $1
	`, sessionID, winnerID)
	if err != nil {
		return fmt.Errorf("failed to mark winner: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no match results for session %s", sessionID)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_stats
		SET wins = wins + 1, updated_at = NOW()
		WHERE user_id = $1
	`, winnerID); err != nil {
		return fmt.Errorf("failed to credit win: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit winner: %w", err)
	}
	return nil
}

// MarkDraw clears has_won on both rows of a session.
func (r *MatchResultRepository) MarkDraw(ctx context.Context, sessionID string) error {
	query := `
		UPDATE match_results
		SET has_won = NULL
		WHERE session_id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to mark draw: %w", err)
	}
	return nil
}

// IncrementUserStats adds one finished game to the user's aggregate row.
func (r *MatchResultRepository) IncrementUserStats(ctx context.Context, userID string, record models.FinalRecord) error {
	query := `
		INSERT INTO user_stats (
			user_id, games_played, wins, total_points,
			correct_answers, wrong_answers, time_spent_ms, updated_at
		)
		VALUES ($1, 1, 0, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			games_played    = user_stats.games_played + 1,
			total_points    = user_stats.total_points + EXCLUDED.total_points,
			correct_answers = user_stats.correct_answers + EXCLUDED.correct_answers,
			wrong_answers   = user_stats.wrong_answers + EXCLUDED.wrong_answers,
			time_spent_ms   = user_stats.time_spent_ms + EXCLUDED.time_spent_ms,
			updated_at      = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		userID,
		record.TotalPoints,
		record.CorrectAnswers,
		record.WrongAnswers,
		record.TimeSpentMs,
	)
	if err != nil {
		return fmt.Errorf("failed to increment user stats: %w", err)
	}
	return nil
}

// FindBySession returns the rows of one session.
func (r *MatchResultRepository) FindBySession(ctx context.Context, sessionID string) ([]*models.MatchResult, error) {
	query := `
		SELECT id, session_id, user_id, opponent_id, total_points,
		       correct_answers, wrong_answers, time_spent_ms, has_won, finished_at
		FROM match_results
		WHERE session_id = $1
		ORDER BY finished_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query match results: %w", err)
	}
	defer rows.Close()

	results := make([]*models.MatchResult, 0, 2)
	for rows.Next() {
		res := &models.MatchResult{}
		var hasWon sql.NullBool
		if err := rows.Scan(
			&res.ID,
			&res.SessionID,
			&res.UserID,
			&res.OpponentID,
			&res.TotalPoints,
			&res.CorrectAnswers,
			&res.WrongAnswers,
			&res.TimeSpentMs,
			&hasWon,
			&res.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match result: %w", err)
		}
		if hasWon.Valid {
			v := hasWon.Bool
			res.HasWon = &v
		}
		results = append(results, res)
	}

	return results, rows.Err()
}
