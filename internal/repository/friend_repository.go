package repository

import (
	"context"
	"fmt"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/database"
	"github.com/lib/pq"
)

type FriendRepository struct {
	db *database.DB
}

func NewFriendRepository(db *database.DB) *FriendRepository {
	return &FriendRepository{db: db}
}

// AcceptedFriendIDs returns the other side of every accepted friendship of
// userID. Friendships are stored once per pair in either direction.
func (r *FriendRepository) AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT CASE WHEN user_id = $1 THEN friend_id ELSE user_id END
		FROM friendships
		WHERE (user_id = $1 OR friend_id = $1) AND status = $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, models.FriendshipAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to query friends: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friends: %w", err)
	}

	return ids, nil
}

// FriendsAmong filters candidateIDs down to accepted friends of userID.
func (r *FriendRepository) FriendsAmong(ctx context.Context, userID string, candidateIDs []string) ([]string, error) {
	if len(candidateIDs) == 0 {
		return []string{}, nil
	}

	query := `
		SELECT CASE WHEN user_id = $1 THEN friend_id ELSE user_id END AS other
		FROM friendships
		WHERE status = $2
		  AND ((user_id = $1 AND friend_id = ANY($3)) OR (friend_id = $1 AND user_id = ANY($3)))
	`

	rows, err := r.db.QueryContext(ctx, query, userID, models.FriendshipAccepted, pq.Array(candidateIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to filter friends: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, len(candidateIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
