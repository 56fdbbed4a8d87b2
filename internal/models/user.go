package models

// Identity is the verified result of the authentication handshake.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
)

type Friendship struct {
	UserID   string           `json:"userId" db:"user_id"`
	FriendID string           `json:"friendId" db:"friend_id"`
	Status   FriendshipStatus `json:"status" db:"status"`
}
