package models

import "time"

// PoolEntry is a transport waiting for a random opponent.
type PoolEntry struct {
	TransportID string    `json:"transportId"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	QueuedAt    time.Time `json:"queuedAt"`
}

// InvitationEdge lives only in connection-scoped data of both sides.
type InvitationEdge struct {
	InviterID       string    `json:"inviterId"`
	InviterName     string    `json:"inviterName"`
	InviteeID       string    `json:"inviteeId"`
	InviterAccepted bool      `json:"inviterAccepted"`
	InviteeAccepted bool      `json:"inviteeAccepted"`
	SentAt          time.Time `json:"sentAt"`
}

// Counterpart returns the other side of the edge as seen by userID.
func (e InvitationEdge) Counterpart(userID string) string {
	if userID == e.InviterID {
		return e.InviteeID
	}
	return e.InviterID
}

// PendingMatch is a room both sides agreed on, waiting for startGame.
type PendingMatch struct {
	RoomKey   string    `json:"roomKey"`
	MasterID  string    `json:"masterId"`
	Player1ID string    `json:"player1Id"`
	Player2ID string    `json:"player2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p PendingMatch) OpponentOf(userID string) string {
	if userID == p.Player1ID {
		return p.Player2ID
	}
	if userID == p.Player2ID {
		return p.Player1ID
	}
	return ""
}

// InviteEligibility answers checkCanInvite.
type InviteEligibility struct {
	UserID    string `json:"userId"`
	CanInvite bool   `json:"canInvite"`
	Reason    string `json:"reason,omitempty"`
}
