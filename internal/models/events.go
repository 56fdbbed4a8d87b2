package models

import "time"

// Inbound event types.
const (
	EventChallenge         = "challenge"
	EventCancelMatchmaking = "cancelMatchmaking"
	EventSendInvitation    = "sendInvitation"
	EventAcceptInvitation  = "acceptInvitation"
	EventDeclineInvitation = "declineInvitation"
	EventStartGame         = "startGame"
	EventSubmitAnswer      = "submitAnswer"
	EventRequestAdvance    = "requestAdvance"
	EventReportFinished    = "reportFinished"
	EventUpdateStatus      = "updateStatus"
	EventCheckCanInvite    = "checkCanInvite"
	EventGetFriendsStatus  = "getFriendsStatus"
	EventUserAway          = "userAway"
	EventUserBack          = "userBack"
	EventRestoreSession    = "restoreSession"
	EventLeaveMatch        = "leaveMatch"
)

// Outbound event types.
const (
	EventMatchFound           = "matchFound"
	EventMatchmakingQueued    = "matchmakingQueued"
	EventInvitationReceived   = "invitationReceived"
	EventInvitationAccepted   = "invitationAccepted"
	EventInvitationDeclined   = "invitationDeclined"
	EventOpponentLeft         = "opponentLeft"
	EventGameStarted          = "gameStarted"
	EventGameSetupFailed      = "gameSetupFailed"
	EventOpponentAnswered     = "opponentAnswered"
	EventQuestionAdvanced     = "questionAdvanced"
	EventSessionRestored      = "sessionRestored"
	EventFriendStatusChanged  = "friendStatusChanged"
	EventFriendsStatus        = "friendsStatus"
	EventCanInviteResult      = "canInviteResult"
	EventOpponentDisconnected = "opponentDisconnected"
	EventOpponentReconnected  = "opponentReconnected"
	EventOpponentAway         = "opponentAway"
	EventOpponentBack         = "opponentBack"
	EventMatchResult          = "matchResult"
	EventError                = "error"
)

type UserRef struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type InvitationRequest struct {
	UserID string `json:"userId"`
}

type AcceptInvitationRequest struct {
	InviterID    string `json:"inviterId"`
	IsInvitation bool   `json:"isInvitation"`
}

type SubmitAnswerRequest struct {
	Record AnswerRecord   `json:"record"`
	Stats  AggregateStats `json:"stats"`
}

type ReportFinishedRequest struct {
	SessionID string      `json:"sessionId"`
	Record    FinalRecord `json:"record"`
}

type UpdateStatusRequest struct {
	Status PresenceStatus `json:"status"`
}

type FriendsStatusRequest struct {
	UserIDs []string `json:"userIds"`
}

type MatchFoundPayload struct {
	RoomKey  string  `json:"roomKey"`
	Opponent UserRef `json:"opponent"`
	IsMaster bool    `json:"isMaster"`
}

type InvitationPayload struct {
	Inviter UserRef `json:"inviter"`
}

type InvitationAcceptedPayload struct {
	UserID             string `json:"userId"`
	RoomKey            string `json:"roomKey,omitempty"`
	IsMaster           bool   `json:"isMaster"`
	WaitingForOpponent bool   `json:"waitingForOpponent"`
}

type InvitationDeclinedPayload struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

type GameStartedPayload struct {
	SessionID string    `json:"sessionId"`
	RoomKey   string    `json:"roomKey"`
	Deck      Deck      `json:"deck"`
	IsMaster  bool      `json:"isMaster"`
	StartedAt time.Time `json:"startedAt"`
}

type OpponentAnsweredPayload struct {
	UserID string         `json:"userId"`
	Record AnswerRecord   `json:"record"`
	Stats  AggregateStats `json:"stats"`
}

type QuestionAdvancedPayload struct {
	Cursor
	Finished  bool  `json:"finished"`
	Timestamp int64 `json:"timestamp"`
}

type FriendStatusPayload struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName,omitempty"`
	Status      PresenceStatus `json:"status"`
}

type FriendsStatusPayload struct {
	Statuses map[string]PresenceStatus `json:"statuses"`
}

type MatchmakingQueuedPayload struct {
	PoolSize int `json:"poolSize"`
}

type OpponentPayload struct {
	UserID string `json:"userId"`
}

type SetupFailedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}
