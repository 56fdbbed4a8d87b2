package service

import "errors"

// Validation errors. These are reported back to the caller as an error event.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownEvent = errors.New("unknown event")
)

// Presence errors
var (
	ErrInvalidStatus = errors.New("invalid presence status")
	ErrIngameLocked  = errors.New("user is in an active game")
)

// Matchmaking and invitation errors
var (
	ErrSelfInvite     = errors.New("cannot invite yourself")
	ErrNotInvitable   = errors.New("user cannot be invited")
	ErrNoInvitation   = errors.New("no pending invitation")
	ErrNoPendingMatch = errors.New("no pending match")
	ErrNotMaster      = errors.New("only the match master can start the game")
)

// Session errors
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrUserAlreadyInSession = errors.New("user already has an active session")
	ErrNotParticipant       = errors.New("user is not a participant of this session")
	ErrEmptyDeck            = errors.New("deck assembly returned no cases")
	ErrAlreadyReported      = errors.New("final record already reported")
	ErrGameSetup            = errors.New("game setup failed")
)
