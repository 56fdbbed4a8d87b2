package models

import "time"

type PresenceStatus string

const (
	StatusOffline     PresenceStatus = "offline"
	StatusOnline      PresenceStatus = "online"
	StatusMatchmaking PresenceStatus = "matchmaking"
	StatusBusy        PresenceStatus = "busy"
	StatusInGame      PresenceStatus = "ingame"
)

// Valid reports whether s is one of the five known presence states.
func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOffline, StatusOnline, StatusMatchmaking, StatusBusy, StatusInGame:
		return true
	}
	return false
}

// UserPresence is the registry entry of an online user. Absence means offline.
type UserPresence struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName"`
	Status      PresenceStatus `json:"status"`
	TransportID string         `json:"-"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
