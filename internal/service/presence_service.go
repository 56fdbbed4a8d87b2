package service

import (
	"context"
	"sync"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"go.uber.org/zap"
)

// StatusChange describes one presence transition.
type StatusChange struct {
	UserID      string
	DisplayName string
	Previous    models.PresenceStatus
	Current     models.PresenceStatus
	At          time.Time
}

// FriendNotifier delivers a status change to one online friend.
type FriendNotifier interface {
	NotifyFriendStatus(friendID string, change StatusChange) error
}

// PresenceService tracks the status and current transport of every online
// user. It is the only writer of presence entries.
type PresenceService struct {
	mu        sync.RWMutex
	entries   map[string]models.UserPresence
	names     map[string]string
	notifiers []FriendNotifier

	friends       FriendStore
	notifyTimeout time.Duration
	fanout        sync.WaitGroup

	now    func() time.Time
	logger *zap.Logger
}

func NewPresenceService(friends FriendStore, logger *zap.Logger) *PresenceService {
	return &PresenceService{
		entries:       make(map[string]models.UserPresence),
		names:         make(map[string]string),
		friends:       friends,
		notifyTimeout: 5 * time.Second,
		now:           time.Now,
		logger:        logger,
	}
}

// Subscribe registers a notifier for friend fan-out.
func (s *PresenceService) Subscribe(n FriendNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Identify remembers the display name used in entries for userID.
func (s *PresenceService) Identify(userID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[userID] = displayName
	if e, ok := s.entries[userID]; ok {
		e.DisplayName = displayName
		s.entries[userID] = e
	}
}

// SetStatus records status for userID, replacing any prior entry; offline
// deletes the entry. A move from ingame to matchmaking is rejected and the
// ingame status is kept. When notify is set and the status changed, online
// friends are informed asynchronously; fan-out failures never fail the write.
func (s *PresenceService) SetStatus(userID, transportID string, status models.PresenceStatus, notify bool) error {
	if userID == "" || !status.Valid() {
		return ErrInvalidStatus
	}

	s.mu.Lock()
	prev, had := s.entries[userID]
	previous := models.StatusOffline
	if had {
		previous = prev.Status
	}

	if previous == models.StatusInGame && status == models.StatusMatchmaking {
		s.mu.Unlock()
		s.logger.Info("Rejected matchmaking status while in game",
			zap.String("userId", userID),
			zap.String("transportId", transportID))
		return ErrIngameLocked
	}

	now := s.now()
	name := s.names[userID]
	if status == models.StatusOffline {
		delete(s.entries, userID)
	} else {
		s.entries[userID] = models.UserPresence{
			UserID:      userID,
			DisplayName: name,
			Status:      status,
			TransportID: transportID,
			UpdatedAt:   now,
		}
	}
	notifiers := s.notifiers
	s.mu.Unlock()

	if previous == status {
		return nil
	}

	s.logger.Debug("Presence changed",
		zap.String("userId", userID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))

	if notify && len(notifiers) > 0 && s.friends != nil {
		s.fanOut(StatusChange{
			UserID:      userID,
			DisplayName: name,
			Previous:    previous,
			Current:     status,
			At:          now,
		}, notifiers)
	}
	return nil
}

// TransitionStatus moves userID from one status to another only when the
// current status is from. It keeps the recorded transport.
func (s *PresenceService) TransitionStatus(userID string, from, to models.PresenceStatus, notify bool) bool {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok || e.Status != from {
		s.mu.Unlock()
		return false
	}
	now := s.now()
	e.Status = to
	e.UpdatedAt = now
	s.entries[userID] = e
	notifiers := s.notifiers
	s.mu.Unlock()

	if notify && from != to && len(notifiers) > 0 && s.friends != nil {
		s.fanOut(StatusChange{
			UserID:      userID,
			DisplayName: e.DisplayName,
			Previous:    from,
			Current:     to,
			At:          now,
		}, notifiers)
	}
	return true
}

// fanOut informs every accepted, online friend. Best effort.
func (s *PresenceService) fanOut(change StatusChange, notifiers []FriendNotifier) {
	s.fanout.Add(1)
	go func() {
		defer s.fanout.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		friendIDs, err := s.friends.AcceptedFriendIDs(ctx, change.UserID)
		if err != nil {
			s.logger.Warn("Friend lookup failed, skipping status fan-out",
				zap.String("userId", change.UserID),
				zap.Error(err))
			return
		}

		for _, friendID := range friendIDs {
			if !s.CheckOnline(friendID) {
				continue
			}
			for _, n := range notifiers {
				if err := n.NotifyFriendStatus(friendID, change); err != nil {
					s.logger.Debug("Friend notification failed",
						zap.String("userId", change.UserID),
						zap.String("friendId", friendID),
						zap.Error(err))
				}
			}
		}
	}()
}

// WaitNotifications blocks until in-flight fan-outs finish.
func (s *PresenceService) WaitNotifications() {
	s.fanout.Wait()
}

// GetStatus never fails: unknown users are offline.
func (s *PresenceService) GetStatus(userID string) models.PresenceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[userID]; ok {
		return e.Status
	}
	return models.StatusOffline
}

func (s *PresenceService) CheckOnline(userID string) bool {
	return s.GetStatus(userID) != models.StatusOffline
}

// Get returns the entry of an online user.
func (s *PresenceService) Get(userID string) (models.UserPresence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[userID]
	return e, ok
}

// Statuses answers getFriendsStatus for a batch of users.
func (s *PresenceService) Statuses(userIDs []string) map[string]models.PresenceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.PresenceStatus, len(userIDs))
	for _, id := range userIDs {
		if e, ok := s.entries[id]; ok {
			out[id] = e.Status
		} else {
			out[id] = models.StatusOffline
		}
	}
	return out
}

// CanInvite reports whether targetID may receive a direct invitation. Only
// users in matchmaking are eligible; every other status has its own reason.
func (s *PresenceService) CanInvite(targetID string) models.InviteEligibility {
	res := models.InviteEligibility{UserID: targetID}

	switch s.GetStatus(targetID) {
	case models.StatusMatchmaking:
		res.CanInvite = true
	case models.StatusOffline:
		res.Reason = "User is offline"
	case models.StatusBusy:
		res.Reason = "User is busy with another invitation"
	case models.StatusInGame:
		res.Reason = "User is currently in a game"
	case models.StatusOnline:
		res.Reason = "User is not looking for a match"
	default:
		res.Reason = "User is unavailable"
	}
	return res
}

// OnlineCount returns the number of tracked users.
func (s *PresenceService) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
