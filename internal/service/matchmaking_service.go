package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"go.uber.org/zap"
)

const maxDeckSize = 50

// MatchmakingService pairs users, either randomly through the pool or by
// direct invitation, and turns an agreed pair into a session on startGame.
type MatchmakingService struct {
	transport Transport
	presence  *PresenceService
	pool      *MatchmakingPool
	sessions  *SessionStore
	peers     *PeerTable
	decks     DeckProvider

	mu            sync.Mutex
	pending       map[string]*pendingMatch // roomKey -> match
	pendingByUser map[string]string        // userID -> roomKey

	defaultDeckSize int
	now             func() time.Time
	logger          *zap.Logger
}

type pendingMatch struct {
	models.PendingMatch
	starting bool
}

func NewMatchmakingService(
	transport Transport,
	presence *PresenceService,
	pool *MatchmakingPool,
	sessions *SessionStore,
	peers *PeerTable,
	decks DeckProvider,
	defaultDeckSize int,
	logger *zap.Logger,
) *MatchmakingService {
	if defaultDeckSize <= 0 {
		defaultDeckSize = 10
	}
	return &MatchmakingService{
		transport:       transport,
		presence:        presence,
		pool:            pool,
		sessions:        sessions,
		peers:           peers,
		decks:           decks,
		pending:         make(map[string]*pendingMatch),
		pendingByUser:   make(map[string]string),
		defaultDeckSize: defaultDeckSize,
		now:             time.Now,
		logger:          logger,
	}
}

// RoomKey is the deterministic room of an inviter/invitee pair.
func RoomKey(inviterID, inviteeID string) string {
	return "match_" + inviterID + "_" + inviteeID
}

// Challenge requests a random opponent. With an empty pool the caller waits
// in it; otherwise the waiting member becomes the master of a pending match.
func (s *MatchmakingService) Challenge(caller Caller) error {
	if s.sessions.HasActiveSession(caller.UserID) {
		return ErrUserAlreadyInSession
	}
	if err := s.presence.SetStatus(caller.UserID, caller.TransportID, models.StatusMatchmaking, true); err != nil {
		return err
	}
	if prev, ok := s.AbandonPending(caller.UserID); ok {
		s.notifyAbandoned(prev, caller.UserID)
	}

	peer, paired := s.pool.Pair(models.PoolEntry{
		TransportID: caller.TransportID,
		UserID:      caller.UserID,
		Username:    caller.Username,
		QueuedAt:    s.now(),
	})
	if !paired {
		s.logger.Debug("Queued for random match",
			zap.String("userId", caller.UserID),
			zap.String("transportId", caller.TransportID))
		s.transport.Emit(caller.TransportID, models.EventMatchmakingQueued, models.MatchmakingQueuedPayload{
			PoolSize: s.pool.Size(),
		})
		return nil
	}

	pm := s.openPending(peer.UserID, caller.UserID)
	s.bindRoom(pm.RoomKey, peer.TransportID, caller.TransportID)
	s.setStatus(peer.UserID, peer.TransportID, models.StatusBusy)
	s.setStatus(caller.UserID, caller.TransportID, models.StatusBusy)

	s.transport.Emit(peer.TransportID, models.EventMatchFound, models.MatchFoundPayload{
		RoomKey:  pm.RoomKey,
		Opponent: models.UserRef{UserID: caller.UserID, Username: caller.Username},
		IsMaster: true,
	})
	s.transport.Emit(caller.TransportID, models.EventMatchFound, models.MatchFoundPayload{
		RoomKey:  pm.RoomKey,
		Opponent: models.UserRef{UserID: peer.UserID, Username: peer.Username},
		IsMaster: false,
	})

	s.logger.Info("Random match found",
		zap.String("room", pm.RoomKey),
		zap.String("master", peer.UserID),
		zap.String("opponent", caller.UserID))
	return nil
}

// CancelMatchmaking leaves the waiting pool and returns the caller to online.
func (s *MatchmakingService) CancelMatchmaking(caller Caller) error {
	s.pool.Remove(caller.TransportID)
	s.pool.RemoveUser(caller.UserID)
	if s.sessions.HasActiveSession(caller.UserID) {
		return nil
	}
	return s.presence.SetStatus(caller.UserID, caller.TransportID, models.StatusOnline, true)
}

// CanInvite is the eligibility check run before sending an invitation.
func (s *MatchmakingService) CanInvite(caller Caller, targetID string) models.InviteEligibility {
	if targetID == caller.UserID {
		return models.InviteEligibility{UserID: targetID, Reason: "You cannot invite yourself"}
	}
	return s.presence.CanInvite(targetID)
}

// SendInvitation invites a user who is in matchmaking. Both sides go busy.
func (s *MatchmakingService) SendInvitation(caller Caller, targetID string) error {
	if targetID == "" {
		return ErrInvalidInput
	}
	if targetID == caller.UserID {
		return ErrSelfInvite
	}
	if s.sessions.HasActiveSession(caller.UserID) {
		return ErrUserAlreadyInSession
	}

	elig := s.presence.CanInvite(targetID)
	if !elig.CanInvite {
		return fmt.Errorf("%w: %s", ErrNotInvitable, elig.Reason)
	}
	targetTransport, ok := s.currentTransport(targetID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInvitable, "User is offline")
	}
	// Claim the target; a concurrent inviter loses here.
	if !s.presence.TransitionStatus(targetID, models.StatusMatchmaking, models.StatusBusy, true) {
		return fmt.Errorf("%w: %s", ErrNotInvitable, "User is busy with another invitation")
	}
	// A caller holds at most one invitation; the previous one is withdrawn.
	if old, ok := s.peers.InvitationHeldBy(caller.UserID); ok {
		s.dropInvitation(old, caller.UserID, "cancelled")
	}

	edge := models.InvitationEdge{
		InviterID:   caller.UserID,
		InviterName: caller.Username,
		InviteeID:   targetID,
		SentAt:      s.now(),
	}
	s.peers.AttachInvitation(edge, caller.TransportID, targetTransport)
	s.pool.RemoveUser(caller.UserID)
	s.pool.RemoveUser(targetID)
	s.setStatus(caller.UserID, caller.TransportID, models.StatusBusy)

	s.transport.Emit(targetTransport, models.EventInvitationReceived, models.InvitationPayload{
		Inviter: models.UserRef{UserID: caller.UserID, Username: caller.Username},
	})

	s.logger.Info("Invitation sent",
		zap.String("inviter", caller.UserID),
		zap.String("invitee", targetID))
	return nil
}

// AcceptInvitation flags the caller's side of an invitation as accepted.
//
// Two paths complete the handshake. An invitee accepting with isInvitation
// completes it immediately on its own. Any other accept only sets the caller's
// flag, and the match is agreed once the inviter and the invitee have both
// accepted.
func (s *MatchmakingService) AcceptInvitation(caller Caller, req models.AcceptInvitationRequest) error {
	if req.InviterID == "" {
		return ErrInvalidInput
	}
	edge, ok := s.peers.InvitationOf(caller.UserID, req.InviterID)
	if !ok {
		return ErrNoInvitation
	}

	completed := false
	edge, holders, ok := s.peers.UpdateInvitation(edge.InviterID, edge.InviteeID, func(e *models.InvitationEdge) {
		wasComplete := e.InviterAccepted && e.InviteeAccepted
		if caller.UserID == e.InviteeID {
			e.InviteeAccepted = true
			if req.IsInvitation {
				e.InviterAccepted = true
			}
		} else {
			e.InviterAccepted = true
		}
		completed = !wasComplete && e.InviterAccepted && e.InviteeAccepted
	})
	if !ok {
		return ErrNoInvitation
	}

	counterpart := edge.Counterpart(caller.UserID)
	if !completed {
		waiting := models.InvitationAcceptedPayload{UserID: caller.UserID, WaitingForOpponent: true}
		for id, uid := range holders {
			if uid == counterpart {
				s.transport.Emit(id, models.EventInvitationAccepted, waiting)
			}
		}
		s.transport.Emit(caller.TransportID, models.EventInvitationAccepted, models.InvitationAcceptedPayload{
			UserID:             counterpart,
			WaitingForOpponent: true,
		})
		return nil
	}

	s.peers.ClearInvitation(edge.InviterID, edge.InviteeID)

	inviterTransport, inviteeTransport := "", ""
	for id, uid := range holders {
		if uid == edge.InviterID && inviterTransport == "" {
			inviterTransport = id
		}
		if uid == edge.InviteeID && inviteeTransport == "" {
			inviteeTransport = id
		}
	}
	if caller.UserID == edge.InviteeID {
		inviteeTransport = caller.TransportID
	} else {
		inviterTransport = caller.TransportID
	}
	if inviterTransport == "" {
		inviterTransport, _ = s.currentTransport(edge.InviterID)
	}
	if inviteeTransport == "" {
		inviteeTransport, _ = s.currentTransport(edge.InviteeID)
	}

	pm := s.openPending(edge.InviterID, edge.InviteeID)
	s.bindRoom(pm.RoomKey, inviterTransport, inviteeTransport)

	s.transport.Emit(inviterTransport, models.EventInvitationAccepted, models.InvitationAcceptedPayload{
		UserID:   edge.InviteeID,
		RoomKey:  pm.RoomKey,
		IsMaster: true,
	})
	s.transport.Emit(inviteeTransport, models.EventInvitationAccepted, models.InvitationAcceptedPayload{
		UserID:   edge.InviterID,
		RoomKey:  pm.RoomKey,
		IsMaster: false,
	})

	s.logger.Info("Invitation accepted",
		zap.String("room", pm.RoomKey),
		zap.String("inviter", edge.InviterID),
		zap.String("invitee", edge.InviteeID),
		zap.Bool("oneSided", req.IsInvitation))
	return nil
}

// DeclineInvitation drops the invitation between the caller and counterpartID
// and returns both to online.
func (s *MatchmakingService) DeclineInvitation(caller Caller, counterpartID string) error {
	edge, ok := s.peers.FindInvitation(caller.UserID, counterpartID)
	if !ok {
		return ErrNoInvitation
	}
	s.dropInvitation(edge, caller.UserID, "declined")
	s.setStatus(caller.UserID, caller.TransportID, models.StatusOnline)
	return nil
}

// DropInvitationOf tears down the invitation held by a closing transport.
func (s *MatchmakingService) DropInvitationOf(p Peer, reason string) {
	if p.Invitation == nil {
		return
	}
	s.dropInvitation(*p.Invitation, p.UserID, reason)
}

func (s *MatchmakingService) dropInvitation(edge models.InvitationEdge, byUserID, reason string) {
	s.peers.ClearInvitation(edge.InviterID, edge.InviteeID)

	counterpart := edge.Counterpart(byUserID)
	if t, ok := s.currentTransport(counterpart); ok && !s.sessions.HasActiveSession(counterpart) {
		s.setStatus(counterpart, t, models.StatusOnline)
	}
	emitToUser(s.transport, counterpart, models.EventInvitationDeclined, models.InvitationDeclinedPayload{
		UserID: byUserID,
		Reason: reason,
	})

	s.logger.Info("Invitation dropped",
		zap.String("inviter", edge.InviterID),
		zap.String("invitee", edge.InviteeID),
		zap.String("by", byUserID),
		zap.String("reason", reason))
}

// StartGame assembles a deck for the caller's pending match and creates the
// session. Only the master may start. On any failure both sides receive
// gameSetupFailed and no session exists; the pending match is kept so the
// master can retry.
func (s *MatchmakingService) StartGame(ctx context.Context, caller Caller, params models.DeckParams) (models.MatchSession, error) {
	s.mu.Lock()
	room, ok := s.pendingByUser[caller.UserID]
	if !ok {
		s.mu.Unlock()
		return models.MatchSession{}, ErrNoPendingMatch
	}
	pm := s.pending[room]
	if pm.MasterID != caller.UserID {
		s.mu.Unlock()
		return models.MatchSession{}, ErrNotMaster
	}
	if pm.starting {
		s.mu.Unlock()
		return models.MatchSession{}, ErrNoPendingMatch
	}
	pm.starting = true
	match := pm.PendingMatch
	s.mu.Unlock()

	started := false
	defer func() {
		if started {
			return
		}
		s.mu.Lock()
		if p, ok := s.pending[match.RoomKey]; ok {
			p.starting = false
		}
		s.mu.Unlock()
	}()

	params = s.normalizeParams(params, match)

	deck, err := s.decks.AssembleDeck(ctx, params)
	if err == nil {
		deck = deck.Playable()
		if len(deck) == 0 {
			err = ErrEmptyDeck
		}
	}

	var session models.MatchSession
	if err == nil {
		session, err = s.sessions.CreateSession(NewSession{
			RoomKey:   match.RoomKey,
			Deck:      deck,
			Player1ID: match.Player1ID,
			Player2ID: match.Player2ID,
			MasterID:  match.MasterID,
		})
	}

	if err != nil {
		s.failSetup(match, err)
		return models.MatchSession{}, fmt.Errorf("%w: %w", ErrGameSetup, err)
	}

	started = true
	s.mu.Lock()
	s.removePendingLocked(match.RoomKey)
	s.mu.Unlock()

	for _, uid := range []string{match.Player1ID, match.Player2ID} {
		s.pool.RemoveUser(uid)
		if t, ok := s.currentTransport(uid); ok {
			s.setStatus(uid, t, models.StatusInGame)
		}
	}

	s.bindPlayers(match)
	startedAt := s.now()
	for id, uid := range s.peers.InRoom(match.RoomKey) {
		s.transport.Emit(id, models.EventGameStarted, models.GameStartedPayload{
			SessionID: session.ID,
			RoomKey:   session.RoomKey,
			Deck:      session.Deck,
			IsMaster:  uid == session.MasterID,
			StartedAt: startedAt,
		})
	}

	s.logger.Info("Game started",
		zap.String("sessionId", session.ID),
		zap.String("room", session.RoomKey),
		zap.Int("cases", len(session.Deck)),
		zap.Int("questions", session.Deck.TotalQuestions()))
	return session, nil
}

func (s *MatchmakingService) normalizeParams(params models.DeckParams, match models.PendingMatch) models.DeckParams {
	if params.Count <= 0 {
		params.Count = s.defaultDeckSize
	}
	if params.Count > maxDeckSize {
		params.Count = maxDeckSize
	}
	params.UserIDs = nil
	if params.UnsolvedOnly {
		params.UserIDs = []string{match.Player1ID, match.Player2ID}
	}
	return params
}

func (s *MatchmakingService) failSetup(match models.PendingMatch, err error) {
	reason := "Could not prepare the game, please try again"
	if errors.Is(err, ErrEmptyDeck) {
		reason = "No cases available for the selected categories"
	}
	if errors.Is(err, ErrUserAlreadyInSession) {
		reason = "A player is already in another game"
	}

	s.bindPlayers(match)
	for id := range s.peers.InRoom(match.RoomKey) {
		s.transport.Emit(id, models.EventGameSetupFailed, models.SetupFailedPayload{Reason: reason})
	}

	s.logger.Error("Game setup failed",
		zap.String("room", match.RoomKey),
		zap.String("master", match.MasterID),
		zap.Error(err))
}

// bindPlayers joins the current transport of each player to the match room.
// The transports bound at agreement may have closed since.
func (s *MatchmakingService) bindPlayers(match models.PendingMatch) {
	for _, uid := range []string{match.Player1ID, match.Player2ID} {
		t, ok := s.currentTransport(uid)
		if !ok {
			continue
		}
		if p, ok := s.peers.Get(t); ok && p.RoomKey == match.RoomKey {
			continue
		}
		s.transport.Join(t, match.RoomKey)
		s.peers.SetRoom(t, match.RoomKey, "")
	}
}

// RejoinPending binds a new transport of userID to its pending match room.
func (s *MatchmakingService) RejoinPending(transportID, userID string) bool {
	pm, ok := s.PendingFor(userID)
	if !ok {
		return false
	}
	s.transport.Join(transportID, pm.RoomKey)
	s.peers.SetRoom(transportID, pm.RoomKey, "")
	return true
}

// PendingFor returns the agreed but not yet started match of userID.
func (s *MatchmakingService) PendingFor(userID string) (models.PendingMatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.pendingByUser[userID]
	if !ok {
		return models.PendingMatch{}, false
	}
	return s.pending[room].PendingMatch, true
}

// AbandonPending removes the pending match of userID and unbinds its room.
func (s *MatchmakingService) AbandonPending(userID string) (models.PendingMatch, bool) {
	s.mu.Lock()
	room, ok := s.pendingByUser[userID]
	if !ok || s.pending[room].starting {
		s.mu.Unlock()
		return models.PendingMatch{}, false
	}
	pm := s.pending[room].PendingMatch
	s.removePendingLocked(room)
	s.mu.Unlock()

	for _, id := range s.peers.ClearRoom(room) {
		s.transport.Leave(id, room)
	}
	return pm, true
}

// notifyAbandoned tells the other side of an abandoned pending match and
// returns it to online.
func (s *MatchmakingService) notifyAbandoned(pm models.PendingMatch, byUserID string) {
	other := pm.OpponentOf(byUserID)
	if other == "" {
		return
	}
	emitToUser(s.transport, other, models.EventOpponentLeft, models.OpponentPayload{UserID: byUserID})
	if t, ok := s.currentTransport(other); ok && !s.sessions.HasActiveSession(other) {
		s.setStatus(other, t, models.StatusOnline)
	}
}

func (s *MatchmakingService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *MatchmakingService) openPending(masterID, otherID string) models.PendingMatch {
	for _, uid := range []string{masterID, otherID} {
		if prev, ok := s.AbandonPending(uid); ok {
			s.notifyAbandoned(prev, uid)
		}
	}

	pm := models.PendingMatch{
		RoomKey:   RoomKey(masterID, otherID),
		MasterID:  masterID,
		Player1ID: masterID,
		Player2ID: otherID,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.pending[pm.RoomKey] = &pendingMatch{PendingMatch: pm}
	s.pendingByUser[masterID] = pm.RoomKey
	s.pendingByUser[otherID] = pm.RoomKey
	s.mu.Unlock()
	return pm
}

func (s *MatchmakingService) removePendingLocked(room string) {
	pm, ok := s.pending[room]
	if !ok {
		return
	}
	delete(s.pending, room)
	for _, uid := range []string{pm.Player1ID, pm.Player2ID} {
		if s.pendingByUser[uid] == room {
			delete(s.pendingByUser, uid)
		}
	}
}

func (s *MatchmakingService) bindRoom(room, a, b string) {
	if a != "" {
		s.transport.Join(a, room)
		s.peers.SetRoom(a, room, b)
	}
	if b != "" {
		s.transport.Join(b, room)
		s.peers.SetRoom(b, room, a)
	}
}

// currentTransport returns the transport recorded in presence when it is
// still live, or else the newest live transport of userID.
func (s *MatchmakingService) currentTransport(userID string) (string, bool) {
	if e, ok := s.presence.Get(userID); ok && e.TransportID != "" {
		if uid, live := s.transport.Connected(e.TransportID); live && uid == userID {
			return e.TransportID, true
		}
	}
	if ids := s.transport.TransportsOf(userID); len(ids) > 0 {
		return ids[0], true
	}
	return "", false
}

func (s *MatchmakingService) setStatus(userID, transportID string, status models.PresenceStatus) {
	if err := s.presence.SetStatus(userID, transportID, status, true); err != nil {
		s.logger.Warn("Failed to update presence",
			zap.String("userId", userID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
