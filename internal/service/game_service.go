package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"go.uber.org/zap"
)

// Stats is a point-in-time view of the coordinator for operators.
type Stats struct {
	Connections    int `json:"connections"`
	OnlineUsers    int `json:"onlineUsers"`
	PoolSize       int `json:"poolSize"`
	PendingMatches int `json:"pendingMatches"`
	ActiveSessions int `json:"activeSessions"`
}

// GameService is the inbound dispatcher. It owns the connection lifecycle and
// routes every authenticated event to the component responsible for it.
type GameService struct {
	transport   Transport
	presence    *PresenceService
	pool        *MatchmakingPool
	sessions    *SessionStore
	peers       *PeerTable
	matchmaking *MatchmakingService
	relay       *RelayService
	results     *ResultService
	now         func() time.Time
	logger      *zap.Logger
}

func NewGameService(
	transport Transport,
	presence *PresenceService,
	pool *MatchmakingPool,
	sessions *SessionStore,
	peers *PeerTable,
	matchmaking *MatchmakingService,
	relay *RelayService,
	results *ResultService,
	logger *zap.Logger,
) *GameService {
	g := &GameService{
		transport:   transport,
		presence:    presence,
		pool:        pool,
		sessions:    sessions,
		peers:       peers,
		matchmaking: matchmaking,
		relay:       relay,
		results:     results,
		now:         time.Now,
		logger:      logger,
	}
	presence.Subscribe(g)
	return g
}

// OnConnect registers an authenticated transport. A user with an active
// session is put back into its room and receives the full session state.
func (g *GameService) OnConnect(transportID string, id models.Identity) {
	peer := g.peers.Register(transportID, id, g.now())
	g.presence.Identify(id.UserID, id.Username)
	caller := peer.Caller()

	if room, ok := g.sessions.RoomOf(id.UserID); ok {
		g.transport.Join(transportID, room)
		g.peers.SetRoom(transportID, room, "")
		if err := g.sessions.SetConnectionState(room, id.UserID, models.ConnConnected); err != nil {
			g.logger.Warn("Failed to mark player connected",
				zap.String("userId", id.UserID),
				zap.String("room", room),
				zap.Error(err))
		}
		g.setStatus(id.UserID, transportID, models.StatusInGame, true)

		if snap, err := g.sessions.Snapshot(room, id.UserID); err == nil {
			g.transport.Emit(transportID, models.EventSessionRestored, snap)
		}
		g.relay.NotifyOpponent(caller, models.EventOpponentReconnected)

		g.logger.Info("Player reconnected to session",
			zap.String("userId", id.UserID),
			zap.String("transportId", transportID),
			zap.String("room", room))
		return
	}

	if e, ok := g.presence.Get(id.UserID); ok {
		// Another tab is live; keep its status and point presence at the newest transport.
		g.setStatus(id.UserID, transportID, e.Status, false)
	} else {
		g.setStatus(id.UserID, transportID, models.StatusOnline, true)
	}
	if g.matchmaking.RejoinPending(transportID, id.UserID) {
		g.logger.Debug("Transport joined pending match",
			zap.String("userId", id.UserID),
			zap.String("transportId", transportID))
	}

	g.logger.Info("Player connected",
		zap.String("userId", id.UserID),
		zap.String("transportId", transportID))
}

// OnDisconnect runs after the transport was unregistered. Sessions survive a
// disconnect; only pool membership and invitations are torn down.
func (g *GameService) OnDisconnect(transportID string) {
	peer, ok := g.peers.Remove(transportID)
	if !ok {
		return
	}
	userID := peer.UserID
	remaining := g.transport.TransportsOf(userID)

	g.pool.Remove(transportID)

	if peer.Invitation != nil {
		g.matchmaking.DropInvitationOf(peer, "disconnected")
		if len(remaining) > 0 && !g.sessions.HasActiveSession(userID) {
			g.setStatus(userID, remaining[0], models.StatusOnline, true)
		}
	}

	if len(remaining) == 0 {
		if pm, ok := g.matchmaking.AbandonPending(userID); ok {
			g.matchmaking.notifyAbandoned(pm, userID)
		}

		if room, ok := g.sessions.RoomOf(userID); ok {
			if err := g.sessions.SetConnectionState(room, userID, models.ConnDisconnected); err == nil {
				if opp, err := g.sessions.GetOpponentID(room, userID); err == nil {
					emitToUser(g.transport, opp, models.EventOpponentDisconnected, models.OpponentPayload{UserID: userID})
				}
			}
		}

		g.setStatus(userID, "", models.StatusOffline, true)
	} else if e, ok := g.presence.Get(userID); ok && e.TransportID == transportID {
		g.setStatus(userID, remaining[0], e.Status, false)
	}

	g.logger.Info("Player disconnected",
		zap.String("userId", userID),
		zap.String("transportId", transportID),
		zap.Int("remainingTransports", len(remaining)))
}

// Handle dispatches one inbound event. It never panics: failures become a
// log line and, for the caller's own mistakes, an error event.
func (g *GameService) Handle(ctx context.Context, transportID, event string, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Recovered from handler panic",
				zap.String("event", event),
				zap.String("transportId", transportID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			g.transport.Emit(transportID, models.EventError, models.ErrorPayload{
				Event:  event,
				Reason: "internal error",
			})
		}
	}()

	peer, ok := g.peers.Get(transportID)
	if !ok {
		g.logger.Warn("Event from unknown transport",
			zap.String("transportId", transportID),
			zap.String("event", event))
		return
	}
	caller := peer.Caller()

	if err := g.dispatch(ctx, caller, event, payload); err != nil {
		g.reportError(caller, event, err)
	}
}

func (g *GameService) dispatch(ctx context.Context, caller Caller, event string, payload json.RawMessage) error {
	switch event {
	case models.EventChallenge:
		return g.matchmaking.Challenge(caller)

	case models.EventCancelMatchmaking:
		return g.matchmaking.CancelMatchmaking(caller)

	case models.EventSendInvitation:
		var req models.InvitationRequest
		if err := decode(payload, &req); err != nil {
			return err
		}
		return g.matchmaking.SendInvitation(caller, req.UserID)

	case models.EventAcceptInvitation:
		var req models.AcceptInvitationRequest
		if err := decode(payload, &req); err != nil {
			return err
		}
		return g.matchmaking.AcceptInvitation(caller, req)

	case models.EventDeclineInvitation:
		var req models.InvitationRequest
		if err := decode(payload, &req); err != nil {
			return err
		}
		return g.matchmaking.DeclineInvitation(caller, req.UserID)

	case models.EventStartGame:
		var params models.DeckParams
		if err := decode(payload, &params); err != nil {
			return err
		}
		_, err := g.matchmaking.StartGame(ctx, caller, params)
		return err

	case models.EventSubmitAnswer:
		var req models.SubmitAnswerRequest
		if err := decode(payload, &req); err != nil {
			return err
		}
		return g.relay.SubmitAnswer(caller, req)

	case models.EventRequestAdvance:
		return g.relay.RequestAdvance(caller)

	case models.EventReportFinished:
		var req models.ReportFinishedRequest
		if err := decode(payload, &req); err != nil {
			return err
		}
		return g.reportFinished(ctx, caller, req)

	case models.EventUpdateStatus:
		var req models.UpdateStatusRequest
		if err := decode(payload, &req); err != nil {
			return err
		}
		return g.updateStatus(caller, req.Status)

	case models.EventCheckCanInvite:
		var req models.InvitationRequest
		if err := decode(payload, &req); err != nil {
			return err
		}
		if req.UserID == "" {
			return ErrInvalidInput
		}
		g.transport.Emit(caller.TransportID, models.EventCanInviteResult, g.matchmaking.CanInvite(caller, req.UserID))
		return nil

	case models.EventGetFriendsStatus:
		var req models.FriendsStatusRequest
		if err := decode(payload, &req); err != nil {
			return err
		}
		g.transport.Emit(caller.TransportID, models.EventFriendsStatus, models.FriendsStatusPayload{
			Statuses: g.presence.Statuses(req.UserIDs),
		})
		return nil

	case models.EventUserAway:
		return g.setAway(caller, true)

	case models.EventUserBack:
		return g.setAway(caller, false)

	case models.EventRestoreSession:
		return g.restoreSession(caller)

	case models.EventLeaveMatch:
		return g.leaveMatch(caller)
	}

	return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
}

func decode(payload json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (g *GameService) reportError(caller Caller, event string, err error) {
	if errors.Is(err, ErrGameSetup) {
		// Both players already received gameSetupFailed.
		return
	}

	g.logger.Info("Event rejected",
		zap.String("event", event),
		zap.String("userId", caller.UserID),
		zap.String("transportId", caller.TransportID),
		zap.Error(err))

	g.transport.Emit(caller.TransportID, models.EventError, models.ErrorPayload{
		Event:  event,
		Reason: err.Error(),
	})
}

func (g *GameService) reportFinished(ctx context.Context, caller Caller, req models.ReportFinishedRequest) error {
	outcome, ms, err := g.results.Report(ctx, caller.UserID, req)
	if err != nil {
		return err
	}
	if outcome == nil {
		return nil
	}

	for _, uid := range []string{ms.Player1ID, ms.Player2ID} {
		emitToUser(g.transport, uid, models.EventMatchResult, outcome)
	}
	g.releaseSession(ms)
	return nil
}

// updateStatus applies a client-requested status. While a session is active
// only the server may move the user out of ingame.
func (g *GameService) updateStatus(caller Caller, status models.PresenceStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if g.sessions.HasActiveSession(caller.UserID) && status != models.StatusInGame {
		g.logger.Info("Ignored status change from secondary tab",
			zap.String("userId", caller.UserID),
			zap.String("transportId", caller.TransportID),
			zap.String("requested", string(status)))
		return ErrIngameLocked
	}
	if status != models.StatusMatchmaking {
		g.pool.RemoveUser(caller.UserID)
	}
	return g.presence.SetStatus(caller.UserID, caller.TransportID, status, true)
}

// setAway records an advisory away/back signal. It is ignored outside a match.
func (g *GameService) setAway(caller Caller, away bool) error {
	room, ok := g.relay.ResolveRoom(caller)
	if !ok {
		return nil
	}

	state, event := models.ConnConnected, models.EventOpponentBack
	if away {
		state, event = models.ConnAway, models.EventOpponentAway
	}
	if err := g.sessions.SetConnectionState(room, caller.UserID, state); err != nil {
		g.logger.Debug("Away signal for a closed session ignored",
			zap.String("userId", caller.UserID),
			zap.Error(err))
		return nil
	}
	g.relay.NotifyOpponent(caller, event)
	return nil
}

func (g *GameService) restoreSession(caller Caller) error {
	room, ok := g.relay.ResolveRoom(caller)
	if !ok {
		return ErrSessionNotFound
	}
	snap, err := g.sessions.Snapshot(room, caller.UserID)
	if err != nil {
		return err
	}
	g.transport.Emit(caller.TransportID, models.EventSessionRestored, snap)
	return nil
}

// leaveMatch abandons the caller's session, pending match or invitation,
// whichever exists.
func (g *GameService) leaveMatch(caller Caller) error {
	if room, ok := g.sessions.RoomOf(caller.UserID); ok {
		ms, removed := g.sessions.CleanupSession(room)
		if !removed {
			return nil
		}
		if opp := ms.OpponentOf(caller.UserID); opp != "" {
			emitToUser(g.transport, opp, models.EventOpponentLeft, models.OpponentPayload{UserID: caller.UserID})
		}
		g.releaseSession(ms)

		g.logger.Info("Player left match",
			zap.String("userId", caller.UserID),
			zap.String("sessionId", ms.ID))
		return nil
	}

	if pm, ok := g.matchmaking.AbandonPending(caller.UserID); ok {
		g.matchmaking.notifyAbandoned(pm, caller.UserID)
		g.setStatus(caller.UserID, caller.TransportID, models.StatusOnline, true)
		return nil
	}

	if peer, ok := g.peers.Get(caller.TransportID); ok && peer.Invitation != nil {
		g.matchmaking.DropInvitationOf(peer, "left")
		g.setStatus(caller.UserID, caller.TransportID, models.StatusOnline, true)
		return nil
	}

	return ErrSessionNotFound
}

// ReleaseStale closes a session removed by the staleness sweep.
func (g *GameService) ReleaseStale(ms models.MatchSession) {
	for _, uid := range []string{ms.Player1ID, ms.Player2ID} {
		emitToUser(g.transport, uid, models.EventOpponentLeft, models.OpponentPayload{UserID: ms.OpponentOf(uid)})
	}
	g.releaseSession(ms)
}

// releaseSession unbinds the room of a removed session and returns both
// players to online.
func (g *GameService) releaseSession(ms models.MatchSession) {
	for _, id := range g.peers.ClearRoom(ms.RoomKey) {
		g.transport.Leave(id, ms.RoomKey)
	}
	for _, uid := range []string{ms.Player1ID, ms.Player2ID} {
		if g.sessions.HasActiveSession(uid) {
			continue
		}
		if t, ok := g.matchmaking.currentTransport(uid); ok {
			g.setStatus(uid, t, models.StatusOnline, true)
		}
	}
}

// NotifyFriendStatus delivers a friend's presence change to friendID.
func (g *GameService) NotifyFriendStatus(friendID string, change StatusChange) error {
	sent := emitToUser(g.transport, friendID, models.EventFriendStatusChanged, models.FriendStatusPayload{
		UserID:      change.UserID,
		DisplayName: change.DisplayName,
		Status:      change.Current,
	})
	if sent == 0 {
		return fmt.Errorf("no live transport for %s", friendID)
	}
	return nil
}

// Stats reports live counts.
func (g *GameService) Stats() Stats {
	return Stats{
		Connections:    g.peers.Count(),
		OnlineUsers:    g.presence.OnlineCount(),
		PoolSize:       g.pool.Size(),
		PendingMatches: g.matchmaking.PendingCount(),
		ActiveSessions: g.sessions.Count(),
	}
}

func (g *GameService) setStatus(userID, transportID string, status models.PresenceStatus, notify bool) {
	if err := g.presence.SetStatus(userID, transportID, status, notify); err != nil {
		g.logger.Warn("Failed to update presence",
			zap.String("userId", userID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
