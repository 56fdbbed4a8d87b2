package service

import (
	"sync"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
)

// Peer is the connection-scoped data of one live transport.
type Peer struct {
	TransportID string
	UserID      string
	Username    string
	ConnectedAt time.Time

	// RoomKey is the pending or active match room this transport joined.
	RoomKey string
	// OpponentTransportID is a cached hint only; see RelayService.ResolveOpponent.
	OpponentTransportID string
	Invitation          *models.InvitationEdge
}

// Caller identifies the transport an inbound event arrived on.
func (p Peer) Caller() Caller {
	return Caller{TransportID: p.TransportID, UserID: p.UserID, Username: p.Username}
}

type Caller struct {
	TransportID string
	UserID      string
	Username    string
}

// PeerTable holds connection-scoped data keyed by transport id.
type PeerTable struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[string]*Peer)}
}

func (t *PeerTable) Register(transportID string, id models.Identity, now time.Time) Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &Peer{
		TransportID: transportID,
		UserID:      id.UserID,
		Username:    id.Username,
		ConnectedAt: now,
	}
	t.peers[transportID] = p
	return *p
}

func (t *PeerTable) Remove(transportID string) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[transportID]
	if !ok {
		return Peer{}, false
	}
	delete(t.peers, transportID)
	return *p, true
}

func (t *PeerTable) Get(transportID string) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[transportID]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Update applies fn to the peer under the table lock.
func (t *PeerTable) Update(transportID string, fn func(*Peer)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[transportID]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// SetRoom binds transportID to room and caches an opponent transport hint.
func (t *PeerTable) SetRoom(transportID, room, opponentTransportID string) bool {
	return t.Update(transportID, func(p *Peer) {
		p.RoomKey = room
		if opponentTransportID != "" {
			p.OpponentTransportID = opponentTransportID
		}
	})
}

// InRoom returns transportID -> userID for every peer bound to room.
func (t *PeerTable) InRoom(room string) map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string)
	for id, p := range t.peers {
		if p.RoomKey == room {
			out[id] = p.UserID
		}
	}
	return out
}

// ClearRoom unbinds every peer of room and returns their transport ids.
func (t *PeerTable) ClearRoom(room string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for id, p := range t.peers {
		if p.RoomKey == room {
			p.RoomKey = ""
			p.OpponentTransportID = ""
			ids = append(ids, id)
		}
	}
	return ids
}

// AttachInvitation stores a copy of edge on every given transport.
func (t *PeerTable) AttachInvitation(edge models.InvitationEdge, transportIDs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range transportIDs {
		if p, ok := t.peers[id]; ok {
			e := edge
			p.Invitation = &e
		}
	}
}

// FindInvitation returns the edge between userID and counterpartID, as held
// by any of userID's transports.
func (t *PeerTable) FindInvitation(userID, counterpartID string) (models.InvitationEdge, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.peers {
		if p.UserID == userID && p.Invitation != nil && p.Invitation.Counterpart(userID) == counterpartID {
			return *p.Invitation, true
		}
	}
	return models.InvitationEdge{}, false
}

// InvitationOf returns the edge sent by inviterID as held by any of
// userID's transports.
func (t *PeerTable) InvitationOf(userID, inviterID string) (models.InvitationEdge, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.peers {
		if p.UserID == userID && p.Invitation != nil && p.Invitation.InviterID == inviterID {
			return *p.Invitation, true
		}
	}
	return models.InvitationEdge{}, false
}

// InvitationHeldBy returns any edge held by one of userID's transports.
func (t *PeerTable) InvitationHeldBy(userID string) (models.InvitationEdge, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.peers {
		if p.UserID == userID && p.Invitation != nil {
			return *p.Invitation, true
		}
	}
	return models.InvitationEdge{}, false
}

// UpdateInvitation applies fn to every copy of the inviter->invitee edge in
// one step. It returns the updated edge and transportID -> userID of the
// peers holding it.
func (t *PeerTable) UpdateInvitation(inviterID, inviteeID string, fn func(*models.InvitationEdge)) (models.InvitationEdge, map[string]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var edge *models.InvitationEdge
	holders := make(map[string]string)
	for id, p := range t.peers {
		if p.Invitation != nil && p.Invitation.InviterID == inviterID && p.Invitation.InviteeID == inviteeID {
			if edge == nil {
				e := *p.Invitation
				fn(&e)
				edge = &e
			}
			holders[id] = p.UserID
		}
	}
	if edge == nil {
		return models.InvitationEdge{}, nil, false
	}
	for id := range holders {
		e := *edge
		t.peers[id].Invitation = &e
	}
	return *edge, holders, true
}

// ClearInvitation removes every copy of the inviter->invitee edge and
// returns transportID -> userID of the peers that held it.
func (t *PeerTable) ClearInvitation(inviterID, inviteeID string) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	holders := make(map[string]string)
	for id, p := range t.peers {
		if p.Invitation != nil && p.Invitation.InviterID == inviterID && p.Invitation.InviteeID == inviteeID {
			p.Invitation = nil
			holders[id] = p.UserID
		}
	}
	return holders
}

func (t *PeerTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
