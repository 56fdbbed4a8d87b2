package service

import (
	"math/rand"
	"sync"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
)

// DefaultCandidateWindow caps how many waiting entries a pairing scans.
const DefaultCandidateWindow = 10

// MatchmakingPool is the shared waiting set for random pairing. A transport
// is in the pool at most once and leaves it the moment it is paired.
type MatchmakingPool struct {
	mu      sync.Mutex
	entries []models.PoolEntry // oldest first
	window  int
	intn    func(n int) int
}

func NewMatchmakingPool(window int) *MatchmakingPool {
	if window <= 0 {
		window = DefaultCandidateWindow
	}
	return &MatchmakingPool{
		window: window,
		intn:   rand.Intn,
	}
}

// Pair draws a random opponent for entry from the oldest candidates and
// removes both in one step. Entries of the same user are never candidates.
// With no candidate, entry joins the pool and ok is false.
func (p *MatchmakingPool) Pair(entry models.PoolEntry) (peer models.PoolEntry, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.removeUserLocked(entry.UserID)

	candidates := make([]int, 0, p.window)
	for i := 0; i < len(p.entries) && len(candidates) < p.window; i++ {
		if p.entries[i].UserID != entry.UserID {
			candidates = append(candidates, i)
		}
	}

	if len(candidates) == 0 {
		p.entries = append(p.entries, entry)
		return models.PoolEntry{}, false
	}

	idx := candidates[p.intn(len(candidates))]
	peer = p.entries[idx]
	p.entries = append(p.entries[:idx], p.entries[idx+1:]...)
	return peer, true
}

// Remove drops a transport from the pool.
func (p *MatchmakingPool) Remove(transportID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.entries {
		if e.TransportID == transportID {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveUser drops every entry of userID and returns how many were removed.
func (p *MatchmakingPool) RemoveUser(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeUserLocked(userID)
}

func (p *MatchmakingPool) removeUserLocked(userID string) int {
	kept := p.entries[:0]
	removed := 0
	for _, e := range p.entries {
		if e.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	return removed
}

func (p *MatchmakingPool) Contains(transportID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.TransportID == transportID {
			return true
		}
	}
	return false
}

func (p *MatchmakingPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Entries returns a copy of the waiting entries, oldest first.
func (p *MatchmakingPool) Entries() []models.PoolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.PoolEntry, len(p.entries))
	copy(out, p.entries)
	return out
}
