package repository

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/google/uuid"
)

// MemoryFriendStore keeps friendships in process. Used when no database is
// configured.
type MemoryFriendStore struct {
	mu      sync.RWMutex
	friends map[string]map[string]struct{}
}

func NewMemoryFriendStore() *MemoryFriendStore {
	return &MemoryFriendStore{friends: make(map[string]map[string]struct{})}
}

// Befriend records an accepted friendship in both directions.
func (s *MemoryFriendStore) Befriend(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link(a, b)
	s.link(b, a)
}

func (s *MemoryFriendStore) link(from, to string) {
	set, ok := s.friends[from]
	if !ok {
		set = make(map[string]struct{})
		s.friends[from] = set
	}
	set[to] = struct{}{}
}

func (s *MemoryFriendStore) AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.friends[userID]))
	for id := range s.friends[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// MemoryResultStore keeps match rows and user stats in process.
type MemoryResultStore struct {
	mu    sync.Mutex
	rows  map[string][]*models.MatchResult
	stats map[string]*UserStats
}

// UserStats is the aggregate row kept per user.
type UserStats struct {
	GamesPlayed    int
	Wins           int
	TotalPoints    int
	CorrectAnswers int
	WrongAnswers   int
	TimeSpentMs    int64
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		rows:  make(map[string][]*models.MatchResult),
		stats: make(map[string]*UserStats),
	}
}

func (s *MemoryResultStore) SaveResult(ctx context.Context, result *models.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows[result.SessionID] {
		if row.UserID == result.UserID {
			return fmt.Errorf("result for user %s already saved", result.UserID)
		}
	}

	row := *result
	row.ID = uuid.New().String()
	if row.FinishedAt.IsZero() {
		row.FinishedAt = time.Now()
	}
	result.ID = row.ID
	s.rows[result.SessionID] = append(s.rows[result.SessionID], &row)
	return nil
}

func (s *MemoryResultStore) MarkWinner(ctx context.Context, sessionID, winnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[sessionID]
	if len(rows) == 0 {
		return fmt.Errorf("no match results for session %s", sessionID)
	}
	for _, row := range rows {
		won := row.UserID == winnerID
		row.HasWon = &won
	}
	s.statsFor(winnerID).Wins++
	return nil
}

func (s *MemoryResultStore) MarkDraw(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows[sessionID] {
		row.HasWon = nil
	}
	return nil
}

func (s *MemoryResultStore) IncrementUserStats(ctx context.Context, userID string, record models.FinalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.statsFor(userID)
	st.GamesPlayed++
	st.TotalPoints += record.TotalPoints
	st.CorrectAnswers += record.CorrectAnswers
	st.WrongAnswers += record.WrongAnswers
	st.TimeSpentMs += record.TimeSpentMs
	return nil
}

func (s *MemoryResultStore) statsFor(userID string) *UserStats {
	st, ok := s.stats[userID]
	if !ok {
		st = &UserStats{}
		s.stats[userID] = st
	}
	return st
}

// FindBySession returns copies of the rows saved for a session.
func (s *MemoryResultStore) FindBySession(ctx context.Context, sessionID string) ([]*models.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.MatchResult, 0, len(s.rows[sessionID]))
	for _, row := range s.rows[sessionID] {
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

// Stats returns a copy of a user's aggregate row.
func (s *MemoryResultStore) Stats(userID string) UserStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stats[userID]; ok {
		return *st
	}
	return UserStats{}
}

// MemoryDeckProvider draws decks from a fixed case bank.
type MemoryDeckProvider struct {
	mu     sync.RWMutex
	cases  []models.Case
	solved map[string]map[uint]struct{}
	// shuffle is replaced in tests for a stable order.
	shuffle func(n int, swap func(i, j int))
}

func NewMemoryDeckProvider(cases []models.Case) *MemoryDeckProvider {
	return &MemoryDeckProvider{
		cases:   cases,
		solved:  make(map[string]map[uint]struct{}),
		shuffle: rand.Shuffle,
	}
}

// MarkSolved records that userID has solved caseID.
func (p *MemoryDeckProvider) MarkSolved(userID string, caseID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.solved[userID]
	if !ok {
		set = make(map[uint]struct{})
		p.solved[userID] = set
	}
	set[caseID] = struct{}{}
}

func (p *MemoryDeckProvider) AssembleDeck(ctx context.Context, params models.DeckParams) (models.Deck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	categories := make(map[uint]struct{}, len(params.CategoryIDs))
	for _, id := range params.CategoryIDs {
		categories[id] = struct{}{}
	}

	candidates := make(models.Deck, 0, len(p.cases))
	for _, c := range p.cases {
		if len(categories) > 0 {
			if _, ok := categories[c.CategoryID]; !ok {
				continue
			}
		}
		if params.UnsolvedOnly && p.solvedByAny(c.ID, params.UserIDs) {
			continue
		}
		candidates = append(candidates, c)
	}
	candidates = candidates.Playable()

	p.shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if params.Count > 0 && len(candidates) > params.Count {
		candidates = candidates[:params.Count]
	}
	return candidates, nil
}

// Categories lists the categories present in the case bank, by id.
func (p *MemoryDeckProvider) Categories(ctx context.Context) ([]models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := make(map[uint]struct{})
	out := make([]models.Category, 0)
	for _, c := range p.cases {
		if _, ok := seen[c.CategoryID]; ok {
			continue
		}
		seen[c.CategoryID] = struct{}{}
		out = append(out, models.Category{ID: c.CategoryID, Name: fmt.Sprintf("Category %d", c.CategoryID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *MemoryDeckProvider) solvedByAny(caseID uint, userIDs []string) bool {
	for _, u := range userIDs {
		if _, ok := p.solved[u][caseID]; ok {
			return true
		}
	}
	return false
}

// SampleCases builds a small bank for local play without a database.
func SampleCases(categories, perCategory, questions int) []models.Case {
	cases := make([]models.Case, 0, categories*perCategory)
	var caseID, questionID, choiceID uint
	for cat := 1; cat <= categories; cat++ {
		for i := 0; i < perCategory; i++ {
			caseID++
			c := models.Case{
				ID:         caseID,
				CategoryID: uint(cat),
				Title:      fmt.Sprintf("Case %d", caseID),
				Questions:  make([]models.Question, 0, questions),
			}
			for q := 0; q < questions; q++ {
				questionID++
				question := models.Question{
					ID:       questionID,
					CaseID:   caseID,
					Position: q,
					Prompt:   fmt.Sprintf("Question %d of case %d", q+1, caseID),
				}
				for ch := 0; ch < 4; ch++ {
					choiceID++
					question.Choices = append(question.Choices, models.Choice{
						ID:         choiceID,
						QuestionID: questionID,
						Position:   ch,
						Body:       fmt.Sprintf("Choice %c", 'A'+ch),
						IsCorrect:  ch == 0,
					})
				}
				c.Questions = append(c.Questions, question)
			}
			cases = append(cases, c)
		}
	}
	return cases
}
