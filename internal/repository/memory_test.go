package repository

import (
	"context"
	"testing"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFriendStore_Symmetric(t *testing.T) {
	s := NewMemoryFriendStore()
	s.Befriend("alice", "bob")
	s.Befriend("alice", "carol")

	ids, err := s.AcceptedFriendIDs(context.Background(), "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol"}, ids)

	ids, err = s.AcceptedFriendIDs(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ids)

	ids, err = s.AcceptedFriendIDs(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryResultStore_WinnerAndDraw(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryResultStore()
	lost := false

	for _, uid := range []string{"alice", "bob"} {
		res := &models.MatchResult{SessionID: "s1", UserID: uid, HasWon: &lost}
		require.NoError(t, s.SaveResult(ctx, res))
		assert.NotEmpty(t, res.ID)
	}
	assert.Error(t, s.SaveResult(ctx, &models.MatchResult{SessionID: "s1", UserID: "alice"}))

	require.NoError(t, s.MarkWinner(ctx, "s1", "bob"))
	rows, err := s.FindBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.NotNil(t, row.HasWon)
		assert.Equal(t, row.UserID == "bob", *row.HasWon)
	}
	assert.Equal(t, 1, s.Stats("bob").Wins)

	require.NoError(t, s.MarkDraw(ctx, "s1"))
	rows, _ = s.FindBySession(ctx, "s1")
	for _, row := range rows {
		assert.Nil(t, row.HasWon)
	}

	assert.Error(t, s.MarkWinner(ctx, "missing", "bob"))
}

func TestMemoryResultStore_IncrementUserStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryResultStore()

	require.NoError(t, s.IncrementUserStats(ctx, "alice", models.FinalRecord{TotalPoints: 30, CorrectAnswers: 3, WrongAnswers: 1, TimeSpentMs: 1000}))
	require.NoError(t, s.IncrementUserStats(ctx, "alice", models.FinalRecord{TotalPoints: 10, CorrectAnswers: 1, WrongAnswers: 3, TimeSpentMs: 500}))

	assert.Equal(t, UserStats{GamesPlayed: 2, TotalPoints: 40, CorrectAnswers: 4, WrongAnswers: 4, TimeSpentMs: 1500}, s.Stats("alice"))
}

func TestMemoryDeckProvider_AssembleDeck(t *testing.T) {
	bank := SampleCases(2, 3, 2)
	bank = append(bank, models.Case{ID: 99, CategoryID: 1})

	tests := []struct {
		name    string
		params  models.DeckParams
		solved  map[string][]uint
		wantIDs []uint
	}{
		{
			name:    "category filter drops empty cases",
			params:  models.DeckParams{CategoryIDs: []uint{1}, Count: 10},
			wantIDs: []uint{1, 2, 3},
		},
		{
			name:    "count limits deck",
			params:  models.DeckParams{Count: 2},
			wantIDs: []uint{1, 2},
		},
		{
			name:    "unsolved only excludes cases solved by either player",
			params:  models.DeckParams{CategoryIDs: []uint{2}, Count: 10, UnsolvedOnly: true, UserIDs: []string{"alice", "bob"}},
			solved:  map[string][]uint{"alice": {4}, "bob": {6}},
			wantIDs: []uint{5},
		},
		{
			name:    "solved cases kept when unsolved filter is off",
			params:  models.DeckParams{CategoryIDs: []uint{2}, Count: 10, UserIDs: []string{"alice"}},
			solved:  map[string][]uint{"alice": {4}},
			wantIDs: []uint{4, 5, 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMemoryDeckProvider(bank)
			p.shuffle = func(int, func(i, j int)) {}
			for uid, ids := range tt.solved {
				for _, id := range ids {
					p.MarkSolved(uid, id)
				}
			}

			deck, err := p.AssembleDeck(context.Background(), tt.params)
			require.NoError(t, err)

			got := make([]uint, 0, len(deck))
			for _, c := range deck {
				got = append(got, c.ID)
				assert.NotEmpty(t, c.Questions)
			}
			assert.Equal(t, tt.wantIDs, got)
		})
	}
}

func TestSampleCases_OrderedQuestions(t *testing.T) {
	cases := SampleCases(1, 2, 3)
	require.Len(t, cases, 2)
	for _, c := range cases {
		require.Len(t, c.Questions, 3)
		for i, q := range c.Questions {
			assert.Equal(t, i, q.Position)
			assert.Len(t, q.Choices, 4)
		}
	}
	assert.Equal(t, 6, models.Deck(cases).TotalQuestions())
}

func TestMemoryDeckProvider_Categories(t *testing.T) {
	p := NewMemoryDeckProvider(SampleCases(3, 2, 1))

	categories, err := p.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Category{
		{ID: 1, Name: "Category 1"},
		{ID: 2, Name: "Category 2"},
		{ID: 3, Name: "Category 3"},
	}, categories)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Categories(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
