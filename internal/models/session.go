package models

import (
	"sort"
	"time"
)

type ConnState string

const (
	ConnConnected    ConnState = "connected"
	ConnDisconnected ConnState = "disconnected"
	ConnAway         ConnState = "away"
)

// AnswerRecord is one submitted answer. EliminatedChoiceIndices is a set,
// kept sorted and free of duplicates by Normalize.
type AnswerRecord struct {
	CaseID                  uint  `json:"caseId"`
	QuestionID              uint  `json:"questionId"`
	SelectedChoiceIndex     int   `json:"selectedChoiceIndex"`
	EliminatedChoiceIndices []int `json:"eliminatedChoiceIndices"`
	IsCorrect               bool  `json:"isCorrect"`
	TimeSpentMs             int64 `json:"timeSpentMs"`
	PointsAwarded           int   `json:"pointsAwarded"`
}

func (a AnswerRecord) Normalize() AnswerRecord {
	seen := make(map[int]struct{}, len(a.EliminatedChoiceIndices))
	set := make([]int, 0, len(a.EliminatedChoiceIndices))
	for _, i := range a.EliminatedChoiceIndices {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		set = append(set, i)
	}
	sort.Ints(set)
	a.EliminatedChoiceIndices = set
	return a
}

// AggregateStats is the running score snapshot a client sends with each answer.
type AggregateStats struct {
	TotalPoints    int   `json:"totalPoints"`
	CorrectAnswers int   `json:"correctAnswers"`
	WrongAnswers   int   `json:"wrongAnswers"`
	TimeSpentMs    int64 `json:"timeSpentMs"`
}

// Cursor is the shared question position. QuestionNumber is 1-based and flat
// across the whole deck.
type Cursor struct {
	CaseIndex      int `json:"caseIndex"`
	QuestionIndex  int `json:"questionIndex"`
	QuestionNumber int `json:"questionNumber"`
}

// PlayerProgress is treated as an immutable value: every update returns a copy.
type PlayerProgress struct {
	CurrentCaseIndex      int            `json:"currentCaseIndex"`
	CurrentQuestionIndex  int            `json:"currentQuestionIndex"`
	CurrentQuestionNumber int            `json:"currentQuestionNumber"`
	AnswerRecords         []AnswerRecord `json:"answerRecords"`
	HasSolvedCurrent      bool           `json:"hasSolvedCurrent"`
	LastActivityAt        time.Time      `json:"lastActivityAt"`
	Stats                 AggregateStats `json:"stats"`
}

func NewPlayerProgress(now time.Time) PlayerProgress {
	return PlayerProgress{
		CurrentQuestionNumber: 1,
		AnswerRecords:         []AnswerRecord{},
		LastActivityAt:        now,
	}
}

func (p PlayerProgress) Cursor() Cursor {
	return Cursor{
		CaseIndex:      p.CurrentCaseIndex,
		QuestionIndex:  p.CurrentQuestionIndex,
		QuestionNumber: p.CurrentQuestionNumber,
	}
}

// WithAnswer appends rec, replaces the stats snapshot and marks the current
// question solved.
func (p PlayerProgress) WithAnswer(rec AnswerRecord, stats AggregateStats, now time.Time) PlayerProgress {
	records := make([]AnswerRecord, len(p.AnswerRecords), len(p.AnswerRecords)+1)
	copy(records, p.AnswerRecords)
	p.AnswerRecords = append(records, rec.Normalize())
	p.Stats = stats
	p.HasSolvedCurrent = true
	p.LastActivityAt = now
	return p
}

// AtCursor moves the player to c and clears the solved flag.
func (p PlayerProgress) AtCursor(c Cursor) PlayerProgress {
	p.CurrentCaseIndex = c.CaseIndex
	p.CurrentQuestionIndex = c.QuestionIndex
	p.CurrentQuestionNumber = c.QuestionNumber
	p.HasSolvedCurrent = false
	return p
}

// FinalRecord is what a client reports when it finishes the deck.
type FinalRecord struct {
	TotalPoints    int   `json:"totalPoints"`
	CorrectAnswers int   `json:"correctAnswers"`
	WrongAnswers   int   `json:"wrongAnswers"`
	TimeSpentMs    int64 `json:"timeSpentMs"`
}

// FinalReport tracks one player's finish report and whether its row is durable.
type FinalReport struct {
	Record     FinalRecord
	ReportedAt time.Time
	Persisted  bool
}

// MatchSession is the authoritative record of an active two-player match.
// Player1 is the inviter and holds the master flag.
type MatchSession struct {
	ID              string         `json:"sessionId"`
	RoomKey         string         `json:"roomKey"`
	Deck            Deck           `json:"deck"`
	Player1ID       string         `json:"player1Id"`
	Player2ID       string         `json:"player2Id"`
	Player1Progress PlayerProgress `json:"player1Progress"`
	Player2Progress PlayerProgress `json:"player2Progress"`
	Player1Conn     ConnState      `json:"player1ConnState"`
	Player2Conn     ConnState      `json:"player2ConnState"`
	MasterID        string         `json:"masterId"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`

	Player1Final *FinalReport `json:"-"`
	Player2Final *FinalReport `json:"-"`
}

// Seat returns 1 or 2 for a participant, 0 otherwise.
func (s *MatchSession) Seat(userID string) int {
	switch userID {
	case s.Player1ID:
		return 1
	case s.Player2ID:
		return 2
	}
	return 0
}

func (s *MatchSession) OpponentOf(userID string) string {
	switch s.Seat(userID) {
	case 1:
		return s.Player2ID
	case 2:
		return s.Player1ID
	}
	return ""
}

// SessionSnapshot is the full state pushed to a client after a reconnect.
type SessionSnapshot struct {
	SessionID        string         `json:"sessionId"`
	RoomKey          string         `json:"roomKey"`
	Deck             Deck           `json:"deck"`
	IsMaster         bool           `json:"isMaster"`
	OpponentID       string         `json:"opponentId"`
	Progress         PlayerProgress `json:"progress"`
	OpponentProgress PlayerProgress `json:"opponentProgress"`
	OpponentConn     ConnState      `json:"opponentConnState"`
	ServerTime       time.Time      `json:"serverTime"`
}
