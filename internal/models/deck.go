package models

// Category groups cases for deck selection.
type Category struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name"`
}

// Case is one clinical case of a deck. Questions are ordered by Position.
type Case struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	CategoryID uint       `json:"categoryId" gorm:"index"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Questions  []Question `json:"questions" gorm:"foreignKey:CaseID"`
}

type Question struct {
	ID          uint     `json:"id" gorm:"primaryKey"`
	CaseID      uint     `json:"caseId" gorm:"index"`
	Position    int      `json:"position"`
	Prompt      string   `json:"prompt"`
	Explanation string   `json:"explanation,omitempty"`
	Choices     []Choice `json:"choices" gorm:"foreignKey:QuestionID"`
}

type Choice struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"questionId" gorm:"index"`
	Position   int    `json:"position"`
	Body       string `json:"body"`
	IsCorrect  bool   `json:"isCorrect"`
}

// SolvedCase marks a case a user already answered correctly.
type SolvedCase struct {
	UserID string `gorm:"primaryKey"`
	CaseID uint   `gorm:"primaryKey"`
}

// Deck is the ordered list of cases shared by both players of a match.
type Deck []Case

// QuestionCount returns the number of questions of case i, or 0 when i is out of range.
func (d Deck) QuestionCount(i int) int {
	if i < 0 || i >= len(d) {
		return 0
	}
	return len(d[i].Questions)
}

// TotalQuestions returns the flat question count across all cases.
func (d Deck) TotalQuestions() int {
	n := 0
	for _, c := range d {
		n += len(c.Questions)
	}
	return n
}

// Playable returns the deck without cases that have no questions.
func (d Deck) Playable() Deck {
	out := make(Deck, 0, len(d))
	for _, c := range d {
		if len(c.Questions) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// DeckParams selects cases for a new deck.
type DeckParams struct {
	CategoryIDs  []uint   `json:"categoryIds"`
	Count        int      `json:"count"`
	UnsolvedOnly bool     `json:"unsolvedOnly"`
	UserIDs      []string `json:"-"`
}
