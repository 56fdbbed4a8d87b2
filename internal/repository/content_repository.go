package repository

import (
	"context"
	"fmt"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"gorm.io/gorm"
)

// ContentRepository assembles decks from the authored case bank.
type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// AssembleDeck picks params.Count random cases from the given categories.
// With UnsolvedOnly, cases solved by any of params.UserIDs are excluded.
// Questions and choices keep their authored order; cases without questions
// are never returned.
func (r *ContentRepository) AssembleDeck(ctx context.Context, params models.DeckParams) (models.Deck, error) {
	db := r.db.WithContext(ctx)

	q := db.Model(&models.Case{}).
		Where("EXISTS (SELECT 1 FROM questions WHERE questions.case_id = cases.id)")

	if len(params.CategoryIDs) > 0 {
		q = q.Where("category_id IN ?", params.CategoryIDs)
	}
	if params.UnsolvedOnly && len(params.UserIDs) > 0 {
		solved := db.Model(&models.SolvedCase{}).
			Select("case_id").
			Where("user_id IN ?", params.UserIDs)
		q = q.Where("id NOT IN (?)", solved)
	}

	var cases []models.Case
	err := q.
		Preload("Questions", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Preload("Questions.Choices", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Order("RANDOM()").
		Limit(params.Count).
		Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to assemble deck: %w", err)
	}

	return models.Deck(cases).Playable(), nil
}

// Categories lists every category, for clients building deck selections.
func (r *ContentRepository) Categories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}
