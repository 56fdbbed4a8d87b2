package handlers

import (
	"context"
	"net/http"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
)

// CategoryLister lists the categories a deck can be drawn from.
type CategoryLister interface {
	Categories(ctx context.Context) ([]models.Category, error)
}

type CategoryHandler struct {
	categories CategoryLister
}

func NewCategoryHandler(categories CategoryLister) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// ListCategories handles GET /categories.
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	categories, err := h.categories.Categories(c.Request.Context())
	if err != nil {
		logger.Error("Failed to list categories", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list categories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}
