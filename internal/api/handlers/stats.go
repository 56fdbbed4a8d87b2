package handlers

import (
	"net/http"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

type StatsSource interface {
	Stats() service.Stats
}

type StatsHandler struct {
	source StatsSource
}

func NewStatsHandler(source StatsSource) *StatsHandler {
	return &StatsHandler{source: source}
}

func (h *StatsHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.Stats())
}
