package handlers

import (
	"net/http"
	"strings"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/gin-gonic/gin"
)

const maxPresenceIDs = 100

// StatusReader answers bulk presence lookups.
type StatusReader interface {
	Statuses(userIDs []string) map[string]models.PresenceStatus
}

type PresenceHandler struct {
	presence StatusReader
}

func NewPresenceHandler(presence StatusReader) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GetStatuses handles GET /presence?ids=a,b. Unknown users are offline.
func (h *PresenceHandler) GetStatuses(c *gin.Context) {
	raw := c.Query("ids")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids query parameter required"})
		return
	}

	ids := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) > maxPresenceIDs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many ids"})
		return
	}

	c.JSON(http.StatusOK, models.FriendsStatusPayload{Statuses: h.presence.Statuses(ids)})
}
