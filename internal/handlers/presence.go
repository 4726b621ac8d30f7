package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxPresenceQuery = 200

// PresenceHandler answers online-status queries over REST.
type PresenceHandler struct {
	realtime Realtime
}

func NewPresenceHandler(realtime Realtime) *PresenceHandler {
	return &PresenceHandler{realtime: realtime}
}

// OnlineStatus handles GET /users/online?ids=1,2,3.
func (h *PresenceHandler) OnlineStatus(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("ids"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}

	parts := strings.Split(raw, ",")
	if len(parts) > maxPresenceQuery {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many ids"})
		return
	}
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id " + p})
			return
		}
		ids = append(ids, id)
	}

	status := h.realtime.OnlineStatus(ids)
	out := make(map[string]bool, len(status))
	for id, online := range status {
		out[strconv.Itoa(id)] = online
	}
	c.JSON(http.StatusOK, out)
}
