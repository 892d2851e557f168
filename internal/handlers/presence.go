package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"teams-chat/internal/repositories"
)

// OnlineChecker reports whether this instance holds a live connection for a user.
type OnlineChecker interface {
	Online(userID int) bool
}

// PresenceHandler exposes stored presence records.
type PresenceHandler struct {
	repo    repositories.PresenceRepository
	tracker OnlineChecker
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler(repo repositories.PresenceRepository, tracker OnlineChecker) *PresenceHandler {
	return &PresenceHandler{repo: repo, tracker: tracker}
}

// GetPresence returns whether a user is online and when they were last seen.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	profile, err := h.repo.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "presence not found"})
			return
		}
		glog.Errorf("load presence user=%d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presence"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":        profile.UserID,
		"is_online":      profile.IsOnline,
		"last_seen":      profile.LastSeen,
		"connected_here": h.tracker != nil && h.tracker.Online(userID),
	})
}
