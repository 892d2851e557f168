package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"teams-chat/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader(middleware.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

// userIDFromContext returns the authenticated user, falling back to the
// X-User-ID header set by the gateway. Zero means anonymous.
func userIDFromContext(c *gin.Context) int {
	if userID := c.GetInt(middleware.UserIDKey); userID != 0 {
		return userID
	}
	if header := c.GetHeader("X-User-ID"); header != "" {
		if parsed, err := strconv.Atoi(header); err == nil {
			return parsed
		}
	}
	return 0
}
