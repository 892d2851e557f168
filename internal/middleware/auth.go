package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"teams-chat/internal/auth"
)

// Context keys set by the middlewares in this package.
const (
	UserIDKey   = "userID"
	UsernameKey = "username"
)

// AuthMiddleware validates the Authorization header with the configured authenticator.
func AuthMiddleware(authenticator auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token := auth.BearerToken(header)
		if token == "" || strings.ContainsAny(token, " \t") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(UsernameKey, identity.Username)
		c.Next()
	}
}
