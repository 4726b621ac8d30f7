package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/auth"
)

const (
	UserIDKey   = "userID"
	UsernameKey = "username"
)

// AuthMiddleware validates the bearer token and stores the caller's identity in the gin context.
func AuthMiddleware(validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		id, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, id.UserID)
		c.Set(UsernameKey, id.Username)
		c.Next()
	}
}
