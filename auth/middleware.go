package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the gin context key under which the authenticated user ID is
// stored by Middleware.
const userIDKey = "user_id"

// Middleware returns a gin handler that validates the Authorization header
// and stores the authenticated user ID in the request context.
func Middleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing Authorization header",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid Authorization header format",
			})
			return
		}

		userID, err := svc.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserIDFromContext returns the authenticated user ID set by Middleware,
// or empty string if the request was not authenticated.
func UserIDFromContext(c *gin.Context) string {
	userID, _ := c.Get(userIDKey)
	if s, ok := userID.(string); ok {
		return s
	}
	return ""
}
