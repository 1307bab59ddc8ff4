package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"peer-server/internal/session"
)

// AuthMiddleware resolves the Authorization bearer token against the session
// registry and stores the resolved identity on the request context.
func AuthMiddleware(sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "InvalidSession"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "InvalidSession"})
			return
		}

		userID, err := sessions.Resolve(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "InvalidSession"})
			return
		}

		c.Set("userID", userID)
		c.Set("sessionToken", parts[1])
		c.Next()
	}
}
