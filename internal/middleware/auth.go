package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/session"
)

// AuthMiddleware validates the Authorization header against the session
// manager and attaches the principal to both the gin and request contexts.
// The check is a UX convenience; the store-side constraints remain the
// enforcement boundary.
func AuthMiddleware(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := sessions.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", principal.ID)
		c.Request = c.Request.WithContext(session.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}
