package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/restobook/sumup-sync/internal/domain/session"
)

// SessionKey is the gin context key holding the authenticated session
const SessionKey = "session"

// Auth resolves the bearer token to a session and stores it in the request
// context. Requests without a valid session are rejected with 401.
func Auth(logger *slog.Logger, sessions session.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			abortUnauthorized(c, "Missing bearer token")
			return
		}

		sess, err := sessions.FindByToken(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionExpired):
				abortUnauthorized(c, "Invalid or expired session")
			default:
				logger.Error("Session lookup failed", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"message": "An internal server error occurred"},
				})
			}
			return
		}

		c.Set(SessionKey, sess)
		c.Next()
	}
}

// GetSession retrieves the authenticated session from the gin context
func GetSession(c *gin.Context) *session.Session {
	if v, exists := c.Get(SessionKey); exists {
		if sess, ok := v.(*session.Session); ok {
			return sess
		}
	}
	return nil
}

func abortUnauthorized(c *gin.Context, message string) {
	response := gin.H{
		"error": gin.H{"message": message},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, response)
}
