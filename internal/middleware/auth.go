package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Auth validates the inbound bearer token against the configured service
// API key. An empty configured key disables authentication entirely.
func Auth(serviceAPIKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if serviceAPIKey == "" {
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if !validBearer(auth, serviceAPIKey) {
			RespondOpenAIError(c, http.StatusUnauthorized, "invalid_api_key", "Unauthorized: Invalid API key")
			c.Abort()
			return
		}

		c.Next()
	}
}

func validBearer(auth, key string) bool {
	if auth == "" {
		return false
	}
	parts := strings.Fields(auth)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return false
	}
	return parts[1] == key
}
