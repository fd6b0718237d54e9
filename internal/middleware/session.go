package middleware

import (
	"github.com/gin-gonic/gin"
)

const HeaderSessionID = "X-Session-ID"

// Session extracts the caller's opaque session id. The core never validates
// or interprets it; it only partitions rate limits. Anonymous callers fall
// back to their client IP.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(HeaderSessionID)
		if sessionID == "" {
			sessionID = "ip:" + c.ClientIP()
		}

		c.Set("session_id", sessionID)
		c.Next()
	}
}

// SessionID reads the session id set by Session.
func SessionID(c *gin.Context) string {
	return c.GetString("session_id")
}
