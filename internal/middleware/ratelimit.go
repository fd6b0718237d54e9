package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopscout/shopscout/internal/apperr"
	"github.com/shopscout/shopscout/internal/ratelimit"
)

// RateLimit gates one route with the named operation class's bucket, keyed
// by session. Denials return 429 with rate-limit headers; the caller is
// expected to back off.
func RateLimit(limits *ratelimit.Registry, op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := SessionID(c)
		key := fmt.Sprintf("%s:%s", op, sessionID)

		allowed, err := limits.Take(c.Request.Context(), op, sessionID, 1)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "INTERNAL",
			})
			c.Abort()
			return
		}

		if bucket, ok := limits.Bucket(op); ok {
			remaining, _ := bucket.Remaining(c.Request.Context(), key)
			resetAt, _ := bucket.ResetAt(c.Request.Context(), key)

			c.Header("X-RateLimit-Limit", fmt.Sprintf("%.0f", bucket.Capacity()))
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%.0f", remaining))
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
		}

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error_code": apperr.ErrRateLimited.Code,
				"operation":  op,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
