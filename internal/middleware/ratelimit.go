package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	appctx "github.com/genstudio/server/internal/context"
)

// RateLimit returns a fixed-window limiter backed by Redis, keyed by the
// authenticated user id when present, the client IP otherwise. Runs after
// the API-key middleware so authenticated callers get their own bucket.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.ClientIP()
		if user, ok := appctx.GetUser(c); ok {
			id = user.ID
		}

		key := "ratelimit:" + id
		ctx := c.Request.Context()

		n, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// Redis being down should not take generation down with it.
			log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if n == 1 {
			rdb.Expire(ctx, key, window)
		}

		if n > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, slow down",
			})
			return
		}

		c.Next()
	}
}
