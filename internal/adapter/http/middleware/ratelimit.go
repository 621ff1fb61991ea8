package middleware

import (
	"fmt"
	"strconv"
	"time"

	redisStore "offline-wallet/internal/adapter/storage/redis"
	"offline-wallet/pkg/apperror"
	"offline-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"vouchers_issue":  {Limit: 30, Window: time.Minute},
		"vouchers_redeem": {Limit: 60, Window: time.Minute},
		"vouchers_cancel": {Limit: 30, Window: time.Minute},
		"sync":            {Limit: 6, Window: time.Minute},
		"pin":             {Limit: 5, Window: time.Hour},
		"wallet":          {Limit: 120, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Store failures let the request through.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := max(result.ResetAt-time.Now().Unix(), 1)
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

func extractIdentifier(c *gin.Context) string {
	if uid := c.GetString(CtxWalletUID); uid != "" {
		return uid
	}
	return c.ClientIP()
}
