package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Capacity   int64                     // Maximum number of requests
	RefillRate int64                     // Requests per second
	KeyFunc    func(*gin.Context) string // Function to extract rate limit key
}

// DefaultKeyFunc uses user ID if authenticated, otherwise IP address
func DefaultKeyFunc(c *gin.Context) string {
	if userID, exists := c.Get("userId"); exists {
		return fmt.Sprintf("user:%v", userID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimit rejects requests over the bucket of their key with 429. The
// limiter is shared so its idle buckets can be swept elsewhere.
func RateLimit(limiter *ratelimit.RateLimiter, config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))
		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": fmt.Sprintf("Too many requests. Limit: %d requests per second", config.RefillRate),
			})
			return
		}

		c.Next()
	}
}
