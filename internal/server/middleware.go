package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/eventcover/internal/observability/logger"
	"go.uber.org/zap"
)

// CheckoutRateLimit throttles checkout creation per client IP.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.checkoutLimiter == nil {
			c.Next()
			return
		}

		res := s.checkoutLimiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
		if res.Allowed {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		logger.FromContext(c.Request.Context()).Warn("checkout rate limit exceeded",
			zap.String("route", c.FullPath()),
			zap.Int("retry_after_seconds", retryAfter),
		)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		AbortWithError(c, ErrRateLimited)
	}
}
