package ratelimit

import (
	"math"
	"strconv"

	"gatekeeper/bizerror"
	"gatekeeper/infra/metrics"
	"gatekeeper/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// KeyFunc names the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByPrincipal keys authenticated requests by user id and falls back to the client ip.
func ByPrincipal(c *gin.Context) string {
	if s := session.FindSecurityContext(c); s != nil {
		return "user:" + s.Identity.ID.String()
	}
	return ByClientIP(c)
}

func Middleware(limiter Limiter, limit Limit, scope string, keyFunc KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + keyFunc(c)
		decision, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logrus.WithContext(c.Request.Context()).WithField("scope", scope).Warnf("rate limiter failed: %v", err)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			metrics.RecordRateLimited(scope)
			panic(bizerror.ErrTooManyRequests)
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Next()
	}
}
