package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	StatusHealthy = "healthy"

	Connected    = "connected"
	Disconnected = "disconnected"
)

var (
	PathHealth = "/api/v1/health"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Report struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis,omitempty"`
}

// Checker pings the dependencies of the service. Redis is optional.
type Checker struct {
	Database Pinger
	Redis    *redis.Client
	Timeout  time.Duration
}

func NewChecker(database Pinger, redisClient *redis.Client) *Checker {
	return &Checker{Database: database, Redis: redisClient, Timeout: 2 * time.Second}
}

// Check never fails, unreachable dependencies are reported as disconnected.
func (h *Checker) Check(ctx context.Context) Report {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	report := Report{Status: StatusHealthy, Database: Disconnected}
	if h.Database != nil {
		report.Database = checkDependency(ctx, "database", h.Database.Ping)
	}
	if h.Redis != nil {
		report.Redis = checkDependency(ctx, "redis", func(ctx context.Context) error {
			return h.Redis.Ping(ctx).Err()
		})
	}
	return report
}

func checkDependency(ctx context.Context, name string, ping func(ctx context.Context) error) string {
	if err := ping(ctx); err != nil {
		logrus.WithContext(ctx).WithError(err).Warnf("health check of %s failed", name)
		return Disconnected
	}
	return Connected
}

func RegisterHealthRestAPI(r *gin.Engine, checker *Checker, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathHealth, middleWares...)
	g.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, checker.Check(c.Request.Context()))
	})
}
