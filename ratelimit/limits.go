package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Limit allows Requests per Period, written as "N/second", "N/minute",
// "N/hour" or "N/day".
type Limit struct {
	Requests int
	Period   time.Duration
}

var periods = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

func ParseLimit(s string) (Limit, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 {
		return Limit{}, fmt.Errorf("invalid rate limit '%s'", s)
	}
	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || requests <= 0 {
		return Limit{}, fmt.Errorf("invalid rate limit '%s'", s)
	}
	unit := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(parts[1])), "s")
	period, found := periods[unit]
	if !found {
		return Limit{}, fmt.Errorf("invalid rate limit '%s'", s)
	}
	return Limit{Requests: requests, Period: period}, nil
}

func MustParseLimit(s string) Limit {
	l, err := ParseLimit(s)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Limit) String() string {
	for name, d := range periods {
		if d == l.Period {
			return strconv.Itoa(l.Requests) + "/" + name
		}
	}
	return strconv.Itoa(l.Requests) + "/" + l.Period.String()
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	// Allow consumes one request of key's quota. A limiter that fails still
	// returns a decision the caller may act on.
	Allow(ctx context.Context, key string, limit Limit) (Decision, error)
}
