// Package ratelimit gates outbound provider calls with a fixed-window
// counter shared through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammed-shakir/geofeature-cache/internal/cache/keys"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/observability"
)

// Counter increments a windowed counter and returns the new value.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

type FixedWindow struct {
	counter Counter
	scope   string
	max     int64
	window  time.Duration
	now     func() time.Time
}

func NewFixedWindow(c Counter, scope string, limit int, window time.Duration) *FixedWindow {
	if window <= 0 {
		window = time.Minute
	}
	if limit <= 0 {
		limit = 1
	}
	return &FixedWindow{
		counter: c,
		scope:   scope,
		max:     int64(limit),
		window:  window,
		now:     time.Now,
	}
}

// Allow consumes one slot in the current window. On backend errors it
// reports allowed=true together with the error.
func (l *FixedWindow) Allow(ctx context.Context) (bool, error) {
	start := l.now().Truncate(l.window).Unix()
	n, err := l.counter.IncrWindow(ctx, keys.RateWindowKey(l.scope, start), l.window)
	if err != nil {
		observability.ObserveRateLimit(true)
		return true, fmt.Errorf("rate limit counter: %w", err)
	}
	allowed := n <= l.max
	observability.ObserveRateLimit(allowed)
	return allowed, nil
}
