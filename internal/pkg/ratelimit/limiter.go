package ratelimit

import (
	"context"
	"time"
)

// Limiter allows Limit hits per key per Window.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

func NewLimiter(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow counts one hit for key and reports whether it is within the limit,
// plus how many hits remain in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int, error) {
	if l == nil || l.limit <= 0 {
		return true, 0, nil
	}
	n, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return false, 0, err
	}
	remaining := l.limit - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return n <= int64(l.limit), remaining, nil
}
