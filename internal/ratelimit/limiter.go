// Package ratelimit implements a windowed request counter keyed by
// (client identifier, endpoint). The counting backend is external; when it is
// unreachable the limiter fails open so traffic is never blocked by an outage
// of the safety net itself.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Per-minute budgets for the public entry points. BudgetCheckout is reserved
// for a commerce checkout surface; no route binds it.
const (
	BudgetOAuth    = 10
	BudgetChat     = 30
	BudgetCheckout = 10
	BudgetWebhook  = 100
	BudgetDefault  = 60
)

// DefaultWindow is the counting window used by all endpoint budgets.
const DefaultWindow = time.Minute

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns whole seconds until the window resets, at least 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(time.Until(r.ResetAt).Seconds())
	if !now.IsZero() {
		secs = int(r.ResetAt.Sub(now).Seconds())
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Counter is the shared counting backend. Increment must be atomic: it bumps
// the count for the window beginning at windowStart, resetting the count when
// the stored window is older.
type Counter interface {
	Increment(ctx context.Context, identifier, endpoint string, windowStart time.Time) (int, error)
}

// Limiter checks request budgets against a Counter.
type Limiter struct {
	counter Counter
	logger  *slog.Logger
	now     func() time.Time
}

// NewLimiter creates a limiter over the given counting backend.
func NewLimiter(log *slog.Logger, counter Counter) *Limiter {
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{
		counter: counter,
		logger:  log.With(slog.String("service", "ratelimit")),
		now:     time.Now,
	}
}

// Check counts the request and reports whether it is within budget.
// Backend failures are logged and the request is allowed.
func (l *Limiter) Check(ctx context.Context, identifier, endpoint string, max int, window time.Duration) Result {
	if window <= 0 {
		window = DefaultWindow
	}
	now := l.now().UTC()
	windowStart := now.Truncate(window)
	resetAt := windowStart.Add(window)

	count, err := l.counter.Increment(ctx, identifier, endpoint, windowStart)
	if err != nil {
		l.logger.Warn("rate limit backend unavailable, failing open",
			slog.String("endpoint", endpoint), slog.Any("error", err))
		// The uncounted request still occupies a slot in the reported quota.
		remaining := max - 1
		if remaining < 0 {
			remaining = 0
		}
		return Result{Allowed: true, Limit: max, Remaining: remaining, ResetAt: resetAt}
	}

	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= max,
		Limit:     max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
