package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryCounter struct {
	mu      sync.Mutex
	windows map[string]time.Time
	counts  map[string]int
	err     error
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{
		windows: map[string]time.Time{},
		counts:  map[string]int{},
	}
}

func (m *memoryCounter) Increment(ctx context.Context, identifier, endpoint string, windowStart time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	key := identifier + "|" + endpoint
	if !m.windows[key].Equal(windowStart) {
		m.windows[key] = windowStart
		m.counts[key] = 0
	}
	m.counts[key]++
	return m.counts[key], nil
}

func TestLimiterRejectsOverBudget(t *testing.T) {
	t.Parallel()

	limiter := NewLimiter(nil, newMemoryCounter())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := limiter.Check(ctx, "1.2.3.4", "chat", 3, time.Minute)
		if !result.Allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
		if want := 3 - (i + 1); result.Remaining != want {
			t.Fatalf("call %d remaining = %d, want %d", i+1, result.Remaining, want)
		}
	}

	result := limiter.Check(ctx, "1.2.3.4", "chat", 3, time.Minute)
	if result.Allowed {
		t.Fatal("fourth call should be rejected")
	}
	if result.Remaining != 0 {
		t.Fatalf("rejected remaining = %d, want 0", result.Remaining)
	}
	if result.RetryAfter(time.Now().UTC()) < 1 {
		t.Fatal("retry after should be at least one second")
	}
}

func TestLimiterAllowsAfterWindowElapses(t *testing.T) {
	t.Parallel()

	limiter := NewLimiter(nil, newMemoryCounter())
	base := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		limiter.Check(ctx, "1.2.3.4", "oauth", 2, time.Minute)
	}
	if limiter.Check(ctx, "1.2.3.4", "oauth", 2, time.Minute).Allowed {
		t.Fatal("over-budget call should be rejected")
	}

	limiter.now = func() time.Time { return base.Add(time.Minute) }
	if !limiter.Check(ctx, "1.2.3.4", "oauth", 2, time.Minute).Allowed {
		t.Fatal("call in the next window should be allowed")
	}
}

func TestLimiterScopesByIdentifierAndEndpoint(t *testing.T) {
	t.Parallel()

	limiter := NewLimiter(nil, newMemoryCounter())
	ctx := context.Background()

	limiter.Check(ctx, "1.2.3.4", "chat", 1, time.Minute)
	if limiter.Check(ctx, "1.2.3.4", "chat", 1, time.Minute).Allowed {
		t.Fatal("same identifier and endpoint should be rejected")
	}
	if !limiter.Check(ctx, "5.6.7.8", "chat", 1, time.Minute).Allowed {
		t.Fatal("different identifier should be allowed")
	}
	if !limiter.Check(ctx, "1.2.3.4", "webhook", 1, time.Minute).Allowed {
		t.Fatal("different endpoint should be allowed")
	}
}

func TestLimiterFailsOpenOnBackendError(t *testing.T) {
	t.Parallel()

	counter := newMemoryCounter()
	counter.err = errors.New("connection refused")
	limiter := NewLimiter(nil, counter)

	result := limiter.Check(context.Background(), "1.2.3.4", "chat", 5, time.Minute)
	if !result.Allowed {
		t.Fatal("backend failure must fail open")
	}
	if result.Remaining != 4 {
		t.Fatalf("fail-open remaining = %d, want the current request counted", result.Remaining)
	}

	result = limiter.Check(context.Background(), "1.2.3.4", "chat", 0, time.Minute)
	if !result.Allowed || result.Remaining != 0 {
		t.Fatalf("zero-budget fail-open: allowed=%v remaining=%d", result.Allowed, result.Remaining)
	}
}
