package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/ratelimit"
)

func TestShouldSkipJWT(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/ping", want: true},
		{path: "/health", want: true},
		{path: "/api/widget/chat", want: true},
		{path: "/api/widget/init", want: true},
		{path: "/webhooks/whatsapp", want: true},
		{path: "/webhooks/instagram", want: true},
		{path: "/api/channels/oauth/whatsapp/callback", want: true},
		{path: "/api/channels/connect", want: false},
		{path: "/api/channels/disconnect", want: false},
		{path: "/api/channels/oauth", want: false},
	}

	for _, tc := range cases {
		got := shouldSkipJWT(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}

type stubCounter struct {
	counts map[string]int
}

func (s *stubCounter) Increment(ctx context.Context, identifier, endpoint string, windowStart time.Time) (int, error) {
	if s.counts == nil {
		s.counts = map[string]int{}
	}
	key := identifier + "|" + endpoint
	s.counts[key]++
	return s.counts[key], nil
}

// Unauthenticated requests must drain the budget too: the limiter sits in
// front of auth, so an attacker without a token still gets throttled.
func TestBudgetCountsUnauthenticatedRequests(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.NewLimiter(log, &stubCounter{})
	cfg := config.Config{
		Auth:      config.AuthConfig{JWTSecret: "test-secret"},
		RateLimit: config.RateLimitConfig{Enabled: true},
	}
	srv := NewServer(log, cfg, limiter, nil, nil, nil, nil)

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/channels/connect", nil)
		req.Header.Set("X-Real-IP", "203.0.113.9")
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < ratelimit.BudgetOAuth; i++ {
		got := do()
		if got == http.StatusTooManyRequests {
			t.Fatalf("request %d rejected by the limiter too early", i+1)
		}
		if got < 400 {
			t.Fatalf("request %d without a token should be rejected, got %d", i+1, got)
		}
	}
	if got := do(); got != http.StatusTooManyRequests {
		t.Fatalf("over-budget unauthenticated request: got %d, want 429", got)
	}
}
