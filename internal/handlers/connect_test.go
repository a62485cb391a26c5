package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/oauth"
)

type fakeOAuthManager struct {
	authURL      string
	callbackErr  error
	disconnected string
}

func (f *fakeOAuthManager) Start(ctx context.Context, userID, channelID string) (string, error) {
	return f.authURL, nil
}

func (f *fakeOAuthManager) Callback(ctx context.Context, code, state string) error {
	return f.callbackErr
}

func (f *fakeOAuthManager) Disconnect(ctx context.Context, userID, channelID string) error {
	f.disconnected = channelID
	return nil
}

const dashboard = "https://app.example.com/dashboard"

func TestCallbackRedirectsSuccess(t *testing.T) {
	t.Parallel()

	e := newEcho()
	NewConnectHandler(testLogger(), &fakeOAuthManager{}, dashboard).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/api/channels/oauth/whatsapp/callback?code=abc&state=xyz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != dashboard+"?oauth=success" {
		t.Fatalf("location = %q", got)
	}
}

func TestCallbackRedirectsStateErrorWithReason(t *testing.T) {
	t.Parallel()

	e := newEcho()
	manager := &fakeOAuthManager{callbackErr: &oauth.StateError{Reason: "state_expired"}}
	NewConnectHandler(testLogger(), manager, dashboard).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/api/channels/oauth/whatsapp/callback?code=abc&state=old", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); !strings.Contains(got, "oauth=error") || !strings.Contains(got, "reason=state_expired") {
		t.Fatalf("location = %q", got)
	}
}

func TestCallbackMissingParameters(t *testing.T) {
	t.Parallel()

	e := newEcho()
	NewConnectHandler(testLogger(), &fakeOAuthManager{}, dashboard).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/api/channels/oauth/whatsapp/callback", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get("Location"); !strings.Contains(got, "reason=missing_parameters") {
		t.Fatalf("location = %q", got)
	}
}

func TestConnectRequiresAuth(t *testing.T) {
	t.Parallel()

	e := newEcho()
	NewConnectHandler(testLogger(), &fakeOAuthManager{authURL: "https://provider.example"}, dashboard).Register(e)

	req := httptest.NewRequest(http.MethodPost, "/api/channels/connect", strings.NewReader(`{"channel_id":"ch-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a JWT", rec.Code)
	}
}
