package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/auth"
	"github.com/relaydesk/relaydesk/internal/channels"
	"github.com/relaydesk/relaydesk/internal/oauth"
)

// OAuthManager is the connect lifecycle surface; *oauth.Manager is the
// production implementation.
type OAuthManager interface {
	Start(ctx context.Context, userID, channelID string) (string, error)
	Callback(ctx context.Context, code, state string) error
	Disconnect(ctx context.Context, userID, channelID string) error
}

// ConnectHandler drives channel OAuth from the owner dashboard.
type ConnectHandler struct {
	manager      OAuthManager
	dashboardURL string
	logger       *slog.Logger
}

// NewConnectHandler creates a ConnectHandler. dashboardURL is where callback
// results redirect to.
func NewConnectHandler(log *slog.Logger, manager OAuthManager, dashboardURL string) *ConnectHandler {
	return &ConnectHandler{
		manager:      manager,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		logger:       log.With(slog.String("handler", "connect")),
	}
}

// Register registers the connect routes. Connect and disconnect require the
// owner JWT; the callback is reached by the visitor's browser via the
// provider redirect and authenticates through the signed state instead.
func (h *ConnectHandler) Register(e *echo.Echo) {
	e.POST("/api/channels/connect", h.Connect)
	e.POST("/api/channels/disconnect", h.Disconnect)
	e.GET("/api/channels/oauth/:kind/callback", h.Callback)
}

type connectRequest struct {
	ChannelID string `json:"channel_id"`
}

type connectResponse struct {
	AuthURL string `json:"auth_url"`
}

// Connect begins the OAuth flow for a channel and returns the consent URL.
func (h *ConnectHandler) Connect(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channel_id is required")
	}

	authURL, err := h.manager.Start(c.Request().Context(), userID, req.ChannelID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, connectResponse{AuthURL: authURL})
}

// Callback finishes the OAuth flow and sends the browser back to the
// dashboard. Failures become a redirect with a reason, never an error page.
func (h *ConnectHandler) Callback(c echo.Context) error {
	if _, err := channels.ParseKind(c.Param("kind")); err != nil {
		return h.redirectError(c, "unknown_channel_type")
	}
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return h.redirectError(c, "missing_parameters")
	}

	err := h.manager.Callback(c.Request().Context(), code, state)
	if err == nil {
		return c.Redirect(http.StatusFound, h.dashboardURL+"?oauth=success")
	}

	var stateErr *oauth.StateError
	if errors.As(err, &stateErr) {
		return h.redirectError(c, stateErr.Reason)
	}
	h.logger.Error("oauth callback failed", slog.Any("error", err))
	return h.redirectError(c, "connect_failed")
}

func (h *ConnectHandler) redirectError(c echo.Context, reason string) error {
	return c.Redirect(http.StatusFound,
		h.dashboardURL+"?oauth=error&reason="+url.QueryEscape(reason))
}

type disconnectRequest struct {
	ChannelID string `json:"channel_id"`
}

// Disconnect revokes a channel connection.
func (h *ConnectHandler) Disconnect(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req disconnectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channel_id is required")
	}

	if err := h.manager.Disconnect(c.Request().Context(), userID, req.ChannelID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
