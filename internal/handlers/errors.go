// Package handlers exposes the HTTP surface: the widget API, provider
// webhooks, and the channel connect endpoints.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/bots"
	"github.com/relaydesk/relaydesk/internal/channels"
	"github.com/relaydesk/relaydesk/internal/chat"
	"github.com/relaydesk/relaydesk/internal/conversations"
	"github.com/relaydesk/relaydesk/internal/oauth"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler maps domain sentinel errors onto status codes. Anything
// unrecognized becomes an opaque 500; the cause is logged, never echoed.
func NewHTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	logger := log.With(slog.String("service", "http"))

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"

		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &httpErr):
			status = httpErr.Code
			if m, ok := httpErr.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		case errors.Is(err, bots.ErrBotNotFound),
			errors.Is(err, channels.ErrChannelNotFound),
			errors.Is(err, conversations.ErrConversationNotFound):
			status = http.StatusNotFound
			message = err.Error()
		case errors.Is(err, bots.ErrBotAccessDenied):
			status = http.StatusForbidden
			message = err.Error()
		case errors.Is(err, oauth.ErrKindNotConnectable):
			status = http.StatusBadRequest
			message = err.Error()
		case errors.Is(err, chat.ErrThrottled):
			status = http.StatusTooManyRequests
			message = "the assistant is busy, please retry shortly"
		case errors.Is(err, chat.ErrQuotaExhausted):
			status = http.StatusPaymentRequired
			message = "the assistant is temporarily unavailable"
		case errors.Is(err, chat.ErrEmptyCompletion):
			status = http.StatusBadGateway
			message = "the assistant returned no reply"
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()),
				slog.Any("error", err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, ErrorResponse{Error: message})
	}
}
