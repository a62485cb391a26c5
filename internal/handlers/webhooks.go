package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channels"
	"github.com/relaydesk/relaydesk/internal/respond"
)

// WebhookHandler ingests provider webhooks for WhatsApp and Instagram.
type WebhookHandler struct {
	resolver *channels.Resolver
	store    channels.ChannelSource
	registry *channels.Registry
	engine   Responder
	logger   *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(log *slog.Logger, resolver *channels.Resolver, store channels.ChannelSource, registry *channels.Registry, engine Responder) *WebhookHandler {
	return &WebhookHandler{
		resolver: resolver,
		store:    store,
		registry: registry,
		engine:   engine,
		logger:   log.With(slog.String("handler", "webhooks")),
	}
}

// Register registers the webhook routes. Both are public; the provider proves
// itself through the verify-token handshake and signed app subscriptions.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/whatsapp", h.verify(channels.KindWhatsApp))
	e.POST("/webhooks/whatsapp", h.receive(channels.KindWhatsApp))
	e.GET("/webhooks/instagram", h.verify(channels.KindInstagram))
	e.POST("/webhooks/instagram", h.receive(channels.KindInstagram))
}

// verify answers the hub.challenge subscription handshake. The challenge is
// echoed only when the token matches some active channel of this kind.
func (h *WebhookHandler) verify(kind channels.Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		mode := c.QueryParam("hub.mode")
		token := c.QueryParam("hub.verify_token")
		challenge := c.QueryParam("hub.challenge")
		if mode != "subscribe" || token == "" {
			return echo.NewHTTPError(http.StatusForbidden, "verification rejected")
		}

		adapter, err := h.registry.Get(kind)
		if err != nil {
			return err
		}
		list, err := h.store.ListActiveByKind(c.Request().Context(), kind)
		if err != nil {
			return err
		}
		for _, ch := range list {
			if adapter.VerifyToken(ch.Config, token) {
				return c.String(http.StatusOK, challenge)
			}
		}
		return echo.NewHTTPError(http.StatusForbidden, "verification rejected")
	}
}

// receive parses a provider envelope and runs the response pipeline for each
// inbound message. Events are processed sequentially; one failing event is
// logged and the rest still run. The provider always gets a 200 for a
// well-formed envelope, otherwise it retries the whole batch.
func (h *WebhookHandler) receive(kind channels.Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		adapter, err := h.registry.Get(kind)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
		}
		events, err := adapter.ParseEnvelope(body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed envelope")
		}

		ctx := c.Request().Context()
		for _, event := range events {
			bot, ch, err := h.resolver.ResolveByAccountID(ctx, kind, event.AccountID)
			if err != nil {
				h.logger.Warn("webhook event for unknown account",
					slog.String("kind", kind.String()),
					slog.String("account_id", event.AccountID),
					slog.Any("error", err))
				continue
			}
			if ch.Config.IsSelf(event.SenderID) {
				continue
			}

			reply, err := h.engine.Respond(ctx, respond.Inbound{
				Bot:         bot,
				ChannelKind: kind.String(),
				VisitorID:   event.SenderID,
				VisitorName: event.SenderName,
				Text:        event.Text,
			})
			if err != nil {
				h.logger.Error("webhook turn failed",
					slog.String("kind", kind.String()),
					slog.String("channel_id", ch.ID),
					slog.Any("error", err))
				continue
			}
			if err := adapter.Deliver(ctx, ch.Config, event.SenderID, reply.Text); err != nil {
				h.logger.Error("webhook reply delivery failed",
					slog.String("kind", kind.String()),
					slog.String("channel_id", ch.ID),
					slog.Any("error", err))
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
