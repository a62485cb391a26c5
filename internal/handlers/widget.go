package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channels"
	"github.com/relaydesk/relaydesk/internal/respond"
)

// Responder runs one conversational turn; *respond.Engine is the production
// implementation.
type Responder interface {
	Respond(ctx context.Context, in respond.Inbound) (respond.Reply, error)
}

// WidgetHandler serves the embeddable website chat widget.
type WidgetHandler struct {
	resolver *channels.Resolver
	engine   Responder
	logger   *slog.Logger
}

// NewWidgetHandler creates a WidgetHandler.
func NewWidgetHandler(log *slog.Logger, resolver *channels.Resolver, engine Responder) *WidgetHandler {
	return &WidgetHandler{
		resolver: resolver,
		engine:   engine,
		logger:   log.With(slog.String("handler", "widget")),
	}
}

// Register registers the widget routes. Both are public: the embed key is the
// only credential a widget carries.
func (h *WidgetHandler) Register(e *echo.Echo) {
	e.POST("/api/widget/init", h.Init)
	e.POST("/api/widget/chat", h.Chat)
}

type widgetInitRequest struct {
	EmbedKey string `json:"embed_key"`
}

type widgetInitResponse struct {
	BotName        string `json:"bot_name"`
	WelcomeMessage string `json:"welcome_message"`
	ChannelType    string `json:"channel_type"`
}

// Init returns the widget bootstrap payload for an embed key.
func (h *WidgetHandler) Init(c echo.Context) error {
	var req widgetInitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.EmbedKey) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "embed_key is required")
	}

	bot, _, err := h.resolver.ResolveByEmbedKey(c.Request().Context(), req.EmbedKey)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, widgetInitResponse{
		BotName:        bot.Name,
		WelcomeMessage: bot.WelcomeMessage,
		ChannelType:    channels.KindWebsite.String(),
	})
}

type widgetChatRequest struct {
	EmbedKey       string `json:"embed_key"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	VisitorID      string `json:"visitor_id"`
	VisitorName    string `json:"visitor_name"`
	VisitorEmail   string `json:"visitor_email"`
}

type widgetChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Escalated      bool   `json:"escalated"`
}

// Chat runs one widget turn and returns the reply synchronously.
func (h *WidgetHandler) Chat(c echo.Context) error {
	var req widgetChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.EmbedKey) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "embed_key is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if strings.TrimSpace(req.VisitorID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "visitor_id is required")
	}

	bot, _, err := h.resolver.ResolveByEmbedKey(c.Request().Context(), req.EmbedKey)
	if err != nil {
		return err
	}

	reply, err := h.engine.Respond(c.Request().Context(), respond.Inbound{
		Bot:            bot,
		ChannelKind:    channels.KindWebsite.String(),
		VisitorID:      req.VisitorID,
		VisitorName:    req.VisitorName,
		VisitorEmail:   req.VisitorEmail,
		ConversationID: req.ConversationID,
		Text:           req.Message,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, widgetChatResponse{
		Response:       reply.Text,
		ConversationID: reply.ConversationID,
		Escalated:      reply.Escalated,
	})
}
