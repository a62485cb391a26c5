// Package server assembles the echo application: middleware, auth, rate
// limits, and handler registration.
package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/relaydesk/relaydesk/internal/auth"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/handlers"
	"github.com/relaydesk/relaydesk/internal/ratelimit"
)

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(
	log *slog.Logger,
	cfg config.Config,
	limiter *ratelimit.Limiter,
	pingHandler *handlers.PingHandler,
	widgetHandler *handlers.WidgetHandler,
	webhookHandler *handlers.WebhookHandler,
	connectHandler *handlers.ConnectHandler,
) *Server {
	addr := cfg.Server.Addr
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(log)
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(requestLogger(log))
	// Budgets come before auth so unauthenticated traffic is counted too.
	if cfg.RateLimit.Enabled && limiter != nil {
		e.Use(budgetMiddleware(limiter))
	}
	e.Use(auth.JWTMiddleware(cfg.Auth.JWTSecret, func(c echo.Context) bool {
		return shouldSkipJWT(c.Request().URL.Path)
	}))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if widgetHandler != nil {
		widgetHandler.Register(e)
	}
	if webhookHandler != nil {
		webhookHandler.Register(e)
	}
	if connectHandler != nil {
		connectHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

// shouldSkipJWT marks the public surface: health, the widget API (embed-key
// authenticated), webhooks (handshake authenticated), and the OAuth callback
// (state authenticated).
func shouldSkipJWT(path string) bool {
	if path == "/ping" || path == "/health" {
		return true
	}
	if strings.HasPrefix(path, "/api/widget/") {
		return true
	}
	if strings.HasPrefix(path, "/webhooks/") {
		return true
	}
	if strings.HasPrefix(path, "/api/channels/oauth/") && strings.HasSuffix(path, "/callback") {
		return true
	}
	return false
}

// budgetMiddleware applies the per-endpoint-class rate budgets.
func budgetMiddleware(limiter *ratelimit.Limiter) echo.MiddlewareFunc {
	chat := ratelimit.Middleware(limiter, "chat", ratelimit.BudgetChat)
	webhook := ratelimit.Middleware(limiter, "webhook", ratelimit.BudgetWebhook)
	oauth := ratelimit.Middleware(limiter, "oauth", ratelimit.BudgetOAuth)
	fallback := ratelimit.Middleware(limiter, "default", ratelimit.BudgetDefault)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		chatNext := chat(next)
		webhookNext := webhook(next)
		oauthNext := oauth(next)
		fallbackNext := fallback(next)

		return func(c echo.Context) error {
			path := c.Request().URL.Path
			switch {
			case strings.HasPrefix(path, "/api/widget/chat"):
				return chatNext(c)
			case strings.HasPrefix(path, "/webhooks/"):
				return webhookNext(c)
			case strings.HasPrefix(path, "/api/channels/"):
				return oauthNext(c)
			case path == "/ping" || path == "/health":
				return next(c)
			default:
				return fallbackNext(c)
			}
		}
	}
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	logger := log.With(slog.String("service", "http"))
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.Any("error", v.Error))
			}
			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	})
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
