package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/relaydesk/relaydesk/internal/bots"
	"github.com/relaydesk/relaydesk/internal/channels"
	"github.com/relaydesk/relaydesk/internal/channels/adapters"
	"github.com/relaydesk/relaydesk/internal/chat"
	"github.com/relaydesk/relaydesk/internal/commerce"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversations"
	"github.com/relaydesk/relaydesk/internal/db"
	"github.com/relaydesk/relaydesk/internal/handlers"
	"github.com/relaydesk/relaydesk/internal/logger"
	"github.com/relaydesk/relaydesk/internal/oauth"
	"github.com/relaydesk/relaydesk/internal/ratelimit"
	"github.com/relaydesk/relaydesk/internal/respond"
	"github.com/relaydesk/relaydesk/internal/server"
)

// tokenRefreshSchedule runs the provider token sweep once a day.
const tokenRefreshSchedule = "0 4 * * *"

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideLimiter,
			bots.NewService,
			provideChannelStore,
			provideResolver,
			provideConversationStore,
			provideCommerceService,
			provideCompleter,
			provideEngine,
			provideChannelRegistry,
			provideOAuthManager,
			handlers.NewPingHandler,
			provideWidgetHandler,
			provideWebhookHandler,
			provideConnectHandler,
			provideServer,
		),
		fx.Invoke(
			runMigrations,
			startTokenRefresh,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideLimiter(log *slog.Logger, conn *pgxpool.Pool) *ratelimit.Limiter {
	return ratelimit.NewLimiter(log, ratelimit.NewPGCounter(conn))
}

func provideChannelStore(log *slog.Logger, conn *pgxpool.Pool) *channels.Store {
	return channels.NewStore(log, conn)
}

func provideConversationStore(log *slog.Logger, conn *pgxpool.Pool) *conversations.Store {
	return conversations.NewStore(log, conn)
}

func provideResolver(store *channels.Store, botService *bots.Service) *channels.Resolver {
	return channels.NewResolver(store, botService)
}

func provideCommerceService(log *slog.Logger, cfg config.Config, conn *pgxpool.Pool) *commerce.Service {
	client := commerce.NewClient(time.Duration(cfg.Commerce.TimeoutSeconds) * time.Second)
	return commerce.NewService(log, commerce.NewPGIntegrationStore(conn), client)
}

func provideCompleter(log *slog.Logger, cfg config.Config) chat.Completer {
	return chat.NewClient(log, cfg.AI)
}

func provideEngine(log *slog.Logger, store *conversations.Store, botService *bots.Service, commerceService *commerce.Service, completer chat.Completer) *respond.Engine {
	return respond.NewEngine(log, store, botService, commerceService, completer)
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config) *channels.Registry {
	registry := channels.NewRegistry()
	registry.MustRegister(adapters.NewWebsite())
	registry.MustRegister(adapters.NewWhatsApp(log, cfg.Meta.GraphBaseURL))
	registry.MustRegister(adapters.NewInstagram(log, cfg.Meta.GraphBaseURL))
	return registry
}

func provideOAuthManager(log *slog.Logger, store *channels.Store, botService *bots.Service, cfg config.Config) *oauth.Manager {
	return oauth.NewManager(log, store, botService, oauth.NewGraph(cfg.Meta), cfg.Auth, cfg.Meta)
}

func provideWidgetHandler(log *slog.Logger, resolver *channels.Resolver, engine *respond.Engine) *handlers.WidgetHandler {
	return handlers.NewWidgetHandler(log, resolver, engine)
}

func provideWebhookHandler(log *slog.Logger, resolver *channels.Resolver, store *channels.Store, registry *channels.Registry, engine *respond.Engine) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, resolver, store, registry, engine)
}

func provideConnectHandler(log *slog.Logger, manager *oauth.Manager, cfg config.Config) *handlers.ConnectHandler {
	return handlers.NewConnectHandler(log, manager, cfg.Server.DashboardURL)
}

func provideServer(log *slog.Logger, cfg config.Config, limiter *ratelimit.Limiter, pingHandler *handlers.PingHandler, widgetHandler *handlers.WidgetHandler, webhookHandler *handlers.WebhookHandler, connectHandler *handlers.ConnectHandler) *server.Server {
	return server.NewServer(log, cfg, limiter, pingHandler, widgetHandler, webhookHandler, connectHandler)
}

func runMigrations(cfg config.Config, log *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return err
	}
	log.Info("database migrations applied")
	return nil
}

func startTokenRefresh(lc fx.Lifecycle, log *slog.Logger, manager *oauth.Manager) error {
	c := cron.New()
	if _, err := c.AddFunc(tokenRefreshSchedule, func() {
		manager.RefreshSweep(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule token refresh: %w", err)
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start()
			log.Info("token refresh scheduled", slog.String("cron", tokenRefreshSchedule))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			<-c.Stop().Done()
			return nil
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
