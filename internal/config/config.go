package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "relaydesk"
	DefaultPGSSLMode    = "disable"
	DefaultAIBaseURL    = "https://api.openai.com/v1"
	DefaultAIModel      = "gpt-4o-mini"
	DefaultGraphBaseURL = "https://graph.facebook.com"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	AI        AIConfig        `toml:"ai"`
	Meta      MetaConfig      `toml:"meta"`
	Commerce  CommerceConfig  `toml:"commerce"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// DashboardURL is where OAuth callbacks redirect after connect attempts.
	DashboardURL string `toml:"dashboard_url" validate:"required,url"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret" validate:"required"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// AIConfig points at the completion gateway. Any OpenAI-compatible endpoint works.
type AIConfig struct {
	APIKey         string `toml:"api_key" validate:"required"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MetaConfig holds the app credentials used for WhatsApp and Instagram OAuth.
type MetaConfig struct {
	AppID     string `toml:"app_id"`
	AppSecret string `toml:"app_secret"`
	// GraphBaseURL is overridable for tests; production uses the default.
	GraphBaseURL string `toml:"graph_base_url"`
	// RedirectBaseURL is the public origin of this server, used to build the
	// OAuth redirect URI registered with the provider.
	RedirectBaseURL string `toml:"redirect_base_url"`
}

type CommerceConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

type RateLimitConfig struct {
	Enabled bool `toml:"enabled"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:         DefaultHTTPAddr,
			DashboardURL: "http://localhost:3000/dashboard",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		AI: AIConfig{
			BaseURL:        DefaultAIBaseURL,
			Model:          DefaultAIModel,
			TimeoutSeconds: 60,
		},
		Meta: MetaConfig{
			GraphBaseURL: DefaultGraphBaseURL,
		},
		Commerce: CommerceConfig{
			TimeoutSeconds: 10,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the fields a running server cannot do without.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
