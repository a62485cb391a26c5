// Package oauth runs the connect, refresh, and disconnect lifecycle for
// provider-backed channels.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/bots"
	"github.com/relaydesk/relaydesk/internal/channels"
	"github.com/relaydesk/relaydesk/internal/config"
)

// RefreshWindow is how far ahead of token expiry the sweep re-exchanges.
const RefreshWindow = 7 * 24 * time.Hour

// ErrKindNotConnectable rejects OAuth operations on website channels.
var ErrKindNotConnectable = errors.New("channel kind does not use oauth")

// StateError is a callback failure the visitor-facing redirect can explain.
// Reason is a short slug safe to put in a query parameter.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return "oauth state rejected: " + e.Reason
}

var scopesByKind = map[channels.Kind][]string{
	channels.KindWhatsApp: {
		"whatsapp_business_management",
		"whatsapp_business_messaging",
	},
	channels.KindInstagram: {
		"instagram_basic",
		"instagram_manage_messages",
		"pages_messaging",
		"pages_show_list",
	},
}

// ChannelStore is the channel persistence surface the manager uses.
type ChannelStore interface {
	Get(ctx context.Context, channelID string) (channels.Channel, error)
	SaveConfig(ctx context.Context, channelID string, cfg channels.ProviderConfig, active bool) error
	SetOAuthState(ctx context.Context, channelID, state string, expiresAt time.Time) error
	ClearOAuthState(ctx context.Context, channelID string) error
	ListConnectedExpiringBefore(ctx context.Context, cutoff time.Time) ([]channels.Channel, error)
}

// BotSource checks channel ownership.
type BotSource interface {
	GetOwned(ctx context.Context, userID, botID string) (bots.Bot, error)
}

// Manager drives the channel OAuth lifecycle.
type Manager struct {
	channels ChannelStore
	bots     BotSource
	graph    GraphAPI
	secret   string
	redirect string
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates an OAuth manager. The state secret is the server's JWT
// secret; redirect URIs are built from the configured public origin.
func NewManager(log *slog.Logger, store ChannelStore, botSource BotSource, graph GraphAPI, authCfg config.AuthConfig, metaCfg config.MetaConfig) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		channels: store,
		bots:     botSource,
		graph:    graph,
		secret:   authCfg.JWTSecret,
		redirect: metaCfg.RedirectBaseURL,
		logger:   log.With(slog.String("service", "oauth")),
		now:      time.Now,
	}
}

func (m *Manager) redirectURI(kind channels.Kind) string {
	return fmt.Sprintf("%s/api/channels/oauth/%s/callback", m.redirect, kind)
}

// Start begins a connect attempt and returns the provider consent URL. Only
// the bot owner may connect its channels.
func (m *Manager) Start(ctx context.Context, userID, channelID string) (string, error) {
	ch, err := m.channels.Get(ctx, channelID)
	if err != nil {
		return "", err
	}
	if _, err := m.bots.GetOwned(ctx, userID, ch.BotID); err != nil {
		return "", err
	}
	scopes, ok := scopesByKind[ch.Kind]
	if !ok {
		return "", ErrKindNotConnectable
	}

	state, expiresAt, err := newState(m.secret, ch.ID, ch.Kind, userID, m.now())
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	if err := m.channels.SetOAuthState(ctx, ch.ID, state, expiresAt); err != nil {
		return "", err
	}
	return m.graph.AuthCodeURL(state, m.redirectURI(ch.Kind), scopes), nil
}

// Callback redeems the provider redirect. State failures come back as
// *StateError so the HTTP layer can redirect with a reason instead of
// surfacing a 4xx to the visitor's browser.
func (m *Manager) Callback(ctx context.Context, code, state string) error {
	claims, err := parseState(m.secret, state)
	if err != nil {
		return &StateError{Reason: "invalid_state"}
	}
	ch, err := m.channels.Get(ctx, claims.ChannelID)
	if err != nil {
		return &StateError{Reason: "unknown_channel"}
	}
	if ch.OAuthState == "" || ch.OAuthState != state {
		return &StateError{Reason: "state_mismatch"}
	}
	if m.now().After(ch.OAuthStateExpiresAt) {
		return &StateError{Reason: "state_expired"}
	}

	short, err := m.graph.ExchangeCode(ctx, code, m.redirectURI(ch.Kind))
	if err != nil {
		return fmt.Errorf("code exchange for channel %s: %w", ch.ID, err)
	}
	long, err := m.graph.ExchangeLongLived(ctx, short.AccessToken)
	if err != nil {
		return fmt.Errorf("long-lived exchange for channel %s: %w", ch.ID, err)
	}

	cfg, err := m.buildConnectedConfig(ctx, ch, long)
	if err != nil {
		return err
	}
	if err := m.channels.SaveConfig(ctx, ch.ID, cfg, true); err != nil {
		return fmt.Errorf("persist connected config: %w", err)
	}
	if err := m.channels.ClearOAuthState(ctx, ch.ID); err != nil {
		m.logger.Warn("clear oauth state failed", slog.String("channel_id", ch.ID), slog.Any("error", err))
	}
	m.logger.Info("channel connected",
		slog.String("channel_id", ch.ID), slog.String("kind", ch.Kind.String()))
	return nil
}

func (m *Manager) buildConnectedConfig(ctx context.Context, ch channels.Channel, token Token) (channels.ProviderConfig, error) {
	switch ch.Kind {
	case channels.KindWhatsApp:
		account, err := m.graph.WhatsAppAccounts(ctx, token.AccessToken)
		if err != nil {
			return channels.ProviderConfig{}, fmt.Errorf("resolve whatsapp account: %w", err)
		}
		if err := m.graph.SubscribeWhatsApp(ctx, account.BusinessAccountID, token.AccessToken); err != nil {
			m.logger.Warn("whatsapp webhook subscription failed",
				slog.String("channel_id", ch.ID), slog.Any("error", err))
		}
		return channels.ProviderConfig{WhatsApp: &channels.WhatsAppConfig{
			AccessToken:       token.AccessToken,
			TokenExpiresAt:    token.ExpiresAt,
			BusinessAccountID: account.BusinessAccountID,
			PhoneNumberID:     account.PhoneNumberID,
			VerifyToken:       m.verifyToken(ch),
			Connected:         true,
		}}, nil
	case channels.KindInstagram:
		account, err := m.graph.InstagramAccounts(ctx, token.AccessToken)
		if err != nil {
			return channels.ProviderConfig{}, fmt.Errorf("resolve instagram account: %w", err)
		}
		if err := m.graph.SubscribePage(ctx, account.PageID, account.PageAccessToken); err != nil {
			m.logger.Warn("instagram webhook subscription failed",
				slog.String("channel_id", ch.ID), slog.Any("error", err))
		}
		// The page token, not the user token, is what the send API accepts.
		return channels.ProviderConfig{Instagram: &channels.InstagramConfig{
			AccessToken:    account.PageAccessToken,
			TokenExpiresAt: token.ExpiresAt,
			PageID:         account.PageID,
			InstagramID:    account.InstagramID,
			VerifyToken:    m.verifyToken(ch),
			Connected:      true,
		}}, nil
	}
	return channels.ProviderConfig{}, ErrKindNotConnectable
}

// verifyToken keeps an existing webhook verification secret stable across
// reconnects; the subscription at the provider still references it.
func (m *Manager) verifyToken(ch channels.Channel) string {
	if existing := ch.Config.VerifyToken(); existing != "" {
		return existing
	}
	return uuid.NewString()
}

// Disconnect revokes the connection. The channel row and any embed key stay
// put so a later reconnect restores the same channel identity.
func (m *Manager) Disconnect(ctx context.Context, userID, channelID string) error {
	ch, err := m.channels.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if _, err := m.bots.GetOwned(ctx, userID, ch.BotID); err != nil {
		return err
	}

	cfg := ch.Config
	switch {
	case cfg.WhatsApp != nil:
		cfg.WhatsApp.AccessToken = ""
		cfg.WhatsApp.TokenExpiresAt = time.Time{}
		cfg.WhatsApp.Connected = false
	case cfg.Instagram != nil:
		cfg.Instagram.AccessToken = ""
		cfg.Instagram.TokenExpiresAt = time.Time{}
		cfg.Instagram.Connected = false
	default:
		return ErrKindNotConnectable
	}
	if err := m.channels.SaveConfig(ctx, ch.ID, cfg, false); err != nil {
		return err
	}
	m.logger.Info("channel disconnected",
		slog.String("channel_id", ch.ID), slog.String("kind", ch.Kind.String()))
	return nil
}

// RefreshSweep re-exchanges tokens expiring within RefreshWindow. One failing
// channel never stops the sweep.
func (m *Manager) RefreshSweep(ctx context.Context) {
	cutoff := m.now().Add(RefreshWindow)
	expiring, err := m.channels.ListConnectedExpiringBefore(ctx, cutoff)
	if err != nil {
		m.logger.Error("token refresh sweep failed to list channels", slog.Any("error", err))
		return
	}
	for _, ch := range expiring {
		if err := m.refreshChannel(ctx, ch); err != nil {
			m.logger.Error("token refresh failed",
				slog.String("channel_id", ch.ID),
				slog.String("kind", ch.Kind.String()),
				slog.Any("error", err))
			continue
		}
		m.logger.Info("token refreshed", slog.String("channel_id", ch.ID))
	}
}

func (m *Manager) refreshChannel(ctx context.Context, ch channels.Channel) error {
	token, err := m.graph.ExchangeLongLived(ctx, ch.Config.AccessToken())
	if err != nil {
		return err
	}
	cfg := ch.Config
	switch {
	case cfg.WhatsApp != nil:
		cfg.WhatsApp.AccessToken = token.AccessToken
		cfg.WhatsApp.TokenExpiresAt = token.ExpiresAt
	case cfg.Instagram != nil:
		cfg.Instagram.AccessToken = token.AccessToken
		cfg.Instagram.TokenExpiresAt = token.ExpiresAt
	default:
		return ErrKindNotConnectable
	}
	return m.channels.SaveConfig(ctx, ch.ID, cfg, ch.Active)
}
