// Package channels defines the delivery surfaces a bot can be reached on and
// the adapter abstraction shared by the website widget, WhatsApp, and
// Instagram transports.
package channels

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a messaging surface.
type Kind string

const (
	KindWebsite   Kind = "website"
	KindWhatsApp  Kind = "whatsapp"
	KindInstagram Kind = "instagram"
)

// String returns the kind as a plain string.
func (k Kind) String() string {
	return string(k)
}

// ParseKind validates a client-supplied channel kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindWebsite:
		return KindWebsite, nil
	case KindWhatsApp:
		return KindWhatsApp, nil
	case KindInstagram:
		return KindInstagram, nil
	default:
		return "", fmt.Errorf("unknown channel kind %q", raw)
	}
}

// WebsiteConfig holds the (empty) provider configuration for widget channels.
// The embed key lives on the channel row itself.
type WebsiteConfig struct{}

// WhatsAppConfig is the provider configuration for a connected WhatsApp
// business number.
type WhatsAppConfig struct {
	AccessToken       string    `json:"access_token"`
	TokenExpiresAt    time.Time `json:"token_expires_at"`
	BusinessAccountID string    `json:"business_account_id"`
	PhoneNumberID     string    `json:"phone_number_id"`
	VerifyToken       string    `json:"verify_token"`
	Connected         bool      `json:"connected"`
}

// InstagramConfig is the provider configuration for a connected Instagram
// professional account.
type InstagramConfig struct {
	AccessToken    string    `json:"access_token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	PageID         string    `json:"page_id"`
	InstagramID    string    `json:"instagram_id"`
	VerifyToken    string    `json:"verify_token"`
	Connected      bool      `json:"connected"`
}

// ProviderConfig is a tagged union keyed by channel kind: exactly one variant
// is set for a given channel.
type ProviderConfig struct {
	Website   *WebsiteConfig   `json:"website,omitempty"`
	WhatsApp  *WhatsAppConfig  `json:"whatsapp,omitempty"`
	Instagram *InstagramConfig `json:"instagram,omitempty"`
}

// Connected reports whether the config carries a live provider connection.
func (p ProviderConfig) Connected() bool {
	switch {
	case p.Website != nil:
		return true
	case p.WhatsApp != nil:
		return p.WhatsApp.Connected
	case p.Instagram != nil:
		return p.Instagram.Connected
	}
	return false
}

// AccessToken returns the provider access token, if any.
func (p ProviderConfig) AccessToken() string {
	switch {
	case p.WhatsApp != nil:
		return p.WhatsApp.AccessToken
	case p.Instagram != nil:
		return p.Instagram.AccessToken
	}
	return ""
}

// TokenExpiresAt returns the provider token expiry, zero when not applicable.
func (p ProviderConfig) TokenExpiresAt() time.Time {
	switch {
	case p.WhatsApp != nil:
		return p.WhatsApp.TokenExpiresAt
	case p.Instagram != nil:
		return p.Instagram.TokenExpiresAt
	}
	return time.Time{}
}

// AccountID returns the provider account identifier used to route inbound
// webhooks to this channel.
func (p ProviderConfig) AccountID() string {
	switch {
	case p.WhatsApp != nil:
		return p.WhatsApp.PhoneNumberID
	case p.Instagram != nil:
		return p.Instagram.PageID
	}
	return ""
}

// VerifyToken returns the webhook subscription verification secret.
func (p ProviderConfig) VerifyToken() string {
	switch {
	case p.WhatsApp != nil:
		return p.WhatsApp.VerifyToken
	case p.Instagram != nil:
		return p.Instagram.VerifyToken
	}
	return ""
}

// Validate enforces the config invariants: exactly one variant matching the
// kind, and connected implies a non-empty access token.
func (p ProviderConfig) Validate(kind Kind) error {
	set := 0
	if p.Website != nil {
		set++
	}
	if p.WhatsApp != nil {
		set++
	}
	if p.Instagram != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("provider config must have a single variant, got %d", set)
	}
	switch kind {
	case KindWebsite:
		if p.WhatsApp != nil || p.Instagram != nil {
			return fmt.Errorf("website channel carries %s config", p.kindOfVariant())
		}
	case KindWhatsApp:
		if p.Website != nil || p.Instagram != nil {
			return fmt.Errorf("whatsapp channel carries %s config", p.kindOfVariant())
		}
		if p.WhatsApp != nil && p.WhatsApp.Connected && strings.TrimSpace(p.WhatsApp.AccessToken) == "" {
			return fmt.Errorf("connected whatsapp channel requires an access token")
		}
	case KindInstagram:
		if p.Website != nil || p.WhatsApp != nil {
			return fmt.Errorf("instagram channel carries %s config", p.kindOfVariant())
		}
		if p.Instagram != nil && p.Instagram.Connected && strings.TrimSpace(p.Instagram.AccessToken) == "" {
			return fmt.Errorf("connected instagram channel requires an access token")
		}
	}
	return nil
}

func (p ProviderConfig) kindOfVariant() Kind {
	switch {
	case p.Website != nil:
		return KindWebsite
	case p.WhatsApp != nil:
		return KindWhatsApp
	case p.Instagram != nil:
		return KindInstagram
	}
	return ""
}

// Channel binds one delivery surface to a bot.
type Channel struct {
	ID                  string         `json:"id"`
	BotID               string         `json:"bot_id"`
	Kind                Kind           `json:"kind"`
	Active              bool           `json:"active"`
	Config              ProviderConfig `json:"config"`
	EmbedKey            string         `json:"embed_key,omitempty"`
	OAuthState          string         `json:"-"`
	OAuthStateExpiresAt time.Time      `json:"-"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}
