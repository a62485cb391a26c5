package channels

import (
	"context"
	"fmt"
	"strings"
)

// InboundEvent is one visitor message extracted from a provider envelope.
type InboundEvent struct {
	// AccountID is the provider account the event was delivered to; it routes
	// the event to a channel.
	AccountID  string
	SenderID   string
	SenderName string
	Text       string
}

// Adapter is the per-kind transport: webhook verification, envelope parsing,
// and outbound delivery. The response engine itself is shared; only these
// three concerns differ between surfaces.
type Adapter interface {
	Kind() Kind
	// VerifyToken checks a webhook subscription handshake token against the
	// channel's stored verification secret.
	VerifyToken(cfg ProviderConfig, token string) bool
	// ParseEnvelope extracts inbound text messages from a provider POST body.
	ParseEnvelope(body []byte) ([]InboundEvent, error)
	// Deliver sends a reply to the given provider recipient.
	Deliver(ctx context.Context, cfg ProviderConfig, recipientID, text string) error
}

// IsSelf reports whether a sender id belongs to the connected account itself.
// Provider webhooks echo outbound messages back; those must be skipped.
func (p ProviderConfig) IsSelf(senderID string) bool {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return false
	}
	switch {
	case p.WhatsApp != nil:
		return senderID == p.WhatsApp.PhoneNumberID || senderID == p.WhatsApp.BusinessAccountID
	case p.Instagram != nil:
		return senderID == p.Instagram.PageID || senderID == p.Instagram.InstagramID
	}
	return false
}

// Registry holds the registered channel adapters keyed by kind.
type Registry struct {
	adapters map[Kind]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[Kind]Adapter{}}
}

// MustRegister adds an adapter, panicking on duplicates. Registration happens
// once at startup.
func (r *Registry) MustRegister(adapter Adapter) {
	kind := adapter.Kind()
	if _, exists := r.adapters[kind]; exists {
		panic(fmt.Sprintf("channel adapter %q registered twice", kind))
	}
	r.adapters[kind] = adapter
}

// Get returns the adapter for a kind.
func (r *Registry) Get(kind Kind) (Adapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel kind %q", kind)
	}
	return adapter, nil
}
