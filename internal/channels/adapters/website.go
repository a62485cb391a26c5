package adapters

import (
	"context"
	"errors"

	"github.com/relaydesk/relaydesk/internal/channels"
)

// Website is the widget transport. The widget talks to the chat endpoint
// directly, so there is no webhook envelope and no outbound push: the reply
// rides back on the HTTP response.
type Website struct{}

// NewWebsite creates the website adapter.
func NewWebsite() *Website {
	return &Website{}
}

func (*Website) Kind() channels.Kind {
	return channels.KindWebsite
}

// VerifyToken always fails: website channels have no webhook subscription.
func (*Website) VerifyToken(channels.ProviderConfig, string) bool {
	return false
}

func (*Website) ParseEnvelope([]byte) ([]channels.InboundEvent, error) {
	return nil, errors.New("website channels do not receive webhook envelopes")
}

// Deliver is a no-op; the caller returns the reply synchronously.
func (*Website) Deliver(context.Context, channels.ProviderConfig, string, string) error {
	return nil
}
