package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relaydesk/relaydesk/internal/channels"
)

// Instagram delivers through the Messenger Platform send API using the
// connected page's access token.
type Instagram struct {
	graph  *graphClient
	logger *slog.Logger
}

// NewInstagram creates the Instagram adapter.
func NewInstagram(log *slog.Logger, baseURL string) *Instagram {
	if log == nil {
		log = slog.Default()
	}
	return &Instagram{
		graph:  newGraphClient(baseURL),
		logger: log.With(slog.String("service", "instagram")),
	}
}

func (*Instagram) Kind() channels.Kind {
	return channels.KindInstagram
}

// VerifyToken checks the hub.verify_token handshake value.
func (*Instagram) VerifyToken(cfg channels.ProviderConfig, token string) bool {
	expected := cfg.VerifyToken()
	return expected != "" && token == expected
}

// instagramEnvelope mirrors the Messenger-style webhook payload for Instagram
// direct messages.
type instagramEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Message *struct {
				Text   string `json:"text"`
				IsEcho bool   `json:"is_echo"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// ParseEnvelope extracts inbound text messages. Echo events and non-text
// attachments are skipped.
func (*Instagram) ParseEnvelope(body []byte) ([]channels.InboundEvent, error) {
	var envelope instagramEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode instagram envelope: %w", err)
	}

	var events []channels.InboundEvent
	for _, entry := range envelope.Entry {
		for _, event := range entry.Messaging {
			if event.Message == nil || event.Message.IsEcho || event.Message.Text == "" {
				continue
			}
			events = append(events, channels.InboundEvent{
				AccountID: entry.ID,
				SenderID:  event.Sender.ID,
				Text:      event.Message.Text,
			})
		}
	}
	return events, nil
}

// Deliver sends a direct message to an Instagram user.
func (i *Instagram) Deliver(ctx context.Context, cfg channels.ProviderConfig, recipientID, text string) error {
	ig := cfg.Instagram
	if ig == nil || ig.AccessToken == "" {
		return errors.New("instagram channel is not connected")
	}
	payload := map[string]any{
		"recipient": map[string]any{"id": recipientID},
		"message":   map[string]any{"text": text},
	}
	if err := i.graph.post(ctx, "/me/messages", ig.AccessToken, payload); err != nil {
		i.logger.Error("instagram delivery failed",
			slog.String("page_id", ig.PageID), slog.Any("error", err))
		return err
	}
	return nil
}
