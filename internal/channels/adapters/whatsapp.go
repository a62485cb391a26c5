package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relaydesk/relaydesk/internal/channels"
)

// WhatsApp delivers through the WhatsApp Cloud API.
type WhatsApp struct {
	graph  *graphClient
	logger *slog.Logger
}

// NewWhatsApp creates the WhatsApp adapter. baseURL points at the Graph API
// origin and is overridable for tests.
func NewWhatsApp(log *slog.Logger, baseURL string) *WhatsApp {
	if log == nil {
		log = slog.Default()
	}
	return &WhatsApp{
		graph:  newGraphClient(baseURL),
		logger: log.With(slog.String("service", "whatsapp")),
	}
}

func (*WhatsApp) Kind() channels.Kind {
	return channels.KindWhatsApp
}

// VerifyToken checks the hub.verify_token handshake value.
func (*WhatsApp) VerifyToken(cfg channels.ProviderConfig, token string) bool {
	expected := cfg.VerifyToken()
	return expected != "" && token == expected
}

// whatsAppEnvelope mirrors the Cloud API webhook payload, text messages only.
type whatsAppEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseEnvelope extracts inbound text messages. Status updates, reactions,
// and media arrive in the same envelope shape and are skipped.
func (*WhatsApp) ParseEnvelope(body []byte) ([]channels.InboundEvent, error) {
	var envelope whatsAppEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode whatsapp envelope: %w", err)
	}

	var events []channels.InboundEvent
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, contact := range value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range value.Messages {
				if !strings.EqualFold(msg.Type, "text") || msg.Text == nil {
					continue
				}
				events = append(events, channels.InboundEvent{
					AccountID:  value.Metadata.PhoneNumberID,
					SenderID:   msg.From,
					SenderName: names[msg.From],
					Text:       msg.Text.Body,
				})
			}
		}
	}
	return events, nil
}

// Deliver sends a text message to a WhatsApp user.
func (w *WhatsApp) Deliver(ctx context.Context, cfg channels.ProviderConfig, recipientID, text string) error {
	wa := cfg.WhatsApp
	if wa == nil || wa.AccessToken == "" || wa.PhoneNumberID == "" {
		return errors.New("whatsapp channel is not connected")
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipientID,
		"type":              "text",
		"text":              map[string]any{"body": text},
	}
	if err := w.graph.post(ctx, fmt.Sprintf("/%s/messages", wa.PhoneNumberID), wa.AccessToken, payload); err != nil {
		w.logger.Error("whatsapp delivery failed",
			slog.String("phone_number_id", wa.PhoneNumberID), slog.Any("error", err))
		return err
	}
	return nil
}
