package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaydesk/relaydesk/internal/channels"
)

const whatsAppWebhookBody = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "waba-1",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "15550001111", "phone_number_id": "pn-42"},
				"contacts": [{"profile": {"name": "Ada"}, "wa_id": "4915770000000"}],
				"messages": [
					{"from": "4915770000000", "id": "wamid.1", "timestamp": "1", "type": "text", "text": {"body": "where is my order?"}},
					{"from": "4915770000000", "id": "wamid.2", "timestamp": "2", "type": "image"}
				]
			}
		}]
	}]
}`

func TestWhatsAppParseEnvelope(t *testing.T) {
	t.Parallel()

	events, err := NewWhatsApp(nil, "http://unused").ParseEnvelope([]byte(whatsAppWebhookBody))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 (non-text skipped)", len(events))
	}
	event := events[0]
	if event.AccountID != "pn-42" {
		t.Fatalf("account id = %q, want pn-42", event.AccountID)
	}
	if event.SenderID != "4915770000000" || event.SenderName != "Ada" {
		t.Fatalf("sender = %q/%q", event.SenderID, event.SenderName)
	}
	if event.Text != "where is my order?" {
		t.Fatalf("text = %q", event.Text)
	}
}

func TestWhatsAppParseEnvelopeStatusOnly(t *testing.T) {
	t.Parallel()

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"pn-42"},"statuses":[{"id":"wamid.9","status":"delivered"}]}}]}]}`
	events, err := NewWhatsApp(nil, "http://unused").ParseEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("status-only envelope produced %d events", len(events))
	}
}

func TestWhatsAppDeliver(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := channels.ProviderConfig{WhatsApp: &channels.WhatsAppConfig{
		AccessToken: "tok-1", PhoneNumberID: "pn-42", Connected: true,
	}}
	if err := NewWhatsApp(nil, server.URL).Deliver(context.Background(), cfg, "4915770000000", "on its way"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotPath != "/v20.0/pn-42/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotPayload["messaging_product"] != "whatsapp" || gotPayload["to"] != "4915770000000" {
		t.Fatalf("payload = %v", gotPayload)
	}
	if text, ok := gotPayload["text"].(map[string]any); !ok || text["body"] != "on its way" {
		t.Fatalf("payload text = %v", gotPayload["text"])
	}
}

func TestWhatsAppDeliverDisconnected(t *testing.T) {
	t.Parallel()

	cfg := channels.ProviderConfig{WhatsApp: &channels.WhatsAppConfig{}}
	if err := NewWhatsApp(nil, "http://unused").Deliver(context.Background(), cfg, "1", "hi"); err == nil {
		t.Fatal("delivery without token must fail")
	}
}

func TestInstagramParseEnvelope(t *testing.T) {
	t.Parallel()

	body := `{
		"object": "instagram",
		"entry": [{
			"id": "page-7",
			"messaging": [
				{"sender": {"id": "ig-user-1"}, "recipient": {"id": "page-7"}, "message": {"text": "is this in stock?"}},
				{"sender": {"id": "page-7"}, "recipient": {"id": "ig-user-1"}, "message": {"text": "yes", "is_echo": true}},
				{"sender": {"id": "ig-user-2"}, "recipient": {"id": "page-7"}, "message": {"attachments": [{"type": "image"}]}}
			]
		}]
	}`
	events, err := NewInstagram(nil, "http://unused").ParseEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 (echo and attachment skipped)", len(events))
	}
	if events[0].AccountID != "page-7" || events[0].SenderID != "ig-user-1" {
		t.Fatalf("event = %+v", events[0])
	}
}

func TestInstagramDeliver(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := channels.ProviderConfig{Instagram: &channels.InstagramConfig{
		AccessToken: "tok-2", PageID: "page-7", Connected: true,
	}}
	if err := NewInstagram(nil, server.URL).Deliver(context.Background(), cfg, "ig-user-1", "yes it is"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotPath != "/v20.0/me/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	recipient, _ := gotPayload["recipient"].(map[string]any)
	message, _ := gotPayload["message"].(map[string]any)
	if recipient["id"] != "ig-user-1" || message["text"] != "yes it is" {
		t.Fatalf("payload = %v", gotPayload)
	}
}

func TestVerifyToken(t *testing.T) {
	t.Parallel()

	cfg := channels.ProviderConfig{WhatsApp: &channels.WhatsAppConfig{VerifyToken: "secret-1"}}
	wa := NewWhatsApp(nil, "http://unused")
	if !wa.VerifyToken(cfg, "secret-1") {
		t.Fatal("matching token rejected")
	}
	if wa.VerifyToken(cfg, "wrong") {
		t.Fatal("wrong token accepted")
	}
	if wa.VerifyToken(channels.ProviderConfig{WhatsApp: &channels.WhatsAppConfig{}}, "") {
		t.Fatal("empty stored token must never verify")
	}

	if NewWebsite().VerifyToken(channels.ProviderConfig{Website: &channels.WebsiteConfig{}}, "anything") {
		t.Fatal("website channels have no webhook handshake")
	}
}
