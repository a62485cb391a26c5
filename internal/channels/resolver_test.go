package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/relaydesk/relaydesk/internal/bots"
)

type fakeChannelSource struct {
	byEmbedKey func(ctx context.Context, embedKey string) (Channel, error)
	byKind     func(ctx context.Context, kind Kind) ([]Channel, error)
}

func (f *fakeChannelSource) GetByEmbedKey(ctx context.Context, embedKey string) (Channel, error) {
	if f.byEmbedKey == nil {
		return Channel{}, ErrChannelNotFound
	}
	return f.byEmbedKey(ctx, embedKey)
}

func (f *fakeChannelSource) ListActiveByKind(ctx context.Context, kind Kind) ([]Channel, error) {
	if f.byKind == nil {
		return nil, nil
	}
	return f.byKind(ctx, kind)
}

type fakeBotSource struct {
	get func(ctx context.Context, botID string) (bots.Bot, error)
}

func (f *fakeBotSource) Get(ctx context.Context, botID string) (bots.Bot, error) {
	if f.get == nil {
		return bots.Bot{}, bots.ErrBotNotFound
	}
	return f.get(ctx, botID)
}

func activeChannel(kind Kind) Channel {
	ch := Channel{ID: "ch-1", BotID: "bot-1", Kind: kind, Active: true}
	switch kind {
	case KindWhatsApp:
		ch.Config.WhatsApp = &WhatsAppConfig{PhoneNumberID: "555001", AccessToken: "tok", Connected: true}
	case KindInstagram:
		ch.Config.Instagram = &InstagramConfig{PageID: "page-9", AccessToken: "tok", Connected: true}
	case KindWebsite:
		ch.EmbedKey = "embed-1"
		ch.Config.Website = &WebsiteConfig{}
	}
	return ch
}

func TestResolveByEmbedKey(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(
		&fakeChannelSource{byEmbedKey: func(ctx context.Context, key string) (Channel, error) {
			if key != "embed-1" {
				return Channel{}, ErrChannelNotFound
			}
			return activeChannel(KindWebsite), nil
		}},
		&fakeBotSource{get: func(ctx context.Context, botID string) (bots.Bot, error) {
			return bots.Bot{ID: botID, Active: true}, nil
		}},
	)

	bot, ch, err := resolver.ResolveByEmbedKey(context.Background(), "embed-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if bot.ID != "bot-1" || ch.EmbedKey != "embed-1" {
		t.Fatalf("unexpected resolution: bot=%s channel=%s", bot.ID, ch.ID)
	}

	if _, _, err := resolver.ResolveByEmbedKey(context.Background(), "other"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveByAccountIDScansConfig(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(
		&fakeChannelSource{byKind: func(ctx context.Context, kind Kind) ([]Channel, error) {
			return []Channel{activeChannel(KindWhatsApp)}, nil
		}},
		&fakeBotSource{get: func(ctx context.Context, botID string) (bots.Bot, error) {
			return bots.Bot{ID: botID, Active: true}, nil
		}},
	)

	_, ch, err := resolver.ResolveByAccountID(context.Background(), KindWhatsApp, "555001")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ch.ID != "ch-1" {
		t.Fatalf("unexpected channel %s", ch.ID)
	}

	if _, _, err := resolver.ResolveByAccountID(context.Background(), KindWhatsApp, "999"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveHidesInactiveBot(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(
		&fakeChannelSource{byEmbedKey: func(ctx context.Context, key string) (Channel, error) {
			return activeChannel(KindWebsite), nil
		}},
		&fakeBotSource{get: func(ctx context.Context, botID string) (bots.Bot, error) {
			return bots.Bot{ID: botID, Active: false}, nil
		}},
	)

	if _, _, err := resolver.ResolveByEmbedKey(context.Background(), "embed-1"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("inactive bot must resolve to not found, got %v", err)
	}
}

func TestProviderConfigValidate(t *testing.T) {
	t.Parallel()

	connectedWithoutToken := ProviderConfig{WhatsApp: &WhatsAppConfig{Connected: true}}
	if err := connectedWithoutToken.Validate(KindWhatsApp); err == nil {
		t.Fatal("connected config without token must be invalid")
	}

	mismatched := ProviderConfig{WhatsApp: &WhatsAppConfig{AccessToken: "tok"}}
	if err := mismatched.Validate(KindInstagram); err == nil {
		t.Fatal("whatsapp variant on instagram channel must be invalid")
	}

	ok := ProviderConfig{WhatsApp: &WhatsAppConfig{AccessToken: "tok", Connected: true}}
	if err := ok.Validate(KindWhatsApp); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
