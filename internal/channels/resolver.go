package channels

import (
	"context"
	"errors"

	"github.com/relaydesk/relaydesk/internal/bots"
)

// ChannelSource is the subset of Store the resolver reads from.
type ChannelSource interface {
	GetByEmbedKey(ctx context.Context, embedKey string) (Channel, error)
	ListActiveByKind(ctx context.Context, kind Kind) ([]Channel, error)
}

// BotSource loads bots by id.
type BotSource interface {
	Get(ctx context.Context, botID string) (bots.Bot, error)
}

// Resolver maps inbound channel-specific locators to an active (bot, channel)
// pair. Inactive bots and channels resolve to not-found so their existence is
// never leaked.
type Resolver struct {
	channels ChannelSource
	bots     BotSource
}

// NewResolver creates a channel identity resolver.
func NewResolver(channels ChannelSource, bots BotSource) *Resolver {
	return &Resolver{channels: channels, bots: bots}
}

// ResolveByEmbedKey resolves a website widget embed key.
func (r *Resolver) ResolveByEmbedKey(ctx context.Context, embedKey string) (bots.Bot, Channel, error) {
	ch, err := r.channels.GetByEmbedKey(ctx, embedKey)
	if err != nil {
		return bots.Bot{}, Channel{}, err
	}
	return r.withActiveBot(ctx, ch)
}

// ResolveByAccountID resolves a provider account id (phone-number id or page
// id) by scanning the active channels of that kind for a config match.
func (r *Resolver) ResolveByAccountID(ctx context.Context, kind Kind, accountID string) (bots.Bot, Channel, error) {
	if accountID == "" {
		return bots.Bot{}, Channel{}, ErrChannelNotFound
	}
	list, err := r.channels.ListActiveByKind(ctx, kind)
	if err != nil {
		return bots.Bot{}, Channel{}, err
	}
	for _, ch := range list {
		if ch.Config.AccountID() == accountID {
			return r.withActiveBot(ctx, ch)
		}
	}
	return bots.Bot{}, Channel{}, ErrChannelNotFound
}

func (r *Resolver) withActiveBot(ctx context.Context, ch Channel) (bots.Bot, Channel, error) {
	if !ch.Active {
		return bots.Bot{}, Channel{}, ErrChannelNotFound
	}
	bot, err := r.bots.Get(ctx, ch.BotID)
	if err != nil {
		if errors.Is(err, bots.ErrBotNotFound) {
			return bots.Bot{}, Channel{}, ErrChannelNotFound
		}
		return bots.Bot{}, Channel{}, err
	}
	if !bot.Active {
		return bots.Bot{}, Channel{}, ErrChannelNotFound
	}
	return bot, ch, nil
}
