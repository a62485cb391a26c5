package respond

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relaydesk/relaydesk/internal/bots"
	"github.com/relaydesk/relaydesk/internal/chat"
	"github.com/relaydesk/relaydesk/internal/commerce"
	"github.com/relaydesk/relaydesk/internal/conversations"
)

// ConversationStore is the subset of the conversation store the engine uses.
type ConversationStore interface {
	Get(ctx context.Context, conversationID string) (conversations.Conversation, error)
	FindOrCreate(ctx context.Context, in conversations.NewConversation) (conversations.Conversation, error)
	Append(ctx context.Context, conversationID, role, content string, meta conversations.Metadata) (conversations.Message, error)
	ListRecent(ctx context.Context, conversationID string, limit int) ([]conversations.Message, error)
	SetStatus(ctx context.Context, conversationID string, status conversations.Status, reason string) error
}

// KnowledgeSource loads a bot's knowledge entries.
type KnowledgeSource interface {
	ListKnowledge(ctx context.Context, botID string, limit int) ([]bots.KnowledgeEntry, error)
}

// CommerceContext turns a detected intent into a grounding block, or "".
type CommerceContext interface {
	BuildContext(ctx context.Context, botID string, intent commerce.Intent, visitorEmail string) string
}

// Inbound is one visitor message, already resolved to a bot.
type Inbound struct {
	Bot          bots.Bot
	ChannelKind  string
	VisitorID    string
	VisitorName  string
	VisitorEmail string
	// ConversationID pins the turn to an existing conversation. When empty
	// the engine finds or creates the open one for the visitor.
	ConversationID string
	Text           string
}

// Reply is the engine's output for one turn.
type Reply struct {
	Text           string
	ConversationID string
	Escalated      bool
}

// Engine runs the response pipeline for every channel.
type Engine struct {
	conversations ConversationStore
	knowledge     KnowledgeSource
	commerce      CommerceContext
	completer     chat.Completer
	logger        *slog.Logger
}

// NewEngine creates a response engine.
func NewEngine(log *slog.Logger, store ConversationStore, knowledge KnowledgeSource, commerceCtx CommerceContext, completer chat.Completer) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		conversations: store,
		knowledge:     knowledge,
		commerce:      commerceCtx,
		completer:     completer,
		logger:        log.With(slog.String("service", "respond")),
	}
}

// Respond runs one turn: persist the user message, build context, call the
// gateway, handle escalation, persist the reply.
//
// The user message is stored before the gateway call, so a failed completion
// still leaves the inbound text in the transcript. The assistant message is
// stored only after a successful completion.
func (e *Engine) Respond(ctx context.Context, in Inbound) (Reply, error) {
	conv, err := e.conversation(ctx, in)
	if err != nil {
		return Reply{}, err
	}

	if _, err := e.conversations.Append(ctx, conv.ID, conversations.RoleUser, in.Text, conversations.Metadata{}); err != nil {
		return Reply{}, fmt.Errorf("append user message: %w", err)
	}

	history, err := e.conversations.ListRecent(ctx, conv.ID, conversations.HistoryLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}

	knowledge, err := e.knowledge.ListKnowledge(ctx, in.Bot.ID, MaxKnowledgeEntries)
	if err != nil {
		e.logger.Warn("knowledge load failed, answering without it",
			slog.String("bot_id", in.Bot.ID), slog.Any("error", err))
		knowledge = nil
	}

	intent := commerce.DetectIntent(in.Text)
	email := in.VisitorEmail
	if email == "" {
		email = conv.VisitorEmail
	}
	commerceBlock := e.commerce.BuildContext(ctx, in.Bot.ID, intent, email)

	system := BuildSystemPrompt(in.Bot, knowledge, commerceBlock)
	raw, err := e.completer.Complete(ctx, system, chatHistory(history))
	if err != nil {
		return Reply{}, fmt.Errorf("completion: %w", err)
	}

	text, reason, marked := ParseEscalation(raw)
	escalated := marked && in.Bot.EscalationEnabled

	meta := conversations.Metadata{
		Escalated:    escalated,
		UsedCommerce: commerceBlock != "",
	}
	if _, err := e.conversations.Append(ctx, conv.ID, conversations.RoleAssistant, text, meta); err != nil {
		return Reply{}, fmt.Errorf("append assistant message: %w", err)
	}

	if escalated {
		if err := e.conversations.SetStatus(ctx, conv.ID, conversations.StatusEscalated, reason); err != nil {
			e.logger.Error("escalation status update failed",
				slog.String("conversation_id", conv.ID), slog.Any("error", err))
		} else {
			e.logger.Info("conversation escalated",
				slog.String("conversation_id", conv.ID),
				slog.String("bot_id", in.Bot.ID),
				slog.String("reason", reason))
		}
	}

	return Reply{Text: text, ConversationID: conv.ID, Escalated: escalated}, nil
}

// conversation resolves the turn's conversation. A pinned id must belong to
// the inbound bot; a mismatch is reported as not-found rather than leaking
// another bot's conversation.
func (e *Engine) conversation(ctx context.Context, in Inbound) (conversations.Conversation, error) {
	if in.ConversationID != "" {
		conv, err := e.conversations.Get(ctx, in.ConversationID)
		if err != nil {
			return conversations.Conversation{}, err
		}
		if conv.BotID != in.Bot.ID {
			return conversations.Conversation{}, conversations.ErrConversationNotFound
		}
		return conv, nil
	}
	return e.conversations.FindOrCreate(ctx, conversations.NewConversation{
		BotID:        in.Bot.ID,
		ChannelKind:  in.ChannelKind,
		VisitorID:    in.VisitorID,
		VisitorName:  in.VisitorName,
		VisitorEmail: in.VisitorEmail,
	})
}

func chatHistory(messages []conversations.Message) []chat.Message {
	history := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != conversations.RoleUser && m.Role != conversations.RoleAssistant {
			continue
		}
		history = append(history, chat.Message{Role: m.Role, Content: m.Content})
	}
	return history
}
