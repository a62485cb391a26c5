package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/relaydesk/relaydesk/internal/db"
)

var ErrConversationNotFound = errors.New("conversation not found")

// HistoryLimit bounds the transcript slice handed to the completion gateway.
const HistoryLimit = 20

// Store persists conversations and their append-only message log.
type Store struct {
	pool   dbpkg.Querier
	logger *slog.Logger
}

// NewStore creates a conversation store.
func NewStore(log *slog.Logger, pool dbpkg.Querier) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "conversations")),
	}
}

const conversationColumns = `id, bot_id, channel_kind, visitor_id, visitor_name,
	visitor_email, status, escalation_reason, created_at, updated_at`

// Get returns the conversation by id.
func (s *Store) Get(ctx context.Context, conversationID string) (Conversation, error) {
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, pgID)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, err
	}
	return conv, nil
}

// FindOpen returns the most recently updated non-resolved conversation for the
// (bot, channel kind, visitor) tuple, or ErrConversationNotFound.
func (s *Store) FindOpen(ctx context.Context, botID, channelKind, visitorID string) (Conversation, error) {
	pgBotID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid bot id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE bot_id = $1 AND channel_kind = $2 AND visitor_id = $3 AND status <> $4
		 ORDER BY updated_at DESC LIMIT 1`,
		pgBotID, channelKind, visitorID, StatusResolved)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, err
	}
	return conv, nil
}

// Create inserts a new active conversation.
func (s *Store) Create(ctx context.Context, in NewConversation) (Conversation, error) {
	pgBotID, err := dbpkg.ParseUUID(in.BotID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid bot id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (bot_id, channel_kind, visitor_id, visitor_name, visitor_email, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+conversationColumns,
		pgBotID, in.ChannelKind, in.VisitorID,
		dbpkg.ToPgText(in.VisitorName), dbpkg.ToPgText(in.VisitorEmail), StatusActive)
	return scanConversation(row)
}

// FindOrCreate returns the open conversation for the tuple, creating one when
// none exists. Two near-simultaneous first messages may both insert; the
// post-insert re-read settles both callers on the earliest open row, so a
// duplicate is shed rather than crashed on.
func (s *Store) FindOrCreate(ctx context.Context, in NewConversation) (Conversation, error) {
	if conv, err := s.FindOpen(ctx, in.BotID, in.ChannelKind, in.VisitorID); err == nil {
		return conv, nil
	} else if !errors.Is(err, ErrConversationNotFound) {
		return Conversation{}, err
	}

	created, err := s.Create(ctx, in)
	if err != nil {
		return Conversation{}, err
	}

	pgBotID, err := dbpkg.ParseUUID(in.BotID)
	if err != nil {
		return created, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE bot_id = $1 AND channel_kind = $2 AND visitor_id = $3 AND status <> $4
		 ORDER BY created_at LIMIT 1`,
		pgBotID, in.ChannelKind, in.VisitorID, StatusResolved)
	if settled, scanErr := scanConversation(row); scanErr == nil {
		return settled, nil
	}
	return created, nil
}

// Append adds one message to the conversation transcript and bumps the
// conversation's updated_at.
func (s *Store) Append(ctx context.Context, conversationID, role, content string, meta Metadata) (Message, error) {
	pgConvID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message metadata: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, role, content, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, conversation_id, role, content, metadata, created_at`,
		pgConvID, role, content, metaBytes)
	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, err
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, pgConvID); err != nil {
		s.logger.Warn("bump conversation updated_at failed",
			slog.String("conversation_id", conversationID), slog.Any("error", err))
	}
	return msg, nil
}

// ListRecent returns the last limit messages in chronological order.
func (s *Store) ListRecent(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	pgConvID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	if limit <= 0 {
		limit = HistoryLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at DESC LIMIT $2`, pgConvID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		messages = append(messages, newestFirst[i])
	}
	return messages, nil
}

// SetStatus transitions the conversation status; reason is stored only for
// escalations.
func (s *Store) SetStatus(ctx context.Context, conversationID string, status Status, reason string) error {
	pgConvID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET status = $2, escalation_reason = $3, updated_at = now() WHERE id = $1`,
		pgConvID, status, dbpkg.ToPgText(reason))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		id, botID            pgtype.UUID
		conv                 Conversation
		name, email, reason  pgtype.Text
		status               string
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&id, &botID, &conv.ChannelKind, &conv.VisitorID, &name, &email,
		&status, &reason, &createdAt, &updatedAt)
	if err != nil {
		return Conversation{}, err
	}
	conv.ID = id.String()
	conv.BotID = botID.String()
	conv.VisitorName = dbpkg.TextToString(name)
	conv.VisitorEmail = dbpkg.TextToString(email)
	conv.Status = Status(status)
	conv.EscalationReason = dbpkg.TextToString(reason)
	conv.CreatedAt = createdAt.Time
	conv.UpdatedAt = updatedAt.Time
	return conv, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		id, convID pgtype.UUID
		msg        Message
		metaBytes  []byte
		createdAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &convID, &msg.Role, &msg.Content, &metaBytes, &createdAt); err != nil {
		return Message{}, err
	}
	msg.ID = id.String()
	msg.ConversationID = convID.String()
	msg.CreatedAt = createdAt.Time
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &msg.Metadata); err != nil {
			return Message{}, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return msg, nil
}
