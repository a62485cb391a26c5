package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/relaydesk/relaydesk/internal/db"
)

var (
	ErrBotNotFound     = errors.New("bot not found")
	ErrBotAccessDenied = errors.New("bot access denied")
)

// Service provides bot and knowledge base reads for the orchestrator.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a bot service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "bots")),
	}
}

const botColumns = `id, owner_user_id, name, instructions, welcome_message, active,
	escalation_enabled, escalation_threshold, created_at, updated_at`

// Get returns the bot by id.
func (s *Service) Get(ctx context.Context, botID string) (Bot, error) {
	pgID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return Bot{}, fmt.Errorf("invalid bot id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+botColumns+` FROM bots WHERE id = $1`, pgID)
	bot, err := scanBot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bot{}, ErrBotNotFound
		}
		return Bot{}, err
	}
	return bot, nil
}

// GetOwned returns the bot only when userID owns it. Not-owner is reported as
// access denied without confirming whether the bot exists.
func (s *Service) GetOwned(ctx context.Context, userID, botID string) (Bot, error) {
	bot, err := s.Get(ctx, botID)
	if err != nil {
		return Bot{}, err
	}
	if bot.OwnerUserID != userID {
		return Bot{}, ErrBotAccessDenied
	}
	return bot, nil
}

// ListKnowledge returns up to limit knowledge entries for the bot.
func (s *Service) ListKnowledge(ctx context.Context, botID string, limit int) ([]KnowledgeEntry, error) {
	pgID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return nil, fmt.Errorf("invalid bot id: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, bot_id, title, content, category
		 FROM knowledge_entries WHERE bot_id = $1
		 ORDER BY created_at LIMIT $2`, pgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []KnowledgeEntry
	for rows.Next() {
		var (
			id, rowBotID pgtype.UUID
			entry        KnowledgeEntry
			category     pgtype.Text
		)
		if err := rows.Scan(&id, &rowBotID, &entry.Title, &entry.Content, &category); err != nil {
			return nil, err
		}
		entry.ID = id.String()
		entry.BotID = rowBotID.String()
		entry.Category = dbpkg.TextToString(category)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanBot(row pgx.Row) (Bot, error) {
	var (
		id, ownerID          pgtype.UUID
		bot                  Bot
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&id, &ownerID, &bot.Name, &bot.Instructions, &bot.WelcomeMessage,
		&bot.Active, &bot.EscalationEnabled, &bot.EscalationThreshold, &createdAt, &updatedAt)
	if err != nil {
		return Bot{}, err
	}
	bot.ID = id.String()
	bot.OwnerUserID = ownerID.String()
	bot.CreatedAt = createdAt.Time
	bot.UpdatedAt = updatedAt.Time
	return bot, nil
}
