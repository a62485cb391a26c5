package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/relaydesk/relaydesk/internal/db"
)

// ErrChannelNotFound covers both unknown and inactive channels so callers
// cannot distinguish the two.
var ErrChannelNotFound = errors.New("channel not found")

// Store persists channel rows and their provider configuration blobs.
type Store struct {
	pool   dbpkg.Querier
	logger *slog.Logger
}

// NewStore creates a channel store.
func NewStore(log *slog.Logger, pool dbpkg.Querier) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "channels")),
	}
}

const channelColumns = `id, bot_id, kind, active, config, embed_key,
	oauth_state, oauth_state_expires_at, created_at, updated_at`

// NewChannel is the input to Create.
type NewChannel struct {
	BotID string
	Kind  Kind
}

// Create inserts a channel for a bot. Website channels are active immediately
// and receive a generated embed key; messaging channels start inactive until
// their provider connect completes.
func (s *Store) Create(ctx context.Context, in NewChannel) (Channel, error) {
	pgBotID, err := dbpkg.ParseUUID(in.BotID)
	if err != nil {
		return Channel{}, fmt.Errorf("invalid bot id: %w", err)
	}

	var (
		cfg      ProviderConfig
		active   bool
		embedKey pgtype.Text
	)
	if in.Kind == KindWebsite {
		cfg.Website = &WebsiteConfig{}
		active = true
		embedKey = dbpkg.ToPgText(uuid.NewString())
	}
	blob, err := json.Marshal(cfg)
	if err != nil {
		return Channel{}, fmt.Errorf("marshal channel config: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO channels (bot_id, kind, active, config, embed_key)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+channelColumns,
		pgBotID, in.Kind, active, blob, embedKey)
	return scanChannel(row)
}

// Get returns the channel by id.
func (s *Store) Get(ctx context.Context, channelID string) (Channel, error) {
	pgID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return Channel{}, fmt.Errorf("invalid channel id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, pgID)
	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Channel{}, ErrChannelNotFound
		}
		return Channel{}, err
	}
	return ch, nil
}

// GetByEmbedKey returns the active website channel with the given embed key.
func (s *Store) GetByEmbedKey(ctx context.Context, embedKey string) (Channel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE embed_key = $1 AND kind = $2 AND active`,
		embedKey, KindWebsite)
	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Channel{}, ErrChannelNotFound
		}
		return Channel{}, err
	}
	return ch, nil
}

// GetForBot returns all channels belonging to a bot, oldest first.
func (s *Store) GetForBot(ctx context.Context, botID string) ([]Channel, error) {
	pgBotID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return nil, fmt.Errorf("invalid bot id: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE bot_id = $1 ORDER BY created_at`, pgBotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ListActiveByKind returns all active channels of a kind. The set is small
// (one per connected bot), so webhook routing scans it for a config match.
func (s *Store) ListActiveByKind(ctx context.Context, kind Kind) ([]Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE kind = $1 AND active`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ListConnectedExpiringBefore returns connected channels whose provider token
// expires before the cutoff; the token refresh sweep iterates these.
func (s *Store) ListConnectedExpiringBefore(ctx context.Context, cutoff time.Time) ([]Channel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE kind IN ($1, $2) AND active`,
		KindWhatsApp, KindInstagram)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		expiry := ch.Config.TokenExpiresAt()
		if ch.Config.Connected() && !expiry.IsZero() && expiry.Before(cutoff) {
			out = append(out, ch)
		}
	}
	return out, rows.Err()
}

// SaveConfig validates and persists the provider config and active flag.
func (s *Store) SaveConfig(ctx context.Context, channelID string, cfg ProviderConfig, active bool) error {
	if ch, err := s.Get(ctx, channelID); err != nil {
		return err
	} else if err := cfg.Validate(ch.Kind); err != nil {
		return err
	}
	pgID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return fmt.Errorf("invalid channel id: %w", err)
	}
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal channel config: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE channels SET config = $2, active = $3, updated_at = now() WHERE id = $1`,
		pgID, blob, active)
	return err
}

// Deactivate turns the channel off without touching its config or embed key.
func (s *Store) Deactivate(ctx context.Context, channelID string) error {
	pgID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return fmt.Errorf("invalid channel id: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels SET active = false, updated_at = now() WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// SetOAuthState stores the pending connect state, replacing any previous one
// so at most one non-expired state exists per channel.
func (s *Store) SetOAuthState(ctx context.Context, channelID, state string, expiresAt time.Time) error {
	pgID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return fmt.Errorf("invalid channel id: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels SET oauth_state = $2, oauth_state_expires_at = $3, updated_at = now() WHERE id = $1`,
		pgID, state, dbpkg.ToPgTimestamptz(expiresAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// ClearOAuthState removes the pending connect state.
func (s *Store) ClearOAuthState(ctx context.Context, channelID string) error {
	pgID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return fmt.Errorf("invalid channel id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE channels SET oauth_state = NULL, oauth_state_expires_at = NULL, updated_at = now() WHERE id = $1`,
		pgID)
	return err
}

func scanChannel(row pgx.Row) (Channel, error) {
	var (
		id, botID            pgtype.UUID
		kind                 string
		ch                   Channel
		blob                 []byte
		embedKey, state      pgtype.Text
		stateExpiresAt       pgtype.Timestamptz
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&id, &botID, &kind, &ch.Active, &blob, &embedKey,
		&state, &stateExpiresAt, &createdAt, &updatedAt)
	if err != nil {
		return Channel{}, err
	}
	ch.ID = id.String()
	ch.BotID = botID.String()
	ch.Kind = Kind(kind)
	ch.EmbedKey = dbpkg.TextToString(embedKey)
	ch.OAuthState = dbpkg.TextToString(state)
	ch.OAuthStateExpiresAt = stateExpiresAt.Time
	ch.CreatedAt = createdAt.Time
	ch.UpdatedAt = updatedAt.Time
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &ch.Config); err != nil {
			return Channel{}, fmt.Errorf("decode channel config: %w", err)
		}
	}
	return ch, nil
}
