package commerce

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/relaydesk/relaydesk/internal/db"
)

// PGIntegrationStore reads commerce integrations from Postgres.
type PGIntegrationStore struct {
	pool *pgxpool.Pool
}

// NewPGIntegrationStore creates a Postgres-backed integration source.
func NewPGIntegrationStore(pool *pgxpool.Pool) *PGIntegrationStore {
	return &PGIntegrationStore{pool: pool}
}

// GetActive returns the bot's active integration or ErrNoIntegration.
func (s *PGIntegrationStore) GetActive(ctx context.Context, botID string) (Integration, error) {
	pgBotID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return Integration{}, fmt.Errorf("invalid bot id: %w", err)
	}
	var (
		id, rowBotID pgtype.UUID
		integration  Integration
	)
	err = s.pool.QueryRow(ctx,
		`SELECT id, bot_id, store_domain, access_token, active
		 FROM commerce_integrations WHERE bot_id = $1 AND active`, pgBotID).
		Scan(&id, &rowBotID, &integration.StoreDomain, &integration.AccessToken, &integration.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Integration{}, ErrNoIntegration
		}
		return Integration{}, err
	}
	integration.ID = id.String()
	integration.BotID = rowBotID.String()
	return integration, nil
}
