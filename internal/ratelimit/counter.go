package ratelimit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGCounter counts requests in the rate_limits table. The upsert resets the
// count whenever the stored window is older than the current one, so a single
// statement is both the window rollover and the increment.
type PGCounter struct {
	pool *pgxpool.Pool
}

// NewPGCounter creates a Postgres-backed counter.
func NewPGCounter(pool *pgxpool.Pool) *PGCounter {
	return &PGCounter{pool: pool}
}

const incrementSQL = `
INSERT INTO rate_limits (identifier, endpoint, window_start, count)
VALUES ($1, $2, $3, 1)
ON CONFLICT (identifier, endpoint) DO UPDATE
SET count = CASE
        WHEN rate_limits.window_start = EXCLUDED.window_start THEN rate_limits.count + 1
        ELSE 1
    END,
    window_start = EXCLUDED.window_start
RETURNING count`

// Increment atomically bumps the counter for the given window.
func (c *PGCounter) Increment(ctx context.Context, identifier, endpoint string, windowStart time.Time) (int, error) {
	var count int
	err := c.pool.QueryRow(ctx, incrementSQL, identifier, endpoint,
		pgtype.Timestamptz{Time: windowStart, Valid: true}).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
