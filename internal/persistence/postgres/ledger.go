// Package postgres provides a Postgres-backed processed-event ledger for
// deployments that run more than one replica.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/runcoach/internal/domain"
	"example.com/runcoach/internal/observability"
)

const createTable = `CREATE TABLE IF NOT EXISTS processed_events (
        event_id BIGINT PRIMARY KEY,
        processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`

// Ledger records processed webhook event ids.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger constructs a Ledger on an existing pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Init creates the ledger table if it does not exist.
func (l *Ledger) Init(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create processed_events: %w", err)
	}
	return nil
}

// IsProcessed reports whether eventID has been recorded.
func (l *Ledger) IsProcessed(ctx context.Context, eventID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id=$1)`

	var exists bool
	if err := l.pool.QueryRow(ctx, query, eventID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MarkProcessed inserts eventID. Concurrent callers race on the primary key;
// the loser gets domain.ErrDuplicateEvent.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID int64) error {
	const stmt = `INSERT INTO processed_events (event_id) VALUES ($1)
        ON CONFLICT (event_id) DO NOTHING`

	tag, err := l.pool.Exec(ctx, stmt, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		observability.RecordLedgerDuplicate()
		return fmt.Errorf("event %d: %w", eventID, domain.ErrDuplicateEvent)
	}
	return nil
}
