package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitkwok/tightzone/internal/contracts"
)

// PostgresBackend keeps every snapshot as a JSONB row and serves the newest
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend creates a PostgreSQL backend
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

func (b *PostgresBackend) Name() string { return "postgres" }

// EnsureSchema creates the snapshot table if needed
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE SCHEMA IF NOT EXISTS tightzone;
		CREATE TABLE IF NOT EXISTS tightzone.snapshots (
			id           BIGSERIAL PRIMARY KEY,
			taken_at     TIMESTAMPTZ NOT NULL,
			record_count INT NOT NULL,
			payload      JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS snapshots_taken_at_idx
			ON tightzone.snapshots (taken_at DESC);
	`

	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return nil
}

// Load returns the newest snapshot
func (b *PostgresBackend) Load(ctx context.Context) (*contracts.Snapshot, error) {
	query := `
		SELECT taken_at, payload
		FROM tightzone.snapshots
		ORDER BY taken_at DESC, id DESC
		LIMIT 1
	`

	var takenAt time.Time
	var payload []byte
	err := b.pool.QueryRow(ctx, query).Scan(&takenAt, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := decodeSnapshot(payload)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	snap.LastUpdated = takenAt.UTC()
	return snap, nil
}

// Save inserts snap in its own transaction
func (b *PostgresBackend) Save(ctx context.Context, snap *contracts.Snapshot) error {
	records := snap.Records
	if records == nil {
		records = []contracts.CandidateRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		INSERT INTO tightzone.snapshots (taken_at, record_count, payload)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, query, snap.LastUpdated.UTC(), len(records), payload); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
