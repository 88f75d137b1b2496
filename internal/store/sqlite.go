package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kitkwok/tightzone/internal/contracts"
)

// SQLiteBackend keeps snapshots in a local SQLite file. It suits a single
// host where the gather process and the server share a disk.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and its schema
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	b := &SQLiteBackend{db: db, path: path}
	if err := b.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

// Path returns the database file
func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at     INTEGER NOT NULL,
			record_count INTEGER NOT NULL,
			payload      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS snapshots_taken_at_idx ON snapshots (taken_at DESC);
	`
	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return nil
}

// Load returns the newest snapshot
func (b *SQLiteBackend) Load(ctx context.Context) (*contracts.Snapshot, error) {
	var takenAt int64
	var payload string
	err := b.db.QueryRowContext(ctx, `
		SELECT taken_at, payload FROM snapshots
		ORDER BY taken_at DESC, id DESC
		LIMIT 1
	`).Scan(&takenAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}

	snap, err := decodeSnapshot([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	snap.LastUpdated = time.UnixMilli(takenAt).UTC()
	return snap, nil
}

// Save inserts snap and drops all older rows in one transaction
func (b *SQLiteBackend) Save(ctx context.Context, snap *contracts.Snapshot) error {
	records := snap.Records
	if records == nil {
		records = []contracts.CandidateRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (taken_at, record_count, payload) VALUES (?, ?, ?)`,
		snap.LastUpdated.UnixMilli(), len(records), string(payload))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite insert id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id <> ?`, id); err != nil {
		return fmt.Errorf("sqlite prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// Close closes the database
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
