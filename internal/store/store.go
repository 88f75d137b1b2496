package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/metrics"
	"github.com/kitkwok/tightzone/pkg/logger"
)

// ErrNotFound means no snapshot has ever been saved
var ErrNotFound = errors.New("snapshot not found")

// Backend persists snapshots durably
type Backend interface {
	Name() string
	Load(ctx context.Context) (*contracts.Snapshot, error)
	Save(ctx context.Context, snap *contracts.Snapshot) error
}

// Store serves the current snapshot and swaps it atomically.
// ⭐ SSOT: the only holder of the served record set
type Store struct {
	backend Backend
	logger  *logger.Logger
	metrics *metrics.Metrics
	current atomic.Pointer[contracts.Snapshot]
}

// New creates a store over backend. It starts empty; call Reload to load.
func New(backend Backend, log *logger.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  log.Component("store"),
	}
}

// WithMetrics publishes the served record count
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// Backend returns the durable backend
func (s *Store) Backend() Backend {
	return s.backend
}

// Current returns the served snapshot, or nil before the first load.
// The returned snapshot must not be modified.
func (s *Store) Current() *contracts.Snapshot {
	return s.current.Load()
}

// Count returns the number of served records
func (s *Store) Count() int {
	return s.current.Load().Count()
}

// Reload reads the backend and swaps the served snapshot.
// On error the served snapshot is left untouched.
func (s *Store) Reload(ctx context.Context) error {
	snap, err := s.backend.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("reload from %s: %w", s.backend.Name(), err)
	}

	s.swap(snap)
	s.logger.WithFields(map[string]interface{}{
		"backend":      s.backend.Name(),
		"records":      snap.Count(),
		"last_updated": snap.LastUpdated,
	}).Info("Snapshot loaded")
	return nil
}

// Replace persists snap and then serves it
func (s *Store) Replace(ctx context.Context, snap *contracts.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("replace: nil snapshot")
	}
	if err := s.backend.Save(ctx, snap); err != nil {
		return fmt.Errorf("save to %s: %w", s.backend.Name(), err)
	}
	s.swap(snap)
	return nil
}

func (s *Store) swap(snap *contracts.Snapshot) {
	if snap.Records == nil {
		snap.Records = []contracts.CandidateRecord{}
	}
	s.current.Store(snap)
	s.metrics.SetSnapshotRecords(snap.Count())
}
