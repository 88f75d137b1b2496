package handlers

import (
	"context"

	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/refresh"
	"github.com/kitkwok/tightzone/internal/scheduler"
)

// SnapshotReader serves the current record set
type SnapshotReader interface {
	Current() *contracts.Snapshot
	Count() int
}

// NewsAttacher fills records with cached news
type NewsAttacher interface {
	Attach(ctx context.Context, records []contracts.CandidateRecord) []contracts.CandidateRecord
}

// Refresher is the orchestrator surface used over HTTP
type Refresher interface {
	RequestRefresh(ctx context.Context) refresh.Result
	Status() refresh.Status
}

// JobStatsProvider reports scheduled job statistics
type JobStatsProvider interface {
	GetJobStats() []scheduler.JobStats
}
