// Package storage defines the persistence contracts the pipeline runs
// against. The backend (PostgreSQL, SQLite, memory) is an implementation
// choice behind these interfaces, never a behavioral variant.
package storage

import (
	"context"
	"errors"
	"time"

	"ais-diff-events/internal/vessel"
)

// ErrNotConfigured indicates a store handle without a live backend.
var ErrNotConfigured = errors.New("storage: not configured")

// SnapshotStore persists the append-only snapshot log. Only the single most
// recent snapshot per port is ever read back.
type SnapshotStore interface {
	// GetLatestSnapshot returns the most recent snapshot for the port,
	// ties broken by insertion order, or nil when none exists.
	GetLatestSnapshot(ctx context.Context, portCode string) (*vessel.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap vessel.Snapshot) error
}

// EventStore persists the append-only event log and serves the temporal
// lookups the diff engine and aggregator need.
type EventStore interface {
	// SaveEvents appends events; a no-op for empty input.
	SaveEvents(ctx context.Context, events []vessel.Event) error
	// ListEventsBetween returns events with detected_at in [from, to) ms.
	ListEventsBetween(ctx context.Context, from, to int64) ([]vessel.Event, error)
	ListRecentEvents(ctx context.Context, limit int) ([]vessel.Event, error)
	// LastEventAt returns the newest detected_at for (mmsi, type), or nil.
	LastEventAt(ctx context.Context, mmsi string, typ vessel.EventType) (*int64, error)
}

// ArrivalStore upserts the arrived-ships projection keyed by (port, mmsi).
type ArrivalStore interface {
	UpsertArrivals(ctx context.Context, records []vessel.ArrivalRecord) error
}

// AggregateStore upserts rollup rows keyed by their window-start label.
type AggregateStore interface {
	UpsertDailyAggregate(ctx context.Context, portCode string, row vessel.AggregateRow) error
	UpsertWeeklyAggregate(ctx context.Context, portCode string, row vessel.AggregateRow) error
	ListDailyAggregates(ctx context.Context, portCode string, from, to time.Time) ([]vessel.AggregateRow, error)
}

// AdvisoryLocker is implemented by backends that can fence concurrent
// pipeline instances.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the full persistence surface the pipeline consumes.
type Store interface {
	SnapshotStore
	EventStore
	ArrivalStore
	AggregateStore
	Close()
}
