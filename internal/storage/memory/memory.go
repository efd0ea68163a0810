// Package memory keeps everything in process memory. Used by tests and for
// running the pipeline without persistence.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ais-diff-events/internal/storage"
	"ais-diff-events/internal/vessel"
)

type arrivalKey struct {
	port string
	mmsi string
}

type aggregateKey struct {
	port string
	key  string
}

// Store implements the full storage contract with maps and slices.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string][]vessel.Snapshot
	events    []vessel.Event
	arrivals  map[arrivalKey]vessel.ArrivalRecord
	daily     map[aggregateKey]vessel.AggregateRow
	weekly    map[aggregateKey]vessel.AggregateRow
}

// New returns an empty store.
func New() *Store {
	return &Store{
		snapshots: make(map[string][]vessel.Snapshot),
		arrivals:  make(map[arrivalKey]vessel.ArrivalRecord),
		daily:     make(map[aggregateKey]vessel.AggregateRow),
		weekly:    make(map[aggregateKey]vessel.AggregateRow),
	}
}

func (s *Store) Close() {}

func (s *Store) SaveSnapshot(_ context.Context, snap vessel.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.PortCode] = append(s.snapshots[snap.PortCode], snap)
	return nil
}

func (s *Store) GetLatestSnapshot(_ context.Context, portCode string) (*vessel.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.snapshots[portCode]
	if len(log) == 0 {
		return nil, nil
	}
	// Newest fetched_at wins; insertion order breaks ties.
	best := log[0]
	for _, snap := range log[1:] {
		if snap.FetchedAt >= best.FetchedAt {
			best = snap
		}
	}
	out := best
	return &out, nil
}

func (s *Store) SaveEvents(_ context.Context, events []vessel.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *Store) ListEventsBetween(_ context.Context, from, to int64) ([]vessel.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vessel.Event, 0)
	for _, ev := range s.events {
		if ev.DetectedAt >= from && ev.DetectedAt < to {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt < out[j].DetectedAt })
	return out, nil
}

func (s *Store) ListRecentEvents(_ context.Context, limit int) ([]vessel.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vessel.Event, len(s.events))
	copy(out, s.events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt > out[j].DetectedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LastEventAt(_ context.Context, mmsi string, typ vessel.EventType) (*int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *int64
	for _, ev := range s.events {
		if ev.MMSI != mmsi || ev.Type != typ {
			continue
		}
		if last == nil || ev.DetectedAt > *last {
			detected := ev.DetectedAt
			last = &detected
		}
	}
	return last, nil
}

func (s *Store) UpsertArrivals(_ context.Context, records []vessel.ArrivalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.arrivals[arrivalKey{rec.PortCode, rec.MMSI}] = rec
	}
	return nil
}

func (s *Store) UpsertDailyAggregate(_ context.Context, portCode string, row vessel.AggregateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily[aggregateKey{portCode, row.Key()}] = row
	return nil
}

func (s *Store) UpsertWeeklyAggregate(_ context.Context, portCode string, row vessel.AggregateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weekly[aggregateKey{portCode, row.Key()}] = row
	return nil
}

func (s *Store) ListDailyAggregates(_ context.Context, portCode string, from, to time.Time) ([]vessel.AggregateRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vessel.AggregateRow, 0)
	for key, row := range s.daily {
		if key.port != portCode {
			continue
		}
		if row.WindowStart.Before(from) || !row.WindowStart.Before(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart.Before(out[j].WindowStart) })
	return out, nil
}

// DailyAggregate returns the stored day rollup for inspection in tests.
func (s *Store) DailyAggregate(portCode, key string) (vessel.AggregateRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.daily[aggregateKey{portCode, key}]
	return row, ok
}

// WeeklyAggregate returns the stored week rollup for inspection in tests.
func (s *Store) WeeklyAggregate(portCode, key string) (vessel.AggregateRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.weekly[aggregateKey{portCode, key}]
	return row, ok
}

// Arrival returns the stored arrival projection row for inspection in tests.
func (s *Store) Arrival(portCode, mmsi string) (vessel.ArrivalRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.arrivals[arrivalKey{portCode, mmsi}]
	return rec, ok
}

var _ storage.Store = (*Store)(nil)
