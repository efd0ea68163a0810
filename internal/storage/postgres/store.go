// Package postgres is the primary store backend, built on pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ais-diff-events/internal/storage"
	"ais-diff-events/internal/vessel"
)

const (
	insertSnapshotSQL = `INSERT INTO snapshots (
        port_code,
        fetched_at,
        window_from,
        window_to,
        vessels
    ) VALUES ($1,$2,$3,$4,$5);`

	latestSnapshotSQL = `SELECT
        port_code,
        fetched_at,
        window_from,
        window_to,
        vessels
    FROM snapshots
    WHERE port_code = $1
    ORDER BY fetched_at DESC, id DESC
    LIMIT 1;`

	insertEventSQL = `INSERT INTO events (
        id,
        mmsi,
        type,
        detail,
        flag,
        detected_at
    ) VALUES ($1,$2,$3,$4,$5,$6)
    ON CONFLICT (id) DO NOTHING;`

	listEventsBetweenSQL = `SELECT id, mmsi, type, detail, flag, detected_at
    FROM events
    WHERE detected_at >= $1
      AND detected_at < $2
    ORDER BY detected_at, created_at;`

	listRecentEventsSQL = `SELECT id, mmsi, type, detail, flag, detected_at
    FROM events
    ORDER BY detected_at DESC
    LIMIT $1;`

	lastEventAtSQL = `SELECT detected_at
    FROM events
    WHERE mmsi = $1
      AND type = $2
    ORDER BY detected_at DESC
    LIMIT 1;`

	upsertArrivalSQL = `INSERT INTO arrivals (
        port_code, mmsi, name, flag, eta_ms, prev_port, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7)
    ON CONFLICT (port_code, mmsi) DO UPDATE
    SET name       = EXCLUDED.name,
        flag       = EXCLUDED.flag,
        eta_ms     = EXCLUDED.eta_ms,
        prev_port  = EXCLUDED.prev_port,
        updated_at = EXCLUDED.updated_at;`

	upsertDailySQL = `INSERT INTO daily_aggregates (
        port_code, day_key, window_start, window_end,
        arrival_event_count, arrival_ship_count,
        risk_event_count, risk_ship_count, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    ON CONFLICT (port_code, day_key) DO UPDATE
    SET window_start        = EXCLUDED.window_start,
        window_end          = EXCLUDED.window_end,
        arrival_event_count = EXCLUDED.arrival_event_count,
        arrival_ship_count  = EXCLUDED.arrival_ship_count,
        risk_event_count    = EXCLUDED.risk_event_count,
        risk_ship_count     = EXCLUDED.risk_ship_count,
        updated_at          = EXCLUDED.updated_at;`

	upsertWeeklySQL = `INSERT INTO weekly_aggregates (
        port_code, week_key, window_start, window_end,
        arrival_event_count, arrival_ship_count,
        risk_event_count, risk_ship_count, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    ON CONFLICT (port_code, week_key) DO UPDATE
    SET window_start        = EXCLUDED.window_start,
        window_end          = EXCLUDED.window_end,
        arrival_event_count = EXCLUDED.arrival_event_count,
        arrival_ship_count  = EXCLUDED.arrival_ship_count,
        risk_event_count    = EXCLUDED.risk_event_count,
        risk_ship_count     = EXCLUDED.risk_ship_count,
        updated_at          = EXCLUDED.updated_at;`

	listDailySQL = `SELECT window_start, window_end,
        arrival_event_count, arrival_ship_count,
        risk_event_count, risk_ship_count, updated_at
    FROM daily_aggregates
    WHERE port_code = $1
      AND window_start >= $2
      AND window_start < $3
    ORDER BY window_start;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store implements the full storage contract over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.pool, nil
}

// SaveSnapshot appends a snapshot; vessels travel as one JSONB document.
func (s *Store) SaveSnapshot(ctx context.Context, snap vessel.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(snap.Vessels)
	if err != nil {
		return fmt.Errorf("marshal snapshot vessels: %w", err)
	}

	if _, err := pool.Exec(ctx, insertSnapshotSQL,
		snap.PortCode, snap.FetchedAt, snap.WindowFrom, snap.WindowTo, payload,
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetLatestSnapshot reads back the newest snapshot for a port, nil if none.
func (s *Store) GetLatestSnapshot(ctx context.Context, portCode string) (*vessel.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var snap vessel.Snapshot
	var payload []byte
	row := pool.QueryRow(ctx, latestSnapshotSQL, portCode)
	if err := row.Scan(&snap.PortCode, &snap.FetchedAt, &snap.WindowFrom, &snap.WindowTo, &payload); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	if err := json.Unmarshal(payload, &snap.Vessels); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot vessels: %w", err)
	}
	return &snap, nil
}

// SaveEvents appends detected events in one batch.
func (s *Store) SaveEvents(ctx context.Context, events []vessel.Event) error {
	if len(events) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(insertEventSQL, ev.ID, ev.MMSI, string(ev.Type), ev.Detail, ev.Flag, ev.DetectedAt)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return nil
}

// ListEventsBetween returns events with detected_at in [from, to) ms.
func (s *Store) ListEventsBetween(ctx context.Context, from, to int64) ([]vessel.Event, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEventsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list events between: %w", queryErr)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecentEvents returns the newest events, most recent first.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]vessel.Event, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent events: %w", queryErr)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LastEventAt resolves the dedup lookup for (mmsi, type).
func (s *Store) LastEventAt(ctx context.Context, mmsi string, typ vessel.EventType) (*int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var detected int64
	if err := pool.QueryRow(ctx, lastEventAtSQL, mmsi, string(typ)).Scan(&detected); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("last event at: %w", err)
	}
	return &detected, nil
}

// UpsertArrivals writes the arrived-ships projection.
func (s *Store) UpsertArrivals(ctx context.Context, records []vessel.ArrivalRecord) error {
	if len(records) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertArrivalSQL, rec.PortCode, rec.MMSI, rec.Name, rec.Flag, rec.EtaMs, rec.PrevPort, rec.UpdatedAt)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert arrival: %w", err)
		}
	}
	return nil
}

// UpsertDailyAggregate writes one day rollup keyed by its start-date label.
func (s *Store) UpsertDailyAggregate(ctx context.Context, portCode string, row vessel.AggregateRow) error {
	return s.upsertAggregate(ctx, upsertDailySQL, portCode, row)
}

// UpsertWeeklyAggregate writes one week rollup keyed by its Monday label.
func (s *Store) UpsertWeeklyAggregate(ctx context.Context, portCode string, row vessel.AggregateRow) error {
	return s.upsertAggregate(ctx, upsertWeeklySQL, portCode, row)
}

func (s *Store) upsertAggregate(ctx context.Context, sql string, portCode string, row vessel.AggregateRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, sql,
		portCode, row.Key(), row.WindowStart, row.WindowEnd,
		row.ArrivalEventCount, row.ArrivalShipCount,
		row.RiskEventCount, row.RiskShipCount, row.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert aggregate %s: %w", row.Key(), err)
	}
	return nil
}

// ListDailyAggregates returns day rollups with window_start in [from, to).
func (s *Store) ListDailyAggregates(ctx context.Context, portCode string, from, to time.Time) ([]vessel.AggregateRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailySQL, portCode, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily aggregates: %w", queryErr)
	}
	defer rows.Close()

	out := make([]vessel.AggregateRow, 0)
	for rows.Next() {
		var row vessel.AggregateRow
		if err := rows.Scan(
			&row.WindowStart, &row.WindowEnd,
			&row.ArrivalEventCount, &row.ArrivalShipCount,
			&row.RiskEventCount, &row.RiskShipCount, &row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// TryAdvisoryLock attempts a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func scanEvents(rows pgx.Rows) ([]vessel.Event, error) {
	events := make([]vessel.Event, 0)
	for rows.Next() {
		var ev vessel.Event
		var typ string
		if err := rows.Scan(&ev.ID, &ev.MMSI, &typ, &ev.Detail, &ev.Flag, &ev.DetectedAt); err != nil {
			return nil, err
		}
		ev.Type = vessel.EventType(typ)
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

var _ storage.Store = (*Store)(nil)
var _ storage.AdvisoryLocker = (*Store)(nil)
