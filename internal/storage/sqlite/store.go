// Package sqlite is the single-file store backend, built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ais-diff-events/internal/storage"
	"ais-diff-events/internal/vessel"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    port_code   TEXT    NOT NULL,
    fetched_at  INTEGER NOT NULL,
    window_from INTEGER NOT NULL,
    window_to   INTEGER NOT NULL,
    vessels     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_port_latest
    ON snapshots (port_code, fetched_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS events (
    id          TEXT PRIMARY KEY,
    mmsi        TEXT    NOT NULL,
    type        TEXT    NOT NULL,
    detail      TEXT    NOT NULL,
    flag        TEXT    NOT NULL DEFAULT '',
    detected_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_mmsi_type
    ON events (mmsi, type, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_detected
    ON events (detected_at);

CREATE TABLE IF NOT EXISTS arrivals (
    port_code  TEXT    NOT NULL,
    mmsi       TEXT    NOT NULL,
    name       TEXT    NOT NULL DEFAULT '',
    flag       TEXT    NOT NULL DEFAULT '',
    eta_ms     INTEGER NOT NULL,
    prev_port  TEXT    NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (port_code, mmsi)
);

CREATE TABLE IF NOT EXISTS daily_aggregates (
    port_code           TEXT    NOT NULL,
    day_key             TEXT    NOT NULL,
    window_start_ms     INTEGER NOT NULL,
    window_end_ms       INTEGER NOT NULL,
    arrival_event_count INTEGER NOT NULL,
    arrival_ship_count  INTEGER NOT NULL,
    risk_event_count    INTEGER NOT NULL,
    risk_ship_count     INTEGER NOT NULL,
    updated_at_ms       INTEGER NOT NULL,
    PRIMARY KEY (port_code, day_key)
);

CREATE TABLE IF NOT EXISTS weekly_aggregates (
    port_code           TEXT    NOT NULL,
    week_key            TEXT    NOT NULL,
    window_start_ms     INTEGER NOT NULL,
    window_end_ms       INTEGER NOT NULL,
    arrival_event_count INTEGER NOT NULL,
    arrival_ship_count  INTEGER NOT NULL,
    risk_event_count    INTEGER NOT NULL,
    risk_ship_count     INTEGER NOT NULL,
    updated_at_ms       INTEGER NOT NULL,
    PRIMARY KEY (port_code, week_key)
);
`

// Store implements the storage contract over a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database file, applies the schema, and returns
// a ready Store. SQLite in a single-process pipeline runs on one connection.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *Store) handle() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.db, nil
}

// SaveSnapshot appends a snapshot with its vessel list as a JSON document.
func (s *Store) SaveSnapshot(ctx context.Context, snap vessel.Snapshot) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap.Vessels)
	if err != nil {
		return fmt.Errorf("marshal snapshot vessels: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO snapshots (port_code, fetched_at, window_from, window_to, vessels) VALUES (?,?,?,?,?);`,
		snap.PortCode, snap.FetchedAt, snap.WindowFrom, snap.WindowTo, string(payload),
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetLatestSnapshot reads back the newest snapshot for a port, nil if none.
func (s *Store) GetLatestSnapshot(ctx context.Context, portCode string) (*vessel.Snapshot, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var snap vessel.Snapshot
	var payload string
	err = db.QueryRowContext(ctx,
		`SELECT port_code, fetched_at, window_from, window_to, vessels
         FROM snapshots WHERE port_code = ?
         ORDER BY fetched_at DESC, id DESC LIMIT 1;`,
		portCode,
	).Scan(&snap.PortCode, &snap.FetchedAt, &snap.WindowFrom, &snap.WindowTo, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &snap.Vessels); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot vessels: %w", err)
	}
	return &snap, nil
}

// SaveEvents appends detected events inside one transaction.
func (s *Store) SaveEvents(ctx context.Context, events []vessel.Event) error {
	if len(events) == 0 {
		return nil
	}
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO events (id, mmsi, type, detail, flag, detected_at) VALUES (?,?,?,?,?,?);`,
			ev.ID, ev.MMSI, string(ev.Type), ev.Detail, ev.Flag, ev.DetectedAt,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

// ListEventsBetween returns events with detected_at in [from, to) ms.
func (s *Store) ListEventsBetween(ctx context.Context, from, to int64) ([]vessel.Event, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, mmsi, type, detail, flag, detected_at FROM events
         WHERE detected_at >= ? AND detected_at < ?
         ORDER BY detected_at, rowid;`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list events between: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecentEvents returns the newest events, most recent first.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]vessel.Event, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, mmsi, type, detail, flag, detected_at FROM events
         ORDER BY detected_at DESC LIMIT ?;`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LastEventAt resolves the dedup lookup for (mmsi, type).
func (s *Store) LastEventAt(ctx context.Context, mmsi string, typ vessel.EventType) (*int64, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var detected int64
	err = db.QueryRowContext(ctx,
		`SELECT detected_at FROM events WHERE mmsi = ? AND type = ?
         ORDER BY detected_at DESC LIMIT 1;`,
		mmsi, string(typ),
	).Scan(&detected)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last event at: %w", err)
	}
	return &detected, nil
}

// UpsertArrivals writes the arrived-ships projection.
func (s *Store) UpsertArrivals(ctx context.Context, records []vessel.ArrivalRecord) error {
	if len(records) == 0 {
		return nil
	}
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO arrivals (port_code, mmsi, name, flag, eta_ms, prev_port, updated_at)
             VALUES (?,?,?,?,?,?,?)
             ON CONFLICT (port_code, mmsi) DO UPDATE
             SET name = excluded.name,
                 flag = excluded.flag,
                 eta_ms = excluded.eta_ms,
                 prev_port = excluded.prev_port,
                 updated_at = excluded.updated_at;`,
			rec.PortCode, rec.MMSI, rec.Name, rec.Flag, rec.EtaMs, rec.PrevPort, rec.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert arrival: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertDailyAggregate writes one day rollup keyed by its start-date label.
func (s *Store) UpsertDailyAggregate(ctx context.Context, portCode string, row vessel.AggregateRow) error {
	return s.upsertAggregate(ctx, "daily_aggregates", "day_key", portCode, row)
}

// UpsertWeeklyAggregate writes one week rollup keyed by its Monday label.
func (s *Store) UpsertWeeklyAggregate(ctx context.Context, portCode string, row vessel.AggregateRow) error {
	return s.upsertAggregate(ctx, "weekly_aggregates", "week_key", portCode, row)
}

func (s *Store) upsertAggregate(ctx context.Context, table, keyCol, portCode string, row vessel.AggregateRow) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (port_code, %s, window_start_ms, window_end_ms,
             arrival_event_count, arrival_ship_count, risk_event_count, risk_ship_count, updated_at_ms)
         VALUES (?,?,?,?,?,?,?,?,?)
         ON CONFLICT (port_code, %s) DO UPDATE
         SET window_start_ms     = excluded.window_start_ms,
             window_end_ms       = excluded.window_end_ms,
             arrival_event_count = excluded.arrival_event_count,
             arrival_ship_count  = excluded.arrival_ship_count,
             risk_event_count    = excluded.risk_event_count,
             risk_ship_count     = excluded.risk_ship_count,
             updated_at_ms       = excluded.updated_at_ms;`,
		table, keyCol, keyCol,
	)
	if _, err := db.ExecContext(ctx, query,
		portCode, row.Key(), row.WindowStart.UnixMilli(), row.WindowEnd.UnixMilli(),
		row.ArrivalEventCount, row.ArrivalShipCount,
		row.RiskEventCount, row.RiskShipCount, row.UpdatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("upsert aggregate %s: %w", row.Key(), err)
	}
	return nil
}

// ListDailyAggregates returns day rollups with window_start in [from, to).
func (s *Store) ListDailyAggregates(ctx context.Context, portCode string, from, to time.Time) ([]vessel.AggregateRow, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT window_start_ms, window_end_ms,
             arrival_event_count, arrival_ship_count,
             risk_event_count, risk_ship_count, updated_at_ms
         FROM daily_aggregates
         WHERE port_code = ? AND window_start_ms >= ? AND window_start_ms < ?
         ORDER BY window_start_ms;`,
		portCode, from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list daily aggregates: %w", err)
	}
	defer rows.Close()

	out := make([]vessel.AggregateRow, 0)
	for rows.Next() {
		var row vessel.AggregateRow
		var startMs, endMs, updatedMs int64
		if err := rows.Scan(
			&startMs, &endMs,
			&row.ArrivalEventCount, &row.ArrivalShipCount,
			&row.RiskEventCount, &row.RiskShipCount, &updatedMs,
		); err != nil {
			return nil, err
		}
		row.WindowStart = time.UnixMilli(startMs)
		row.WindowEnd = time.UnixMilli(endMs)
		row.UpdatedAt = time.UnixMilli(updatedMs)
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanEvents(rows *sql.Rows) ([]vessel.Event, error) {
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
