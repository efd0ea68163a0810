// Package diff turns two consecutive port snapshots into a list of
// semantically meaningful vessel events.
package diff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ais-diff-events/internal/risk"
	"ais-diff-events/internal/vessel"
)

// EventIndex answers "when was an event of this type last emitted for this
// vessel". Backed by the append-only event log, not in-memory state: the
// pipeline is stateless between ticks.
type EventIndex interface {
	LastEventAt(ctx context.Context, mmsi string, typ vessel.EventType) (*int64, error)
}

// NopIndex never remembers anything; every dedup check passes.
type NopIndex struct{}

func (NopIndex) LastEventAt(context.Context, string, vessel.EventType) (*int64, error) {
	return nil, nil
}

// ArrivalThreshold binds one arrival event type to its time-to-ETA window.
// The window also serves as the dedup horizon for repeat emissions.
type ArrivalThreshold struct {
	Type   vessel.EventType
	Within time.Duration
}

// Config carries the rule thresholds, threaded in at construction.
type Config struct {
	// Arrival thresholds ordered widest first.
	Arrival []ArrivalThreshold
	// DraughtSpike is the minimum absolute draught delta worth an event.
	DraughtSpike decimal.Decimal
	// Staleness thresholds in hours of signal age.
	StaleWarnHours     float64
	StaleCriticalHours float64
	// Location is the port-local timezone used by the normalizers.
	Location *time.Location
}

// DefaultConfig returns the stock rule thresholds.
func DefaultConfig() Config {
	return Config{
		Arrival: []ArrivalThreshold{
			{Type: vessel.EventArrivingSoon, Within: 6 * time.Hour},
			{Type: vessel.EventArrivingImminent, Within: 2 * time.Hour},
			{Type: vessel.EventArrivingUrgent, Within: 30 * time.Minute},
		},
		DraughtSpike:       decimal.NewFromFloat(1.5),
		StaleWarnHours:     6,
		StaleCriticalHours: 24,
		Location:           time.FixedZone("UTC+8", 8*3600),
	}
}

// Engine is the snapshot-diff event detector.
type Engine struct {
	cfg        Config
	classifier *risk.Classifier
	index      EventIndex
	logger     zerolog.Logger
	newID      func() string
}

// New constructs an engine over a fixed rule config, a risk classifier, and
// an event index for dedup lookups.
func New(cfg Config, classifier *risk.Classifier, index EventIndex, logger zerolog.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.FixedZone("UTC+8", 8*3600)
	}
	if index == nil {
		index = NopIndex{}
	}
	return &Engine{
		cfg:        cfg,
		classifier: classifier,
		index:      index,
		logger:     logger.With().Str("component", "diff_engine").Logger(),
		newID:      uuid.NewString,
	}
}

// Diff evaluates the rule set for every vessel in cur against its same-MMSI
// counterpart in prev. A nil prev means there is no state to compare
// against: the first run is a baseline, not an event source.
//
// Events for one vessel come out in fixed rule order; vessels follow the
// current snapshot's order.
func (e *Engine) Diff(ctx context.Context, prev *vessel.Snapshot, cur vessel.Snapshot, prevFetchedAt *int64, now time.Time) ([]vessel.Event, error) {
	if prev == nil {
		return nil, nil
	}

	nowMs := now.UnixMilli()
	events := make([]vessel.Event, 0)

	for i := range cur.Vessels {
		rec := cur.Vessels[i]
		old := prev.Find(rec.MMSI)

		emit := func(typ vessel.EventType, detail string) {
			events = append(events, vessel.Event{
				ID:         e.newID(),
				MMSI:       rec.MMSI,
				Type:       typ,
				Detail:     detail,
				Flag:       rec.Flag,
				DetectedAt: nowMs,
			})
		}

		if old != nil && old.EtaRaw != rec.EtaRaw {
			emit(vessel.EventEtaUpdate, fmt.Sprintf("ETA changed from %q to %q", old.EtaRaw, rec.EtaRaw))
		}

		if err := e.checkArrival(ctx, rec, old, prevFetchedAt, nowMs, emit); err != nil {
			return nil, err
		}

		e.checkRiskChange(rec, old, prevFetchedAt, nowMs, emit)
		e.checkLastPort(rec, old, emit)
		e.checkDraught(rec, old, emit)
		e.checkStale(rec, prevFetchedAt, nowMs, emit)
		e.checkForeignReport(rec, old, nowMs, emit)
	}

	e.logger.Debug().
		Str("port", cur.PortCode).
		Int("vessels", len(cur.Vessels)).
		Int("events", len(events)).
		Msg("snapshot diff complete")
	return events, nil
}

// checkArrival evaluates every threshold the current time-to-ETA sits
// under. A crossing always emits; a vessel already inside the window emits
// at most once per window duration, via the event-index lookup.
func (e *Engine) checkArrival(ctx context.Context, rec vessel.Record, old *vessel.Record, prevFetchedAt *int64, nowMs int64, emit func(vessel.EventType, string)) error {
	curEta, ok := vessel.EtaTimestamp(rec, e.cfg.Location)
	if !ok {
		return nil
	}
	remaining := time.Duration(curEta-nowMs) * time.Millisecond

	// Time-to-ETA as it stood at the previous fetch, using the old
	// record's ETA against the previous fetch time, never against now.
	var prevRemaining *time.Duration
	if old != nil && prevFetchedAt != nil {
		if oldEta, okOld := vessel.EtaTimestamp(*old, e.cfg.Location); okOld {
			d := time.Duration(oldEta-*prevFetchedAt) * time.Millisecond
			prevRemaining = &d
		}
	}

	for _, th := range e.cfg.Arrival {
		if th.Within <= 0 || remaining > th.Within {
			continue
		}
		crossed := prevRemaining == nil || *prevRemaining > th.Within
		if !crossed {
			last, err := e.index.LastEventAt(ctx, rec.MMSI, th.Type)
			if err != nil {
				return fmt.Errorf("lookup last %s event for %s: %w", th.Type, rec.MMSI, err)
			}
			if last != nil && nowMs-*last < th.Within.Milliseconds() {
				continue
			}
		}
		emit(th.Type, arrivalDetail(remaining, th.Within))
	}
	return nil
}

func (e *Engine) checkRiskChange(rec vessel.Record, old *vessel.Record, prevFetchedAt *int64, nowMs int64, emit func(vessel.EventType, string)) {
	if old == nil || e.classifier == nil {
		return
	}
	oldAt := nowMs
	if prevFetchedAt != nil {
		oldAt = *prevFetchedAt
	}
	oldLevel := e.classifier.Classify(*old, oldAt)
	newLevel := e.classifier.Classify(rec, nowMs)
	if oldLevel != newLevel {
		emit(vessel.EventRiskLevelChange, fmt.Sprintf("risk level changed from %s to %s", oldLevel, newLevel))
	}
}

func (e *Engine) checkLastPort(rec vessel.Record, old *vessel.Record, emit func(vessel.EventType, string)) {
	if old == nil {
		return
	}
	was := vessel.PrevPortOrUnknown(*old)
	is := vessel.PrevPortOrUnknown(rec)
	if was != is {
		emit(vessel.EventLastPortChange, fmt.Sprintf("previous port changed from %q to %q", was, is))
	}
}

func (e *Engine) checkDraught(rec vessel.Record, old *vessel.Record, emit func(vessel.EventType, string)) {
	if old == nil {
		return
	}
	was, okOld := vessel.Draught(old.Draught)
	is, okNew := vessel.Draught(rec.Draught)
	if !okOld || !okNew {
		return
	}
	delta := is.Sub(was)
	if delta.Abs().LessThan(e.cfg.DraughtSpike) {
		return
	}
	emit(vessel.EventDraughtSpike, fmt.Sprintf("draught %s %sm (%s -> %s)",
		draughtDirection(delta), delta.Abs().StringFixed(1), was.StringFixed(1), is.StringFixed(1)))
}

// checkStale emits only on the upward crossing of a staleness threshold,
// never again while the signal simply stays stale. Critical wins when both
// thresholds crossed in the same run.
func (e *Engine) checkStale(rec vessel.Record, prevFetchedAt *int64, nowMs int64, emit func(vessel.EventType, string)) {
	lastUpdate, ok := vessel.LastUpdateTimestamp(rec, e.cfg.Location)
	if !ok {
		return
	}
	hourMs := float64(time.Hour.Milliseconds())
	curAge := float64(nowMs-lastUpdate) / hourMs
	var prevAge *float64
	if prevFetchedAt != nil {
		v := float64(*prevFetchedAt-lastUpdate) / hourMs
		prevAge = &v
	}

	crossedUp := func(threshold float64) bool {
		return threshold > 0 && curAge >= threshold && (prevAge == nil || *prevAge < threshold)
	}

	switch {
	case crossedUp(e.cfg.StaleCriticalHours):
		emit(vessel.EventStaleSignal, fmt.Sprintf("no AIS update for %.1fh (critical threshold %gh)", curAge, e.cfg.StaleCriticalHours))
	case crossedUp(e.cfg.StaleWarnHours):
		emit(vessel.EventStaleSignal, fmt.Sprintf("no AIS update for %.1fh (warn threshold %gh)", curAge, e.cfg.StaleWarnHours))
	}
}

// checkForeignReport fires only for foreign-flagged vessels whose
// last-update timestamp genuinely moved forward since the previous
// snapshot, meaning a fresh report rather than a stale value carried over.
func (e *Engine) checkForeignReport(rec vessel.Record, old *vessel.Record, nowMs int64, emit func(vessel.EventType, string)) {
	if old == nil || vessel.IsDomesticFlag(rec.Flag) {
		return
	}
	newUpdate, okNew := vessel.LastUpdateTimestamp(rec, e.cfg.Location)
	oldUpdate, okOld := vessel.LastUpdateTimestamp(*old, e.cfg.Location)
	if !okNew || !okOld || newUpdate <= oldUpdate {
		return
	}
	age := time.Duration(nowMs-newUpdate) * time.Millisecond
	emit(vessel.EventForeignReport, fmt.Sprintf("fresh AIS report %s", vessel.RelativeAge(age)))
}

func arrivalDetail(remaining, window time.Duration) string {
	if remaining <= 0 {
		return fmt.Sprintf("ETA passed %s ago (within %s window)", humanDur(-remaining), humanDur(window))
	}
	return fmt.Sprintf("ETA in %s (within %s window)", humanDur(remaining), humanDur(window))
}

func draughtDirection(delta decimal.Decimal) string {
	if delta.Sign() < 0 {
		return "down"
	}
	return "up"
}

func humanDur(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
