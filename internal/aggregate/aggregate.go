// Package aggregate folds detected events into calendar-windowed rollup
// counters and rebuilds the arrived-ships projection. Everything here is a
// pure function of its inputs so recomputes are idempotent.
package aggregate

import (
	"time"

	"ais-diff-events/internal/vessel"
)

// Window is a half-open [Start, End) time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether an epoch-millisecond instant falls in the window.
func (w Window) Contains(ms int64) bool {
	t := time.UnixMilli(ms)
	return !t.Before(w.Start) && t.Before(w.End)
}

// Day returns the local midnight-to-midnight window containing ref.
func Day(ref time.Time, loc *time.Location) Window {
	local := ref.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Week returns the Monday-00:00-to-Monday window containing ref, computed
// by stepping back (weekday+6) mod 7 days from the local date.
func Week(ref time.Time, loc *time.Location) Window {
	local := ref.In(loc)
	back := (int(local.Weekday()) + 6) % 7
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	start := day.AddDate(0, 0, -back)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// Fold counts arrival and risk-change events inside the window, skipping
// events from domestic-flagged vessels. Two calls over the same inputs
// produce identical counters.
func Fold(events []vessel.Event, w Window, now time.Time) vessel.AggregateRow {
	row := vessel.AggregateRow{
		WindowStart: w.Start,
		WindowEnd:   w.End,
		UpdatedAt:   now,
	}

	arrivalShips := make(map[string]struct{})
	riskShips := make(map[string]struct{})

	for _, ev := range events {
		if !w.Contains(ev.DetectedAt) {
			continue
		}
		if vessel.IsDomesticFlag(ev.Flag) {
			continue
		}
		switch {
		case vessel.IsArrival(ev.Type):
			row.ArrivalEventCount++
			arrivalShips[ev.MMSI] = struct{}{}
		case ev.Type == vessel.EventRiskLevelChange:
			row.RiskEventCount++
			riskShips[ev.MMSI] = struct{}{}
		}
	}

	row.ArrivalShipCount = len(arrivalShips)
	row.RiskShipCount = len(riskShips)
	return row
}

// BuildArrivals projects the foreign vessels of a snapshot whose ETA fell
// inside the arrived window ending at now. The result is upserted by
// (port_code, mmsi); newer information simply overwrites older rows.
func BuildArrivals(snap vessel.Snapshot, now time.Time, arrivedWindow time.Duration, loc *time.Location) []vessel.ArrivalRecord {
	nowMs := now.UnixMilli()
	out := make([]vessel.ArrivalRecord, 0)

	for _, rec := range snap.Vessels {
		if vessel.IsDomesticFlag(rec.Flag) {
			continue
		}
		eta, ok := vessel.EtaTimestamp(rec, loc)
		if !ok {
			continue
		}
		if eta > nowMs || nowMs-eta > arrivedWindow.Milliseconds() {
			continue
		}
		out = append(out, vessel.ArrivalRecord{
			PortCode:  snap.PortCode,
			MMSI:      rec.MMSI,
			Name:      rec.Name,
			Flag:      rec.Flag,
			EtaMs:     eta,
			PrevPort:  vessel.PrevPortOrUnknown(rec),
			UpdatedAt: nowMs,
		})
	}
	return out
}
