package vessel

import "time"

// Record is one vessel's AIS-reported state as captured at fetch time.
// Raw fields are kept as delivered by the feed; canonical values come from
// the normalizers in this package. Immutable once captured.
type Record struct {
	MMSI string `json:"mmsi"`
	Name string `json:"name,omitempty"`
	Flag string `json:"flag,omitempty"`

	// ETA arrives either as a local-format string, an epoch-seconds
	// number, or both.
	EtaRaw string   `json:"eta,omitempty"`
	EtaTs  *float64 `json:"eta_ts,omitempty"`

	LastUpdateRaw string   `json:"last_update,omitempty"`
	LastUpdateTs  *float64 `json:"last_update_ts,omitempty"`

	// Draught is numeric or a numeric string depending on the feed mood.
	Draught any `json:"draught,omitempty"`

	Length     *float64 `json:"length,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Deadweight *float64 `json:"deadweight,omitempty"`

	PrevPort     string `json:"prev_port,omitempty"`
	PrevPortName string `json:"prev_port_name,omitempty"`
	Destination  string `json:"destination,omitempty"`
}

// Snapshot is one fetch's full vessel list for a port. Append-only; the
// pipeline only ever reads the single most recent snapshot as "previous".
type Snapshot struct {
	PortCode   string   `json:"port_code"`
	FetchedAt  int64    `json:"fetched_at"`  // epoch ms
	WindowFrom int64    `json:"window_from"` // epoch s, fetch lookback bound
	WindowTo   int64    `json:"window_to"`   // epoch s, fetch lookahead bound
	Vessels    []Record `json:"vessels"`
}

// Find returns the record with the given MMSI, or nil.
func (s *Snapshot) Find(mmsi string) *Record {
	if s == nil {
		return nil
	}
	for i := range s.Vessels {
		if s.Vessels[i].MMSI == mmsi {
			return &s.Vessels[i]
		}
	}
	return nil
}

// EventType enumerates the closed set of detectable state changes.
type EventType string

const (
	EventEtaUpdate        EventType = "ETA_UPDATE"
	EventArrivingSoon     EventType = "ARRIVING_SOON"
	EventArrivingImminent EventType = "ARRIVING_IMMINENT"
	EventArrivingUrgent   EventType = "ARRIVING_URGENT"
	EventRiskLevelChange  EventType = "RISK_LEVEL_CHANGE"
	EventLastPortChange   EventType = "LAST_PORT_CHANGE"
	EventDraughtSpike     EventType = "DRAUGHT_SPIKE"
	EventStaleSignal      EventType = "STALE_SIGNAL"
	EventForeignReport    EventType = "FOREIGN_REPORT"
)

// ArrivalTypes are the event types counted as arrivals by the aggregator.
var ArrivalTypes = []EventType{EventArrivingSoon, EventArrivingImminent, EventArrivingUrgent}

// IsArrival reports whether t is one of the three arrival threshold types.
func IsArrival(t EventType) bool {
	for _, a := range ArrivalTypes {
		if t == a {
			return true
		}
	}
	return false
}

// Event is a single detected state-change fact about one vessel.
// Append-only; never mutated once written.
type Event struct {
	ID         string    `json:"id"`
	MMSI       string    `json:"mmsi"`
	Type       EventType `json:"type"`
	Detail     string    `json:"detail"`
	Flag       string    `json:"flag,omitempty"`
	DetectedAt int64     `json:"detected_at"` // epoch ms
}

// ArrivalRecord is the upsertable arrived-ships projection, keyed by
// (port_code, mmsi) and updated in place as new information supersedes old.
type ArrivalRecord struct {
	PortCode  string `json:"port_code"`
	MMSI      string `json:"mmsi"`
	Name      string `json:"name,omitempty"`
	Flag      string `json:"flag,omitempty"`
	EtaMs     int64  `json:"eta_ms"`
	PrevPort  string `json:"prev_port,omitempty"`
	UpdatedAt int64  `json:"updated_at"` // epoch ms
}

// AggregateRow carries the counters for one daily or weekly window.
// Derived entirely from the event log in the window; recomputing with the
// same inputs yields an identical row (UpdatedAt excepted).
type AggregateRow struct {
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	ArrivalEventCount int       `json:"arrival_event_count"`
	ArrivalShipCount  int       `json:"arrival_ship_count"`
	RiskEventCount    int       `json:"risk_event_count"`
	RiskShipCount     int       `json:"risk_ship_count"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Key returns the window-start date label the row is upserted under.
func (r AggregateRow) Key() string {
	return r.WindowStart.Format("2006-01-02")
}
