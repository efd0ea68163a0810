// Package risk maps a vessel record onto a small ordered scale of risk
// levels from a static rule table. The diff engine only depends on levels
// being comparable, not on the rules themselves.
package risk

import (
	"time"

	"ais-diff-events/internal/vessel"
)

// Level is a totally ordered risk classification.
type Level int

const (
	Normal Level = iota
	Attention
	High
)

func (l Level) String() string {
	switch l {
	case High:
		return "HIGH"
	case Attention:
		return "ATTENTION"
	default:
		return "NORMAL"
	}
}

// Rules holds the externally supplied classification thresholds,
// consumed read-only.
type Rules struct {
	WarnHours     float64
	CriticalHours float64
}

// DefaultRules mirror the staleness thresholds used by the stale-signal rule.
func DefaultRules() Rules {
	return Rules{WarnHours: 6, CriticalHours: 24}
}

// Classifier evaluates one record at a point in time.
type Classifier struct {
	rules Rules
	loc   *time.Location
}

// New builds a classifier over a fixed rule table.
func New(rules Rules, loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Classifier{rules: rules, loc: loc}
}

// Classify maps a record to a level based on how stale its AIS signal is at
// the given instant. A record whose last-report time cannot be determined is
// never Normal.
func (c *Classifier) Classify(r vessel.Record, atMs int64) Level {
	lastUpdate, ok := vessel.LastUpdateTimestamp(r, c.loc)
	if !ok {
		return Attention
	}
	ageHours := float64(atMs-lastUpdate) / float64(time.Hour.Milliseconds())
	switch {
	case c.rules.CriticalHours > 0 && ageHours >= c.rules.CriticalHours:
		return High
	case c.rules.WarnHours > 0 && ageHours >= c.rules.WarnHours:
		return Attention
	default:
		return Normal
	}
}
