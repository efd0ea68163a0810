package vessel

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownPort is the placeholder previous-port value used for comparison
// when the feed delivers neither source field.
const UnknownPort = "unknown"

// Layouts the feed is known to ship without an explicit offset.
var plainLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

var isoLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

var offsetLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
}

var offsetSuffixRe = regexp.MustCompile(`(?:Z|[+-]\d{2}:?\d{2})$`)

func hasExplicitOffset(s string) bool {
	return offsetSuffixRe.MatchString(s)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// parseTimestamp tries, in order: the string as port-local time when it
// carries no explicit offset, the string as UTC, then anything the
// remaining layouts accept.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if !hasExplicitOffset(s) {
		for _, layout := range plainLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
		for _, layout := range isoLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, true
			}
		}
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range append(plainLayouts, isoLayouts...) {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EtaTimestamp returns the canonical ETA in epoch milliseconds. A finite
// numeric epoch-seconds field wins over the raw string.
func EtaTimestamp(r Record, loc *time.Location) (int64, bool) {
	if r.EtaTs != nil && isFinite(*r.EtaTs) && *r.EtaTs > 0 {
		return int64(*r.EtaTs * 1000), true
	}
	t, ok := parseTimestamp(r.EtaRaw, loc)
	if !ok {
		return 0, false
	}
	return t.UnixMilli(), true
}

// LastUpdateTimestamp returns the canonical last-report time in epoch
// milliseconds. The free-text field sometimes uses a "T" separator, which
// is normalized to a space before parsing.
func LastUpdateTimestamp(r Record, loc *time.Location) (int64, bool) {
	if r.LastUpdateTs != nil && isFinite(*r.LastUpdateTs) && *r.LastUpdateTs > 0 {
		return int64(*r.LastUpdateTs * 1000), true
	}
	raw := strings.ReplaceAll(strings.TrimSpace(r.LastUpdateRaw), "T", " ")
	t, ok := parseTimestamp(raw, loc)
	if !ok {
		return 0, false
	}
	return t.UnixMilli(), true
}

// Draught canonicalizes the draught field, which the feed delivers as a
// number or a numeric string. Non-finite and unparseable values are rejected.
func Draught(v any) (decimal.Decimal, bool) {
	switch d := v.(type) {
	case nil:
		return decimal.Decimal{}, false
	case float64:
		if !isFinite(d) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(d), true
	case float32:
		return Draught(float64(d))
	case int:
		return decimal.NewFromInt(int64(d)), true
	case int64:
		return decimal.NewFromInt(d), true
	case json.Number:
		parsed, err := decimal.NewFromString(d.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return parsed, true
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return decimal.Decimal{}, false
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return parsed, true
	default:
		return decimal.Decimal{}, false
	}
}

// PrevPortOrUnknown picks the previous-port value for comparison, falling
// back between the two source fields and finally the literal placeholder.
func PrevPortOrUnknown(r Record) string {
	if s := strings.TrimSpace(r.PrevPortName); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.PrevPort); s != "" {
		return s
	}
	return UnknownPort
}

// RelativeAge renders a coarse human label for an elapsed duration.
func RelativeAge(age time.Duration) string {
	if age < 0 {
		age = 0
	}
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		m := int(age / time.Minute)
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case age < 24*time.Hour:
		h := int(age / time.Hour)
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		d := int(age / (24 * time.Hour))
		if d == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", d)
	}
}
