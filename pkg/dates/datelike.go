package dates

import (
	"strings"
	"time"
)

// Delta is a relative date specification as emitted by extraction models:
// an optional anchor plus day/week/month/year offsets. Day and week offsets
// shift by duration; month and year offsets shift calendar components, which
// matches the human reading of "in 3 months".
type Delta struct {
	FromDate *Date `json:"from_date,omitempty"`
	Days     int   `json:"days_delta,omitempty"`
	Weeks    int   `json:"weeks_delta,omitempty"`
	Months   int   `json:"months_delta,omitempty"`
	Years    int   `json:"years_delta,omitempty"`
}

// Resolve computes the absolute date, anchoring at FromDate when present and
// at anchor otherwise.
func (dl Delta) Resolve(anchor Date) Date {
	d := anchor
	if dl.FromDate != nil {
		d = *dl.FromDate
	}
	if dl.Days != 0 {
		d = d.AddDays(dl.Days)
	}
	if dl.Weeks != 0 {
		d = d.AddDays(7 * dl.Weeks)
	}
	if dl.Months != 0 {
		d = d.AddMonths(dl.Months)
	}
	if dl.Years != 0 {
		d = d.AddYears(dl.Years)
	}
	return d
}

// DateLike is the runtime-tagged union accepted wherever models may answer
// with an absolute date, a delta, or nothing.
type DateLike struct {
	Absolute *Date
	Delta    *Delta
}

// IsNull reports whether no date information is present.
func (dl DateLike) IsNull() bool {
	return dl.Absolute == nil && dl.Delta == nil
}

// Resolve collapses the union to an absolute date. The second return is
// false for the null branch.
func (dl DateLike) Resolve(anchor Date) (Date, bool) {
	switch {
	case dl.Absolute != nil:
		return *dl.Absolute, true
	case dl.Delta != nil:
		return dl.Delta.Resolve(anchor), true
	default:
		return Date{}, false
	}
}

// ParseDateLike classifies an incoming date-like value. Precedence:
// already-a-date, ISO date string, ISO datetime string, delta map, null.
func ParseDateLike(v any) DateLike {
	switch val := v.(type) {
	case nil:
		return DateLike{}
	case Date:
		return DateLike{Absolute: &val}
	case *Date:
		if val == nil {
			return DateLike{}
		}
		d := *val
		return DateLike{Absolute: &d}
	case time.Time:
		d := DateOf(val)
		return DateLike{Absolute: &d}
	case string:
		if d, err := ParseDate(val); err == nil {
			return DateLike{Absolute: &d}
		}
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			d := DateOf(t)
			return DateLike{Absolute: &d}
		}
		return DateLike{}
	case Delta:
		dl := val
		return DateLike{Delta: &dl}
	case *Delta:
		if val == nil {
			return DateLike{}
		}
		dl := *val
		return DateLike{Delta: &dl}
	case map[string]any:
		if dl, ok := deltaFromMap(val); ok {
			return DateLike{Delta: &dl}
		}
		return DateLike{}
	default:
		return DateLike{}
	}
}

func deltaFromMap(m map[string]any) (Delta, bool) {
	var dl Delta
	found := false
	if raw, ok := m["from_date"]; ok {
		if s, ok := raw.(string); ok {
			if d, err := ParseDate(s); err == nil {
				dl.FromDate = &d
				found = true
			}
		}
	}
	read := func(key string, dst *int) {
		raw, ok := m[key]
		if !ok || raw == nil {
			return
		}
		switch n := raw.(type) {
		case float64:
			*dst = int(n)
			found = true
		case int:
			*dst = n
			found = true
		}
	}
	read("days_delta", &dl.Days)
	read("weeks_delta", &dl.Weeks)
	read("months_delta", &dl.Months)
	read("years_delta", &dl.Years)
	return dl, found
}

// coerceLayouts are the loose formats accepted for model-proposed follow-up
// dates, tried after ISO date and ISO datetime.
var coerceLayouts = []string{"January 2, 2006", "2006-01-02", "01/02/2006"}

// CoerceDate parses a model-proposed date string leniently. It accepts ISO
// dates, ISO datetimes (including a trailing Z), and the layouts models tend
// to answer with. Returns false when nothing parses.
func CoerceDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	if d, err := ParseDate(s); err == nil {
		return d, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), true
	}
	for _, layout := range coerceLayouts {
		if t, err := time.ParseInLocation(layout, s, pipelineZone); err == nil {
			return DateOf(t), true
		}
	}
	return Date{}, false
}
