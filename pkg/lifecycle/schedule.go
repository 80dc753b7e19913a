package lifecycle

import (
	"strings"

	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

// UpdateType classifies what kind of check a claim needs today.
type UpdateType int

const (
	// NoUpdate means today is not a scheduled check date.
	NoUpdate UpdateType = iota
	// RegularInterval is an intermediate cadence check-in.
	RegularInterval
	// Endpoint is the final check at or past the completion date.
	Endpoint
)

// Schedule returns the full planned follow-up dates for a claim window.
// Cadence depends on the span between start and end:
//   - more than 90 days: every 30 days after start, strictly before end,
//     then the endpoint; a penultimate entry within 5 days of the end is
//     dropped when the schedule has more than two entries
//   - 15 to 90 days: the midpoint (when before end), then the endpoint
//   - 14 days or fewer: the endpoint only
func Schedule(start, end dates.Date) []dates.Date {
	span := start.DaysUntil(end)
	var out []dates.Date
	switch {
	case span > 90:
		step := start.AddDays(30)
		for step.Before(end) {
			out = append(out, step)
			step = step.AddDays(30)
		}
		out = append(out, end)
		if len(out) > 2 && out[len(out)-2].DaysUntil(end) < 5 {
			out = append(out[:len(out)-2], end)
		}
	case span <= 14:
		out = append(out, end)
	default:
		mid := start.AddDays(span / 2)
		if mid.Before(end) {
			out = append(out, mid)
		}
		out = append(out, end)
	}
	return out
}

// Classify determines whether a promise needs a check today. Claims without
// a resolved completion date are never due; the chump check demotes those to
// goals before classification runs.
func Classify(c *models.Claim, today dates.Date) UpdateType {
	if c.CompletionConditionDate == nil {
		return NoUpdate
	}
	end := *c.CompletionConditionDate
	if !today.Before(end) {
		return Endpoint
	}
	span := c.ArticleDate.DaysUntil(end)
	switch {
	case span > 90:
		d := c.ArticleDate.AddDays(30)
		for d.Before(today) {
			d = d.AddDays(30)
		}
		if d.Equal(today) {
			return RegularInterval
		}
		return NoUpdate
	case span <= 14:
		// today < end here, so the endpoint has not arrived yet.
		return NoUpdate
	default:
		if c.ArticleDate.AddDays(span / 2).Equal(today) {
			return RegularInterval
		}
		return NoUpdate
	}
}

// ClassifyVerdict maps free-form model text onto a verdict when structured
// parsing produced nothing.
func ClassifyVerdict(text string) string {
	t := strings.ToLower(text)
	for _, k := range []string{"complete", "fulfilled", "succeeded", "met"} {
		if strings.Contains(t, k) {
			return "complete"
		}
	}
	for _, k := range []string{"in progress", "in_progress", "progress", "ongoing"} {
		if strings.Contains(t, k) {
			return "in_progress"
		}
	}
	for _, k := range []string{"fail", "failed", "not met", "not fulfilled", "did not"} {
		if strings.Contains(t, k) {
			return "failed"
		}
	}
	return "in_progress"
}

// terminalVerdict reports whether a verdict ends a promise's lifecycle.
func terminalVerdict(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "false", "complete", "failed":
		return true
	}
	return false
}
