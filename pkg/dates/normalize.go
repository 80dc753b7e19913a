package dates

import "time"

// Normalize recursively rewrites date-bearing values in a JSON-shaped payload
// so that everything persisted is either an ISO calendar date or an ISO
// datetime carrying the fixed -05:00 offset. Deltas are resolved against the
// pipeline "today". RFC 3339 strings are re-rendered in the pipeline zone;
// all other strings pass through untouched, which makes the rewrite
// idempotent.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		if val.IsZero() {
			return nil
		}
		return InPipelineZone(val).Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return Normalize(*val)
	case string:
		if ts, err := time.Parse(time.RFC3339, val); err == nil {
			return InPipelineZone(ts).Format(time.RFC3339)
		}
		return val
	case Date:
		if val.IsZero() {
			return nil
		}
		return val.String()
	case *Date:
		if val == nil {
			return nil
		}
		return Normalize(*val)
	case Delta:
		return val.Resolve(PipelineToday()).String()
	case *Delta:
		if val == nil {
			return nil
		}
		return Normalize(*val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	default:
		return v
	}
}
