package store

import (
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
)

// marshalNormalized renders v as jsonb after the recursive date rewrite:
// the value is marshaled, decoded back to plain maps/slices, run through
// dates.Normalize, and re-encoded. Nil values bind as SQL NULL.
func marshalNormalized(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode payload for normalization: %w", err)
	}
	normalized, err := json.Marshal(dates.Normalize(decoded))
	if err != nil {
		return nil, fmt.Errorf("re-marshal normalized payload: %w", err)
	}
	return normalized, nil
}

// rawNormalized normalizes a pre-encoded json.RawMessage the same way.
func rawNormalized(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Not JSON; store as a JSON string so jsonb accepts it.
		return json.Marshal(string(raw))
	}
	return json.Marshal(dates.Normalize(decoded))
}

// scanJSON decodes a nullable jsonb column into dst. A NULL column leaves
// dst untouched.
func scanJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// nullTime binds an optional timestamp, pinned to the pipeline zone.
func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return dates.InPipelineZone(*t)
}

// nullDate binds an optional calendar date.
func nullDate(d *dates.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Time()
}

// nullUUID binds an optional identifier.
func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

// scanTimePtr converts a nullable timestamp column into the pipeline zone.
func scanTimePtr(t stdsql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := dates.InPipelineZone(t.Time)
	return &v
}

// scanDatePtr converts a nullable date column.
func scanDatePtr(t stdsql.NullTime) *dates.Date {
	if !t.Valid {
		return nil
	}
	d := dates.DateOf(t.Time)
	return &d
}

// scanUUIDPtr parses a nullable uuid column.
func scanUUIDPtr(s stdsql.NullString) *uuid.UUID {
	if !s.Valid || s.String == "" {
		return nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil
	}
	return &id
}
