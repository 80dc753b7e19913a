// Package dates implements the pipeline's date algebra: the fixed UTC-5
// pipeline clock, calendar dates, delta resolution, and the recursive
// normalizer applied to every payload written to the store.
package dates

import (
	"os"
	"time"
)

// PipelineRunDateEnv overrides the pipeline date when set (YYYY-MM-DD).
const PipelineRunDateEnv = "PIPELINE_RUN_DATE"

// pipelineZone is a fixed UTC-5 offset. It intentionally does not observe
// daylight saving time; every persisted datetime carries exactly -05:00.
var pipelineZone = time.FixedZone("UTC-05:00", -5*60*60)

// Zone returns the fixed pipeline time zone.
func Zone() *time.Location {
	return pipelineZone
}

// Now returns the current time in the fixed pipeline zone.
func Now() time.Time {
	return time.Now().In(pipelineZone)
}

// InPipelineZone converts t to the fixed pipeline zone. The zero time is
// returned unchanged so optional timestamps survive round trips.
func InPipelineZone(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(pipelineZone)
}

// Today returns the current calendar date in the fixed pipeline zone.
func Today() Date {
	return DateOf(Now())
}

// PipelineToday resolves the pipeline "today": the PIPELINE_RUN_DATE override
// when set and parseable, otherwise today in the fixed pipeline zone.
func PipelineToday() Date {
	if v := os.Getenv(PipelineRunDateEnv); v != "" {
		if d, err := ParseDate(v); err == nil {
			return d
		}
	}
	return Today()
}

// PipelineYesterday returns the day before pipeline "today".
func PipelineYesterday() Date {
	return PipelineToday().AddDays(-1)
}
