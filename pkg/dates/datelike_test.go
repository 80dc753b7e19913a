package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2025, time.January, 1)

	assert.Equal(t, NewDate(2025, time.January, 31), d.AddDays(30))
	assert.Equal(t, 9, d.DaysUntil(NewDate(2025, time.January, 10)))
	assert.Equal(t, -1, d.DaysUntil(NewDate(2024, time.December, 31)))
	assert.True(t, d.Before(NewDate(2025, time.January, 2)))
	assert.True(t, NewDate(2025, time.January, 2).After(d))
}

func TestAddMonthsReplacesComponent(t *testing.T) {
	// "In 3 months" from Jan 15 is Apr 15 regardless of month lengths.
	assert.Equal(t, NewDate(2025, time.April, 15), NewDate(2025, time.January, 15).AddMonths(3))
	// Overflowing days normalize forward, matching time.AddDate.
	assert.Equal(t, NewDate(2025, time.March, 3), NewDate(2025, time.January, 31).AddMonths(1))
	// Year boundaries roll over.
	assert.Equal(t, NewDate(2026, time.February, 10), NewDate(2025, time.November, 10).AddMonths(3))
}

func TestDeltaResolve(t *testing.T) {
	anchor := NewDate(2025, time.June, 1)
	from := NewDate(2025, time.March, 10)

	tests := []struct {
		name  string
		delta Delta
		want  Date
	}{
		{name: "days by duration", delta: Delta{Days: 90}, want: NewDate(2025, time.August, 30)},
		{name: "weeks by duration", delta: Delta{Weeks: 2}, want: NewDate(2025, time.June, 15)},
		{name: "months by component", delta: Delta{Months: 3}, want: NewDate(2025, time.September, 1)},
		{name: "years by component", delta: Delta{Years: 1}, want: NewDate(2026, time.June, 1)},
		{name: "explicit anchor wins", delta: Delta{FromDate: &from, Days: 5}, want: NewDate(2025, time.March, 15)},
		{name: "combined offsets", delta: Delta{Days: 1, Months: 1}, want: NewDate(2025, time.July, 2)},
		{name: "empty delta is the anchor", delta: Delta{}, want: anchor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.delta.Resolve(anchor))
		})
	}
}

func TestParseDateLikePrecedence(t *testing.T) {
	anchor := NewDate(2025, time.June, 1)

	tests := []struct {
		name    string
		input   any
		want    Date
		wantNil bool
	}{
		{name: "already a date", input: NewDate(2025, time.July, 4), want: NewDate(2025, time.July, 4)},
		{name: "time truncates to date", input: time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC), want: NewDate(2025, time.July, 4)},
		{name: "iso date string", input: "2025-07-04", want: NewDate(2025, time.July, 4)},
		{name: "iso datetime string", input: "2025-07-04T12:30:00-05:00", want: NewDate(2025, time.July, 4)},
		{name: "delta map", input: map[string]any{"days_delta": float64(10)}, want: NewDate(2025, time.June, 11)},
		{name: "delta map with anchor", input: map[string]any{"from_date": "2025-01-01", "months_delta": float64(2)}, want: NewDate(2025, time.March, 1)},
		{name: "nil", input: nil, wantNil: true},
		{name: "garbage string", input: "soon", wantNil: true},
		{name: "unrelated map", input: map[string]any{"foo": "bar"}, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dl := ParseDateLike(tt.input)
			if tt.wantNil {
				assert.True(t, dl.IsNull())
				_, ok := dl.Resolve(anchor)
				assert.False(t, ok)
				return
			}
			got, ok := dl.Resolve(anchor)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceDate(t *testing.T) {
	tests := []struct {
		input string
		want  Date
		ok    bool
	}{
		{input: "2025-08-30", want: NewDate(2025, time.August, 30), ok: true},
		{input: "2025-08-30T00:00:00Z", want: NewDate(2025, time.August, 29), ok: true}, // midnight UTC is the prior evening in UTC-5
		{input: "August 30, 2025", want: NewDate(2025, time.August, 30), ok: true},
		{input: "08/30/2025", want: NewDate(2025, time.August, 30), ok: true},
		{input: "  2025-08-30  ", want: NewDate(2025, time.August, 30), ok: true},
		{input: "sometime next quarter", ok: false},
		{input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := CoerceDate(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2025, time.August, 30)
	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2025-08-30"`, string(data))

	var back Date
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, d.Equal(back))
}
