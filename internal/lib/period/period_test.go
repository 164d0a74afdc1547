package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestElapsed(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		now   time.Time
		want  int
	}{
		{
			name:  "inside first period",
			start: date(2025, time.January, 15),
			now:   date(2025, time.February, 1),
			want:  0,
		},
		{
			name:  "exactly one period",
			start: date(2025, time.January, 15),
			now:   date(2025, time.February, 15),
			want:  1,
		},
		{
			name:  "missed runs accumulate",
			start: date(2025, time.January, 15),
			now:   date(2025, time.April, 20),
			want:  3,
		},
		{
			name:  "now before start",
			start: date(2025, time.March, 1),
			now:   date(2025, time.January, 1),
			want:  0,
		},
		{
			name:  "end of month anchor",
			start: date(2025, time.January, 31),
			now:   date(2025, time.March, 3),
			want:  1,
		},
		{
			name:  "full year",
			start: date(2024, time.June, 1),
			now:   date(2025, time.June, 1),
			want:  12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Elapsed(tt.start, tt.now))
		})
	}
}

func TestAdvance(t *testing.T) {
	start := date(2025, time.January, 15)
	assert.Equal(t, date(2025, time.April, 15), Advance(start, 3))
	assert.Equal(t, start, Advance(start, 0))
}

func TestAdvanceMatchesElapsed(t *testing.T) {
	// Advancing by Elapsed must never overshoot now.
	start := date(2025, time.January, 31)
	now := date(2025, time.July, 10)
	n := Elapsed(start, now)
	assert.False(t, Advance(start, n).After(now))
	assert.True(t, Advance(start, n+1).After(now))
}
