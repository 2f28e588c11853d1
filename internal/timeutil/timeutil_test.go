package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinutes(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:00", 540, false},
		{"13:30", 810, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"09:60", 0, true},
		{"-1:00", 0, true},
		{"0900", 0, true},
		{"9", 0, true},
		{"aa:bb", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToMinutes(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromMinutesRoundTrip(t *testing.T) {
	for _, s := range []string{"00:00", "09:05", "16:45", "23:59"} {
		m, err := ToMinutes(s)
		require.NoError(t, err)
		assert.Equal(t, s, FromMinutes(m))
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd int
		want                       bool
	}{
		{"disjoint before", 540, 570, 600, 630, false},
		{"disjoint after", 600, 630, 540, 570, false},
		{"touching endpoints is not overlap", 540, 570, 570, 600, false},
		{"touching endpoints reversed", 570, 600, 540, 570, false},
		{"b starts inside a", 540, 600, 570, 630, true},
		{"b ends inside a", 540, 600, 510, 570, true},
		{"a contains b", 540, 660, 570, 600, true},
		{"b contains a", 570, 600, 540, 660, true},
		{"identical", 540, 600, 540, 600, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			// Overlap is symmetric.
			assert.Equal(t, tt.want, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd))
		})
	}
}

func TestTruncateToDay(t *testing.T) {
	loc := time.FixedZone("plus7", 7*3600)
	in := time.Date(2026, 3, 14, 2, 30, 0, 0, loc) // 2026-03-13T19:30Z
	got := TruncateToDay(in)
	assert.Equal(t, time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), got)

	assert.True(t, SameDay(got, got.Add(23*time.Hour)))
	assert.False(t, SameDay(got, got.Add(25*time.Hour)))
}
