package slot

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindows(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []Window
		wantErr bool
	}{
		{
			name: "default windows",
			spec: "09:00-12:00,13:00-17:00",
			want: []Window{{StartMin: 540, EndMin: 720}, {StartMin: 780, EndMin: 1020}},
		},
		{
			name: "single window with spaces",
			spec: " 08:30-11:00 ",
			want: []Window{{StartMin: 510, EndMin: 660}},
		},
		{name: "empty", spec: "", wantErr: true},
		{name: "missing dash", spec: "09:00", wantErr: true},
		{name: "end before start", spec: "12:00-09:00", wantErr: true},
		{name: "zero length", spec: "09:00-09:00", wantErr: true},
		{name: "bad time", spec: "9am-12pm", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindows(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCandidateIntervals(t *testing.T) {
	t.Run("twenty minute slots in a three hour window", func(t *testing.T) {
		// 09:00-12:00 at 20 min is exactly 9 slots, no remainder.
		got := CandidateIntervals(Window{StartMin: 540, EndMin: 720}, 20)
		require.Len(t, got, 9)
		assert.Equal(t, [2]int{540, 560}, got[0])
		assert.Equal(t, [2]int{700, 720}, got[8])
	})

	t.Run("partial slot at the end is dropped", func(t *testing.T) {
		// 09:00-10:10 at 30 min fits twice; the trailing 10 min is unusable.
		got := CandidateIntervals(Window{StartMin: 540, EndMin: 610}, 30)
		require.Len(t, got, 2)
		assert.Equal(t, [2]int{570, 600}, got[1])
	})

	t.Run("window shorter than duration yields nothing", func(t *testing.T) {
		assert.Empty(t, CandidateIntervals(Window{StartMin: 540, EndMin: 555}, 30))
	})
}

func TestBuildDaySlots(t *testing.T) {
	doctorID := uuid.New()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	windows := []Window{{StartMin: 540, EndMin: 720}, {StartMin: 780, EndMin: 1020}}

	t.Run("full day without bookings", func(t *testing.T) {
		got := BuildDaySlots(doctorID, day, windows, 30, nil)
		require.Len(t, got, 14) // 6 in the morning, 8 in the afternoon
		first := got[0]
		assert.Equal(t, "09:00", first.StartTime)
		assert.Equal(t, "09:30", first.EndTime)
		assert.Equal(t, StatusAvailable, first.Status)
		assert.Equal(t, day, first.Date)
		last := got[len(got)-1]
		assert.Equal(t, "16:30", last.StartTime)
		assert.Equal(t, "17:00", last.EndTime)
	})

	t.Run("candidates overlapping booked slots are skipped", func(t *testing.T) {
		booked := []TimeSlot{
			{DoctorID: doctorID, Date: day, StartTime: "09:15", EndTime: "10:15", Status: StatusBooked},
		}
		got := BuildDaySlots(doctorID, day, windows, 30, booked)
		// 09:00, 09:30 and 10:00 all touch the booked interval.
		for _, s := range got {
			assert.False(t, s.OverlapsInterval(555, 615), "slot %s-%s overlaps booked interval", s.StartTime, s.EndTime)
		}
		require.Len(t, got, 11)
		assert.Equal(t, "10:30", got[0].StartTime)
	})

	t.Run("back to back booked slot does not block neighbors", func(t *testing.T) {
		booked := []TimeSlot{
			{DoctorID: doctorID, Date: day, StartTime: "09:30", EndTime: "10:00", Status: StatusBooked},
		}
		got := BuildDaySlots(doctorID, day, windows, 30, booked)
		require.Len(t, got, 13)
		assert.Equal(t, "09:00", got[0].StartTime)
		assert.Equal(t, "10:00", got[1].StartTime)
	})
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2026, 9, 7, 10, 30, 0, 0, time.UTC)
	to := time.Date(2026, 9, 9, 2, 0, 0, 0, time.UTC)

	days := DaysBetween(from, to)
	require.Len(t, days, 3)
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC), days[2])

	assert.Len(t, DaysBetween(from, from), 1)
	assert.Empty(t, DaysBetween(to, from))
}
