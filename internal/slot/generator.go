package slot

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/timeutil"
)

// Window is one contiguous working period of a day, in minutes since midnight.
type Window struct {
	StartMin int
	EndMin   int
}

func (w Window) String() string {
	return timeutil.FromMinutes(w.StartMin) + "-" + timeutil.FromMinutes(w.EndMin)
}

// ParseWindows parses a window spec like "09:00-12:00,13:00-17:00".
func ParseWindows(spec string) ([]Window, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("empty window spec")
	}

	var windows []Window
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		bounds := strings.Split(part, "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid window %q: want HH:MM-HH:MM", part)
		}
		start, err := timeutil.ToMinutes(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid window %q: %w", part, err)
		}
		end, err := timeutil.ToMinutes(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid window %q: %w", part, err)
		}
		if end <= start {
			return nil, fmt.Errorf("invalid window %q: end not after start", part)
		}
		windows = append(windows, Window{StartMin: start, EndMin: end})
	}
	return windows, nil
}

// CandidateIntervals emits consecutive [start, end) pairs of durationMin
// length inside the window. An interval is only emitted when it fits entirely
// before the window end.
func CandidateIntervals(w Window, durationMin int) [][2]int {
	var intervals [][2]int
	for start := w.StartMin; start+durationMin <= w.EndMin; start += durationMin {
		intervals = append(intervals, [2]int{start, start + durationMin})
	}
	return intervals
}

// BuildDaySlots produces the fresh available slots for one doctor/day given
// the slots that survive regeneration (the booked ones). A candidate interval
// is dropped when it overlaps a booked slot; booked slots themselves are never
// modified here.
func BuildDaySlots(doctorID uuid.UUID, day time.Time, windows []Window, durationMin int, booked []TimeSlot) []TimeSlot {
	day = timeutil.TruncateToDay(day)

	var out []TimeSlot
	for _, w := range windows {
		for _, iv := range CandidateIntervals(w, durationMin) {
			if overlapsAny(booked, iv[0], iv[1]) {
				continue
			}
			out = append(out, TimeSlot{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				Date:      day,
				StartTime: timeutil.FromMinutes(iv[0]),
				EndTime:   timeutil.FromMinutes(iv[1]),
				Status:    StatusAvailable,
			})
		}
	}
	return out
}

func overlapsAny(slots []TimeSlot, startMin, endMin int) bool {
	for i := range slots {
		if slots[i].OverlapsInterval(startMin, endMin) {
			return true
		}
	}
	return false
}

// DaysBetween lists each calendar day of [from, to] inclusive.
func DaysBetween(from, to time.Time) []time.Time {
	from = timeutil.TruncateToDay(from)
	to = timeutil.TruncateToDay(to)

	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
