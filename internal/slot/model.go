package slot

import (
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/timeutil"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusBlocked   Status = "blocked"
)

// ValidStatus reports whether s is a known slot status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusAvailable, StatusBooked, StatusBlocked:
		return true
	}
	return false
}

// TimeSlot is one bookable interval of a doctor's day. Start and end are
// lexical "HH:MM" on the slot's date; the date carries no time-of-day.
type TimeSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time // truncated to midnight UTC
	StartTime string    // "HH:MM"
	EndTime   string    // "HH:MM"
	Status    Status
	// ExternalEventID links the slot to the external calendar event it was
	// imported from or exported to.
	ExternalEventID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Minutes returns the slot interval as minutes since midnight.
func (s *TimeSlot) Minutes() (start, end int, err error) {
	start, err = timeutil.ToMinutes(s.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err = timeutil.ToMinutes(s.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// StartsAt resolves the slot's absolute start instant (UTC).
func (s *TimeSlot) StartsAt() time.Time {
	start, err := timeutil.ToMinutes(s.StartTime)
	if err != nil {
		return s.Date
	}
	return s.Date.Add(time.Duration(start) * time.Minute)
}

// OverlapsInterval reports whether the slot intersects [startMin, endMin).
// Slots with unparseable times never match.
func (s *TimeSlot) OverlapsInterval(startMin, endMin int) bool {
	a, b, err := s.Minutes()
	if err != nil {
		return false
	}
	return timeutil.Overlaps(a, b, startMin, endMin)
}
