package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusCheckedIn  Status = "checked-in"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no-show"
)

// legalTransitions is the full status state machine. Absent pairs are illegal;
// completed, cancelled and no-show are terminal.
var legalTransitions = map[Status][]Status{
	StatusScheduled:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s Status) bool {
	_, ok := legalTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Type string

const (
	TypeInPerson Type = "in-person"
	TypeVirtual  Type = "virtual"
)

// ReminderRecord logs one reminder dispatch attempt.
type ReminderRecord struct {
	Type   string    `json:"type"` // "email", "in-app"
	SentAt time.Time `json:"sentAt"`
}

// Appointment occupies exactly one time slot. Date and times are copied from
// the slot at booking so the appointment stays stable even if slots are later
// regenerated around it.
type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	TimeSlotID uuid.UUID

	Date      time.Time // slot's calendar day, midnight UTC
	StartTime string    // "HH:MM"
	EndTime   string    // "HH:MM"
	// StartsAt is the absolute start instant, kept alongside the lexical
	// fields so reminder and no-show sweeps can range-scan it.
	StartsAt time.Time

	Type           Type
	Status         Status
	ReasonForVisit string
	Notes          string

	PreliminaryAssessmentID *uuid.UUID

	IsVirtual bool
	// VideoConferenceLink is set iff IsVirtual.
	VideoConferenceLink *string

	CancelledAt  *time.Time
	CancelReason *string

	RemindersSent []ReminderRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}
