package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/db"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	// ErrDuplicateSlot is returned when an insert trips the unique index on
	// (doctor_id, date, start_time). It makes a lost overlap race fail loudly
	// instead of silently double-booking.
	ErrDuplicateSlot = errors.New("slot already exists at this start time")
	// ErrStatusChanged is returned by the compare-and-swap status update when
	// the slot is no longer in the expected state.
	ErrStatusChanged = errors.New("slot status changed concurrently")
)

// Store is the persistence contract for time slots. With rebinds the store to
// a transaction; all other methods run against whatever the store is bound to.
type Store interface {
	With(q db.Querier) Store

	GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	// ListByDoctor returns all slots for the doctor with date in [from, to],
	// ordered by date then start time.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error)
	ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]TimeSlot, error)

	Insert(ctx context.Context, s *TimeSlot) error
	Update(ctx context.Context, s *TimeSlot) error
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteUnbookedForDay removes every non-booked slot of the doctor's day,
	// returning how many went away. Booked slots are never touched.
	DeleteUnbookedForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) (int64, error)

	// UpdateStatus flips status only when the slot is currently in the from
	// state, returning ErrStatusChanged otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*TimeSlot, error)
	SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error
}
