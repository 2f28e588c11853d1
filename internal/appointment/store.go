package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/db"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Store is the persistence contract for appointments. With rebinds the store
// to a transaction.
type Store interface {
	With(q db.Querier) Store

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	Insert(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error

	// FindRemindersDue returns scheduled appointments starting in
	// (now, now+window] that have no reminder entries yet.
	FindRemindersDue(ctx context.Context, now time.Time, window time.Duration) ([]Appointment, error)
	// FindNoShowCandidates returns scheduled appointments whose start passed
	// before cutoff.
	FindNoShowCandidates(ctx context.Context, cutoff time.Time) ([]Appointment, error)
	AppendReminder(ctx context.Context, id uuid.UUID, rec ReminderRecord) error
}
