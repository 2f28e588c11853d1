package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Directory is the lookup contract consumed by the scheduling services.
type Directory interface {
	FindDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	FindPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
}
