// Package directory resolves the people the scheduler works with: doctors,
// patients, and the users behind them. It is a read-only collaborator; account
// management lives elsewhere.
package directory

import (
	"time"

	"github.com/google/uuid"
)

type Doctor struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     string
	Specialty *string
	// SlotWindows overrides the configured default windows when set,
	// e.g. "08:00-11:00,14:00-18:00".
	SlotWindows *string
	// CalendarCredential is the opaque refresh credential for the doctor's
	// external calendar, if linked.
	CalendarCredential *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
