package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caresync/scheduling/internal/db"
)

type PgDirectory struct {
	q db.Querier
}

func NewPgDirectory(q db.Querier) *PgDirectory {
	return &PgDirectory{q: q}
}

func (d *PgDirectory) FindDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := d.q.QueryRow(ctx, `
		SELECT id, user_id, name, email, specialty, slot_windows, calendar_credential, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)

	var doc Doctor
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Name,
		&doc.Email,
		&doc.Specialty,
		&doc.SlotWindows,
		&doc.CalendarCredential,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (d *PgDirectory) FindPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := d.q.QueryRow(ctx, `
		SELECT id, user_id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)

	var p Patient
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (d *PgDirectory) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := d.q.QueryRow(ctx, `
		SELECT id, name, email, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)

	var u User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
