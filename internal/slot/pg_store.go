package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/internal/timeutil"
)

const slotColumns = `id, doctor_id, date, start_time, end_time, status, external_event_id, created_at, updated_at`

type PgStore struct {
	q db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

func (s *PgStore) With(q db.Querier) Store {
	return &PgStore{q: q}
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var t TimeSlot

	err := row.Scan(
		&t.ID,
		&t.DoctorID,
		&t.Date,
		&t.StartTime,
		&t.EndTime,
		&t.Status,
		&t.ExternalEventID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	t.Date = timeutil.TruncateToDay(t.Date)
	return &t, nil
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (s *PgStore) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1
		  AND date >= $2
		  AND date <= $3
		ORDER BY date, start_time
	`, doctorID, timeutil.TruncateToDay(from), timeutil.TruncateToDay(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func (s *PgStore) ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]TimeSlot, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1
		  AND date = $2
		ORDER BY start_time
	`, doctorID, timeutil.TruncateToDay(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]TimeSlot, error) {
	var result []TimeSlot
	for rows.Next() {
		t, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) Insert(ctx context.Context, t *TimeSlot) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO time_slots (id, doctor_id, date, start_time, end_time, status, external_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, t.ID, t.DoctorID, timeutil.TruncateToDay(t.Date), t.StartTime, t.EndTime, t.Status, t.ExternalEventID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlot
		}
		return err
	}
	return nil
}

func (s *PgStore) Update(ctx context.Context, t *TimeSlot) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE time_slots
		SET date = $2,
		    start_time = $3,
		    end_time = $4,
		    status = $5,
		    external_event_id = $6,
		    updated_at = now()
		WHERE id = $1
	`, t.ID, timeutil.TruncateToDay(t.Date), t.StartTime, t.EndTime, t.Status, t.ExternalEventID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlot
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM time_slots
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (s *PgStore) DeleteUnbookedForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM time_slots
		WHERE doctor_id = $1
		  AND date = $2
		  AND status <> 'booked'
	`, doctorID, timeutil.TruncateToDay(day))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*TimeSlot, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE time_slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+slotColumns+`
	`, id, to, from)

	t, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrStatusChanged
		}
		return nil, err
	}
	return t, nil
}

func (s *PgStore) SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE time_slots
		SET external_event_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
