package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/internal/timeutil"
)

const appointmentColumns = `id, patient_id, doctor_id, time_slot_id, date, start_time, end_time, starts_at,
	type, status, reason_for_visit, notes, preliminary_assessment_id, is_virtual, video_conference_link,
	cancelled_at, cancel_reason, reminders_sent, created_at, updated_at`

type PgStore struct {
	q db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

func (s *PgStore) With(q db.Querier) Store {
	return &PgStore{q: q}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reminders []byte

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.TimeSlotID,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.StartsAt,
		&a.Type,
		&a.Status,
		&a.ReasonForVisit,
		&a.Notes,
		&a.PreliminaryAssessmentID,
		&a.IsVirtual,
		&a.VideoConferenceLink,
		&a.CancelledAt,
		&a.CancelReason,
		&reminders,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = timeutil.TruncateToDay(a.Date)
	if len(reminders) > 0 {
		if err := json.Unmarshal(reminders, &a.RemindersSent); err != nil {
			return nil, fmt.Errorf("decode reminders_sent: %w", err)
		}
	}
	return &a, nil
}

func marshalReminders(recs []ReminderRecord) ([]byte, error) {
	if recs == nil {
		recs = []ReminderRecord{}
	}
	return json.Marshal(recs)
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date >= $2
		  AND date <= $3
		ORDER BY date, start_time
	`, doctorID, timeutil.TruncateToDay(from), timeutil.TruncateToDay(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *PgStore) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY starts_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	reminders, err := marshalReminders(a.RemindersSent)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, time_slot_id, date, start_time, end_time, starts_at,
			type, status, reason_for_visit, notes, preliminary_assessment_id, is_virtual, video_conference_link,
			cancelled_at, cancel_reason, reminders_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now(), now())
	`, a.ID, a.PatientID, a.DoctorID, a.TimeSlotID, timeutil.TruncateToDay(a.Date), a.StartTime, a.EndTime, a.StartsAt,
		a.Type, a.Status, a.ReasonForVisit, a.Notes, a.PreliminaryAssessmentID, a.IsVirtual, a.VideoConferenceLink,
		a.CancelledAt, a.CancelReason, reminders)
	return err
}

func (s *PgStore) Update(ctx context.Context, a *Appointment) error {
	reminders, err := marshalReminders(a.RemindersSent)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE appointments
		SET time_slot_id = $2,
		    date = $3,
		    start_time = $4,
		    end_time = $5,
		    starts_at = $6,
		    type = $7,
		    status = $8,
		    reason_for_visit = $9,
		    notes = $10,
		    is_virtual = $11,
		    video_conference_link = $12,
		    cancelled_at = $13,
		    cancel_reason = $14,
		    reminders_sent = $15,
		    updated_at = now()
		WHERE id = $1
	`, a.ID, a.TimeSlotID, timeutil.TruncateToDay(a.Date), a.StartTime, a.EndTime, a.StartsAt,
		a.Type, a.Status, a.ReasonForVisit, a.Notes, a.IsVirtual, a.VideoConferenceLink,
		a.CancelledAt, a.CancelReason, reminders)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PgStore) FindRemindersDue(ctx context.Context, now time.Time, window time.Duration) ([]Appointment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND starts_at > $1
		  AND starts_at <= $2
		  AND reminders_sent = '[]'::jsonb
		ORDER BY starts_at
	`, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *PgStore) FindNoShowCandidates(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND starts_at < $1
		ORDER BY starts_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *PgStore) AppendReminder(ctx context.Context, id uuid.UUID, rec ReminderRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE appointments
		SET reminders_sent = reminders_sent || $2::jsonb,
		    updated_at = now()
		WHERE id = $1
	`, id, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
