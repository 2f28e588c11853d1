package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/audit"
	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/internal/directory"
	"github.com/caresync/scheduling/internal/errs"
	"github.com/caresync/scheduling/internal/notify"
	"github.com/caresync/scheduling/internal/observability/metrics"
	redisclient "github.com/caresync/scheduling/internal/redis"
	"github.com/caresync/scheduling/internal/slot"
	"github.com/caresync/scheduling/pkg/logging"
)

// Service drives the appointment lifecycle: booking against available slots,
// status transitions, rescheduling, and the reminder/no-show sweeps. Slot
// status flips and appointment writes always share one transaction.
type Service struct {
	runner  db.TxRunner
	appts   Store
	slots   slot.Store
	dir     directory.Directory
	locker  redisclient.Locker
	auditor audit.Recorder
	inApp   notify.Store
	mailer  *notify.Mailer
	logger  *logging.Logger
	metrics *metrics.SchedulingMetrics

	reminderWindow time.Duration
	noShowGrace    time.Duration
	now            func() time.Time
}

// ServiceConfig carries the sweep windows.
type ServiceConfig struct {
	ReminderWindow time.Duration // default 24h
	NoShowGrace    time.Duration // default 30m
}

func NewService(runner db.TxRunner, appts Store, slots slot.Store, dir directory.Directory, locker redisclient.Locker,
	auditor audit.Recorder, inApp notify.Store, mailer *notify.Mailer, logger *logging.Logger, m *metrics.SchedulingMetrics,
	cfg ServiceConfig) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = 24 * time.Hour
	}
	if cfg.NoShowGrace <= 0 {
		cfg.NoShowGrace = 30 * time.Minute
	}
	return &Service{
		runner:         runner,
		appts:          appts,
		slots:          slots,
		dir:            dir,
		locker:         locker,
		auditor:        auditor,
		inApp:          inApp,
		mailer:         mailer,
		logger:         logger,
		metrics:        m,
		reminderWindow: cfg.ReminderWindow,
		noShowGrace:    cfg.NoShowGrace,
		now:            time.Now,
	}
}

// CreateInput is the argument set for booking.
type CreateInput struct {
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	TimeSlotID uuid.UUID

	Type           Type
	ReasonForVisit string
	Notes          string
	IsVirtual      bool

	PreliminaryAssessmentID *uuid.UUID
}

// Create books the slot and creates the appointment in one transaction. The
// slot flip uses a compare-and-swap guarded by a per-slot lock, so two
// concurrent bookings cannot both pass the availability check. In-app
// notifications commit with the booking; email goes out after commit and its
// failure never unwinds the booking.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID uuid.UUID) (*Appointment, error) {
	if in.PatientID == uuid.Nil || in.DoctorID == uuid.Nil || in.TimeSlotID == uuid.Nil {
		return nil, errs.Validation("patient id, doctor id and time slot id are required")
	}
	if in.Type == "" {
		in.Type = TypeInPerson
		if in.IsVirtual {
			in.Type = TypeVirtual
		}
	}
	if in.Type != TypeInPerson && in.Type != TypeVirtual {
		return nil, errs.Validation("unknown appointment type %q", in.Type)
	}

	patient, err := s.findPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	doctor, err := s.findDoctor(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}

	sl, err := s.slots.GetByID(ctx, in.TimeSlotID)
	if err != nil {
		if errors.Is(err, slot.ErrSlotNotFound) {
			return nil, errs.NotFound("slot %s not found", in.TimeSlotID)
		}
		return nil, errs.Internal(err, "load slot")
	}
	if sl.DoctorID != in.DoctorID {
		return nil, errs.Validation("slot %s belongs to another doctor", in.TimeSlotID)
	}
	if sl.Status != slot.StatusAvailable {
		s.metrics.ObserveSlotConflict()
		return nil, errs.Conflict("slot %s-%s on %s is not available (status %s)",
			sl.StartTime, sl.EndTime, sl.Date.Format("2006-01-02"), sl.Status)
	}

	var created *Appointment
	err = s.locker.WithSlotLock(ctx, in.TimeSlotID, func(lockCtx context.Context) error {
		return s.runner.InTx(lockCtx, func(q db.Querier) error {
			booked, err := s.slots.With(q).UpdateStatus(lockCtx, in.TimeSlotID, slot.StatusAvailable, slot.StatusBooked)
			if err != nil {
				if errors.Is(err, slot.ErrStatusChanged) {
					s.metrics.ObserveSlotConflict()
					return errs.Conflict("slot %s was just booked by someone else", in.TimeSlotID)
				}
				return errs.Internal(err, "book slot")
			}

			appt := &Appointment{
				ID:                      uuid.New(),
				PatientID:               in.PatientID,
				DoctorID:                in.DoctorID,
				TimeSlotID:              booked.ID,
				Date:                    booked.Date,
				StartTime:               booked.StartTime,
				EndTime:                 booked.EndTime,
				StartsAt:                booked.StartsAt(),
				Type:                    in.Type,
				Status:                  StatusScheduled,
				ReasonForVisit:          in.ReasonForVisit,
				Notes:                   in.Notes,
				PreliminaryAssessmentID: in.PreliminaryAssessmentID,
				IsVirtual:               in.IsVirtual,
				RemindersSent:           []ReminderRecord{},
			}
			if in.IsVirtual {
				link := fmt.Sprintf("https://meet.caresync.io/%s", uuid.NewString())
				appt.VideoConferenceLink = &link
			}

			if err := s.appts.With(q).Insert(lockCtx, appt); err != nil {
				return errs.Internal(err, "insert appointment")
			}

			s.notifyBothParties(lockCtx, q, patient, doctor, appt,
				"Appointment booked",
				fmt.Sprintf("Appointment on %s at %s", appt.Date.Format("Jan 2, 2006"), appt.StartTime))

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.metrics.ObserveSlotConflict()
			return nil, errs.Conflict("slot %s is currently being booked, please retry", in.TimeSlotID)
		}
		return nil, err
	}

	s.auditor.Record(ctx, actorID, "appointment.create", "appointment", created.ID, map[string]any{
		"patient_id": in.PatientID,
		"doctor_id":  in.DoctorID,
		"slot_id":    in.TimeSlotID,
		"date":       created.Date.Format("2006-01-02"),
		"start":      created.StartTime,
	})
	s.metrics.ObserveAppointment(string(StatusScheduled))

	if err := s.mailer.SendAppointmentCreated(ctx, patient.Email, patient.Name, s.emailFor(created, patient, doctor)); err != nil {
		s.logger.Error("appointment created email failed", "error", err, "appointment_id", created.ID)
	}
	return created, nil
}

// GetByID fetches one appointment.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, errs.NotFound("appointment %s not found", id)
		}
		return nil, errs.Internal(err, "load appointment")
	}
	return a, nil
}

// ListByDoctor returns the doctor's appointments with date in [from, to].
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if _, err := s.findDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	appts, err := s.appts.ListByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, errs.Internal(err, "list appointments")
	}
	return appts, nil
}

// ListByPatient returns the patient's appointments, most recent first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if _, err := s.findPatient(ctx, patientID); err != nil {
		return nil, err
	}
	appts, err := s.appts.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, errs.Internal(err, "list appointments")
	}
	return appts, nil
}

// UpdateInput patches an appointment; nil fields are left unchanged.
type UpdateInput struct {
	Status         *Status
	TimeSlotID     *uuid.UUID
	ReasonForVisit *string
	Notes          *string
	CancelReason   *string
}

// Update applies a patch. Status changes are validated against the transition
// table; cancellation stamps cancelledAt and releases the slot; a changed
// timeSlotId swaps the booking to the new slot. Everything commits in one
// transaction, and notification fan-out fires only when the status actually
// changed value.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch UpdateInput, actorID uuid.UUID) (*Appointment, error) {
	var (
		updated       *Appointment
		statusChanged bool
	)

	err := s.runner.InTx(ctx, func(q db.Querier) error {
		appts := s.appts.With(q)
		slots := s.slots.With(q)

		current, err := appts.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return errs.NotFound("appointment %s not found", id)
			}
			return errs.Internal(err, "load appointment")
		}
		next := *current
		statusChanged = false

		if patch.TimeSlotID != nil && *patch.TimeSlotID != current.TimeSlotID {
			// Only appointments still holding their slot can move to a new one.
			if current.Status != StatusScheduled && current.Status != StatusCheckedIn {
				return errs.Conflict("cannot reschedule a %s appointment", current.Status)
			}
			newSlot, err := slots.GetByID(ctx, *patch.TimeSlotID)
			if err != nil {
				if errors.Is(err, slot.ErrSlotNotFound) {
					return errs.NotFound("slot %s not found", *patch.TimeSlotID)
				}
				return errs.Internal(err, "load slot")
			}
			if newSlot.DoctorID != current.DoctorID {
				return errs.Validation("slot %s belongs to another doctor", newSlot.ID)
			}
			if newSlot.Status != slot.StatusAvailable {
				s.metrics.ObserveSlotConflict()
				return errs.Conflict("slot %s-%s on %s is not available (status %s)",
					newSlot.StartTime, newSlot.EndTime, newSlot.Date.Format("2006-01-02"), newSlot.Status)
			}

			if _, err := slots.UpdateStatus(ctx, current.TimeSlotID, slot.StatusBooked, slot.StatusAvailable); err != nil {
				return errs.Internal(err, "release slot %s", current.TimeSlotID)
			}
			booked, err := slots.UpdateStatus(ctx, newSlot.ID, slot.StatusAvailable, slot.StatusBooked)
			if err != nil {
				if errors.Is(err, slot.ErrStatusChanged) {
					s.metrics.ObserveSlotConflict()
					return errs.Conflict("slot %s was just booked by someone else", newSlot.ID)
				}
				return errs.Internal(err, "book slot %s", newSlot.ID)
			}

			next.TimeSlotID = booked.ID
			next.Date = booked.Date
			next.StartTime = booked.StartTime
			next.EndTime = booked.EndTime
			next.StartsAt = booked.StartsAt()
		}

		if patch.Status != nil && *patch.Status != current.Status {
			target := *patch.Status
			if !ValidStatus(target) {
				return errs.Validation("unknown appointment status %q", target)
			}
			if !CanTransition(current.Status, target) {
				return errs.Conflict("illegal status transition %s -> %s", current.Status, target)
			}
			next.Status = target
			statusChanged = true

			if target == StatusCancelled {
				now := s.now().UTC()
				next.CancelledAt = &now
				next.CancelReason = patch.CancelReason
				// Cancellation frees the slot for rebooking.
				if _, err := slots.UpdateStatus(ctx, next.TimeSlotID, slot.StatusBooked, slot.StatusAvailable); err != nil {
					return errs.Internal(err, "release slot %s", next.TimeSlotID)
				}
			}
		}

		if patch.ReasonForVisit != nil {
			next.ReasonForVisit = *patch.ReasonForVisit
		}
		if patch.Notes != nil {
			next.Notes = *patch.Notes
		}

		if err := appts.Update(ctx, &next); err != nil {
			return errs.Internal(err, "update appointment")
		}

		if statusChanged {
			patient, doctor, err := s.lookupParties(ctx, &next)
			if err == nil {
				s.notifyBothParties(ctx, q, patient, doctor, &next,
					"Appointment "+string(next.Status),
					fmt.Sprintf("Appointment on %s at %s is now %s", next.Date.Format("Jan 2, 2006"), next.StartTime, next.Status))
			} else {
				s.logger.Error("lookup parties for notification", "error", err, "appointment_id", next.ID)
			}
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, actorID, "appointment.update", "appointment", id, map[string]any{
		"status":  updated.Status,
		"slot_id": updated.TimeSlotID,
	})

	if statusChanged {
		s.metrics.ObserveAppointment(string(updated.Status))
		if updated.Status == StatusCancelled {
			s.sendCancellationEmail(ctx, updated)
		}
	}
	return updated, nil
}

// Delete removes the appointment and releases its slot in one transaction.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	err := s.runner.InTx(ctx, func(q db.Querier) error {
		appts := s.appts.With(q)
		slots := s.slots.With(q)

		current, err := appts.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return errs.NotFound("appointment %s not found", id)
			}
			return errs.Internal(err, "load appointment")
		}

		// The slot is already free when the appointment was cancelled first.
		if _, err := slots.UpdateStatus(ctx, current.TimeSlotID, slot.StatusBooked, slot.StatusAvailable); err != nil {
			if !errors.Is(err, slot.ErrStatusChanged) {
				return errs.Internal(err, "release slot %s", current.TimeSlotID)
			}
		}

		if err := appts.Delete(ctx, id); err != nil {
			return errs.Internal(err, "delete appointment")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditor.Record(ctx, actorID, "appointment.delete", "appointment", id, nil)
	return nil
}

func (s *Service) notifyBothParties(ctx context.Context, q db.Querier, patient *directory.Patient, doctor *directory.Doctor, appt *Appointment, title, message string) {
	if s.inApp == nil {
		return
	}
	store := s.inApp.With(q)
	for _, userID := range []uuid.UUID{patient.UserID, doctor.UserID} {
		n := &notify.InApp{
			UserID:        userID,
			Title:         title,
			Message:       message,
			RelatedEntity: "appointment",
			RelatedID:     appt.ID,
		}
		if err := store.Insert(ctx, n); err != nil {
			s.logger.Error("insert in-app notification", "error", err, "user_id", userID, "appointment_id", appt.ID)
		}
	}
}

func (s *Service) sendCancellationEmail(ctx context.Context, appt *Appointment) {
	patient, doctor, err := s.lookupParties(ctx, appt)
	if err != nil {
		s.logger.Error("lookup parties for cancellation email", "error", err, "appointment_id", appt.ID)
		return
	}
	reason := ""
	if appt.CancelReason != nil {
		reason = *appt.CancelReason
	}
	if err := s.mailer.SendAppointmentCancelled(ctx, patient.Email, patient.Name, s.emailFor(appt, patient, doctor), reason); err != nil {
		s.logger.Error("appointment cancelled email failed", "error", err, "appointment_id", appt.ID)
	}
}

func (s *Service) lookupParties(ctx context.Context, appt *Appointment) (*directory.Patient, *directory.Doctor, error) {
	patient, err := s.dir.FindPatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, nil, fmt.Errorf("load patient: %w", err)
	}
	doctor, err := s.dir.FindDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		return nil, nil, fmt.Errorf("load doctor: %w", err)
	}
	return patient, doctor, nil
}

func (s *Service) emailFor(appt *Appointment, patient *directory.Patient, doctor *directory.Doctor) notify.AppointmentEmail {
	link := ""
	if appt.VideoConferenceLink != nil {
		link = *appt.VideoConferenceLink
	}
	return notify.AppointmentEmail{
		PatientName: patient.Name,
		DoctorName:  doctor.Name,
		Date:        appt.Date,
		StartTime:   appt.StartTime,
		EndTime:     appt.EndTime,
		IsVirtual:   appt.IsVirtual,
		VideoLink:   link,
		Reason:      appt.ReasonForVisit,
	}
}

func (s *Service) findPatient(ctx context.Context, id uuid.UUID) (*directory.Patient, error) {
	patient, err := s.dir.FindPatientByID(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return nil, errs.NotFound("patient %s not found", id)
		}
		return nil, errs.Internal(err, "load patient")
	}
	return patient, nil
}

func (s *Service) findDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error) {
	doctor, err := s.dir.FindDoctorByID(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, errs.NotFound("doctor %s not found", id)
		}
		return nil, errs.Internal(err, "load doctor")
	}
	return doctor, nil
}
