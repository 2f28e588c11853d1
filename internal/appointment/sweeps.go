package appointment

import (
	"context"
	"fmt"

	"github.com/caresync/scheduling/internal/notify"
)

// ScheduleReminders finds scheduled appointments starting within the reminder
// window that have not been reminded yet, and sends an in-app notification
// plus an email for each. One failing appointment never stops the batch.
// Returns the number of appointments reminded.
func (s *Service) ScheduleReminders(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.appts.FindRemindersDue(ctx, now, s.reminderWindow)
	if err != nil {
		return 0, fmt.Errorf("find reminders due: %w", err)
	}

	reminded := 0
	for i := range due {
		appt := &due[i]
		if err := s.remindOne(ctx, appt); err != nil {
			s.logger.Error("send reminder", "error", err, "appointment_id", appt.ID)
			s.metrics.ObserveSweep("reminders", "error")
			continue
		}
		reminded++
		s.metrics.ObserveSweep("reminders", "ok")
	}
	if reminded > 0 {
		s.logger.Info("reminder sweep done", "due", len(due), "reminded", reminded)
	}
	return reminded, nil
}

func (s *Service) remindOne(ctx context.Context, appt *Appointment) error {
	patient, doctor, err := s.lookupParties(ctx, appt)
	if err != nil {
		return err
	}

	sent := false
	if s.inApp != nil {
		n := &notify.InApp{
			UserID:        patient.UserID,
			Title:         "Appointment reminder",
			Message:       fmt.Sprintf("Your appointment with Dr. %s is on %s at %s", doctor.Name, appt.Date.Format("Jan 2, 2006"), appt.StartTime),
			RelatedEntity: "appointment",
			RelatedID:     appt.ID,
		}
		if err := s.inApp.Insert(ctx, n); err != nil {
			s.logger.Error("insert reminder notification", "error", err, "appointment_id", appt.ID)
		} else {
			if err := s.appts.AppendReminder(ctx, appt.ID, ReminderRecord{Type: "in-app", SentAt: s.now().UTC()}); err != nil {
				return fmt.Errorf("record in-app reminder: %w", err)
			}
			sent = true
		}
	}

	if err := s.mailer.SendAppointmentReminder(ctx, patient.Email, patient.Name, s.emailFor(appt, patient, doctor)); err != nil {
		s.logger.Error("reminder email failed", "error", err, "appointment_id", appt.ID)
	} else {
		if err := s.appts.AppendReminder(ctx, appt.ID, ReminderRecord{Type: "email", SentAt: s.now().UTC()}); err != nil {
			return fmt.Errorf("record email reminder: %w", err)
		}
		sent = true
	}

	if !sent {
		return fmt.Errorf("no reminder channel succeeded")
	}
	return nil
}

// HandleNoShows moves scheduled appointments whose start time passed more
// than the grace period ago to no-show. The slot stays booked; gone time is
// not given back. Returns the number of appointments transitioned.
func (s *Service) HandleNoShows(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.noShowGrace)
	candidates, err := s.appts.FindNoShowCandidates(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find no-show candidates: %w", err)
	}

	transitioned := 0
	noShow := StatusNoShow
	for i := range candidates {
		appt := &candidates[i]
		if _, err := s.Update(ctx, appt.ID, UpdateInput{Status: &noShow}, appt.DoctorID); err != nil {
			s.logger.Error("mark no-show", "error", err, "appointment_id", appt.ID)
			s.metrics.ObserveSweep("no-show", "error")
			continue
		}
		transitioned++
		s.metrics.ObserveSweep("no-show", "ok")
	}
	if transitioned > 0 {
		s.logger.Info("no-show sweep done", "candidates", len(candidates), "marked", transitioned)
	}
	return transitioned, nil
}
