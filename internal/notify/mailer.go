package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/caresync/scheduling/pkg/logging"
)

// AppointmentEmail carries everything the appointment templates need.
type AppointmentEmail struct {
	PatientName string
	DoctorName  string
	Date        time.Time
	StartTime   string
	EndTime     string
	IsVirtual   bool
	VideoLink   string
	Reason      string
}

// Mailer renders appointment email templates and hands them to the sender.
// Every method returns an error for logging, but callers must treat a send
// failure as non-fatal: the booking already committed.
type Mailer struct {
	sender EmailSender
	logger *logging.Logger
}

func NewMailer(sender EmailSender, logger *logging.Logger) *Mailer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Mailer{sender: sender, logger: logger}
}

func (m *Mailer) SendAppointmentCreated(ctx context.Context, to, toName string, e AppointmentEmail) error {
	body := fmt.Sprintf(`Hi %s,

Your appointment with %s is confirmed.

When: %s, %s - %s%s

See you then,
CareSync`,
		toName, e.DoctorName, e.Date.Format("Monday, January 2, 2006"), e.StartTime, e.EndTime, m.virtualLine(e))

	return m.send(ctx, EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: fmt.Sprintf("Appointment confirmed - %s %s", e.Date.Format("Jan 2"), e.StartTime),
		Body:    body,
	})
}

func (m *Mailer) SendAppointmentCancelled(ctx context.Context, to, toName string, e AppointmentEmail, reason string) error {
	reasonLine := ""
	if reason != "" {
		reasonLine = fmt.Sprintf("\nReason: %s\n", reason)
	}
	body := fmt.Sprintf(`Hi %s,

Your appointment with %s on %s at %s has been cancelled.
%s
You can book a new time slot at any moment.

CareSync`,
		toName, e.DoctorName, e.Date.Format("Monday, January 2, 2006"), e.StartTime, reasonLine)

	return m.send(ctx, EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: fmt.Sprintf("Appointment cancelled - %s %s", e.Date.Format("Jan 2"), e.StartTime),
		Body:    body,
	})
}

func (m *Mailer) SendAppointmentReminder(ctx context.Context, to, toName string, e AppointmentEmail) error {
	body := fmt.Sprintf(`Hi %s,

This is a reminder of your upcoming appointment with %s.

When: %s, %s - %s%s

CareSync`,
		toName, e.DoctorName, e.Date.Format("Monday, January 2, 2006"), e.StartTime, e.EndTime, m.virtualLine(e))

	return m.send(ctx, EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: fmt.Sprintf("Reminder: appointment %s %s", e.Date.Format("Jan 2"), e.StartTime),
		Body:    body,
	})
}

func (m *Mailer) virtualLine(e AppointmentEmail) string {
	if !e.IsVirtual {
		return ""
	}
	return fmt.Sprintf("\nThis is a virtual visit. Join here: %s", e.VideoLink)
}

func (m *Mailer) send(ctx context.Context, msg EmailMessage) error {
	if m.sender == nil {
		m.logger.Debug("mailer: no sender configured, dropping email", "to", msg.To)
		return nil
	}
	return m.sender.Send(ctx, msg)
}
