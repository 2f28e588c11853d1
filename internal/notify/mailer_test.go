package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	sent []EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg EmailMessage) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func testEmail(virtual bool) AppointmentEmail {
	return AppointmentEmail{
		PatientName: "Jo Wilson",
		DoctorName:  "Dr. Miranda Bailey",
		Date:        time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		StartTime:   "10:00",
		EndTime:     "10:30",
		IsVirtual:   virtual,
		VideoLink:   "https://meet.caresync.io/abc",
	}
}

func TestMailerCreated(t *testing.T) {
	sender := &captureSender{}
	m := NewMailer(sender, nil)

	err := m.SendAppointmentCreated(context.Background(), "jo@example.com", "Jo Wilson", testEmail(false))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "jo@example.com", msg.To)
	assert.Equal(t, "Appointment confirmed - Sep 15 10:00", msg.Subject)
	assert.Contains(t, msg.Body, "Dr. Miranda Bailey")
	assert.Contains(t, msg.Body, "Tuesday, September 15, 2026")
	assert.Contains(t, msg.Body, "10:00 - 10:30")
	assert.NotContains(t, msg.Body, "virtual visit")
}

func TestMailerCreatedVirtualIncludesLink(t *testing.T) {
	sender := &captureSender{}
	m := NewMailer(sender, nil)

	err := m.SendAppointmentCreated(context.Background(), "jo@example.com", "Jo Wilson", testEmail(true))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "https://meet.caresync.io/abc")
}

func TestMailerCancelled(t *testing.T) {
	sender := &captureSender{}
	m := NewMailer(sender, nil)

	err := m.SendAppointmentCancelled(context.Background(), "jo@example.com", "Jo Wilson", testEmail(false), "doctor unavailable")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "Appointment cancelled - Sep 15 10:00", msg.Subject)
	assert.Contains(t, msg.Body, "Reason: doctor unavailable")
}

func TestMailerCancelledWithoutReason(t *testing.T) {
	sender := &captureSender{}
	m := NewMailer(sender, nil)

	err := m.SendAppointmentCancelled(context.Background(), "jo@example.com", "Jo Wilson", testEmail(false), "")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.NotContains(t, sender.sent[0].Body, "Reason:")
}

func TestMailerReminder(t *testing.T) {
	sender := &captureSender{}
	m := NewMailer(sender, nil)

	err := m.SendAppointmentReminder(context.Background(), "jo@example.com", "Jo Wilson", testEmail(true))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "Reminder: appointment Sep 15 10:00", msg.Subject)
	assert.Contains(t, msg.Body, "https://meet.caresync.io/abc")
}

func TestMailerPropagatesSendError(t *testing.T) {
	sender := &captureSender{err: errors.New("sendgrid down")}
	m := NewMailer(sender, nil)

	err := m.SendAppointmentCreated(context.Background(), "jo@example.com", "Jo Wilson", testEmail(false))
	assert.Error(t, err)
}

func TestMailerNilSenderDropsEmail(t *testing.T) {
	m := NewMailer(nil, nil)
	err := m.SendAppointmentCreated(context.Background(), "jo@example.com", "Jo Wilson", testEmail(false))
	assert.NoError(t, err)
}
