package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/appointment"
	"github.com/caresync/scheduling/internal/calendar"
	"github.com/caresync/scheduling/internal/notify"
	"github.com/caresync/scheduling/internal/slot"
)

type CreateSlotRequest struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"` // YYYY-MM-DD
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status,omitempty"`
}

type UpdateSlotRequest struct {
	Date      *string `json:"date,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Status    *string `json:"status,omitempty"`
}

type GenerateSlotsRequest struct {
	From string `json:"from"` // YYYY-MM-DD
	To   string `json:"to"`
}

type SlotResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	Status          string    `json:"status"`
	ExternalEventID *string   `json:"external_event_id,omitempty"`
}

func slotResponse(s *slot.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		DoctorID:        s.DoctorID,
		Date:            s.Date.Format("2006-01-02"),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		Status:          string(s.Status),
		ExternalEventID: s.ExternalEventID,
	}
}

func slotResponses(slots []slot.TimeSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for i := range slots {
		out = append(out, slotResponse(&slots[i]))
	}
	return out
}

type CreateAppointmentRequest struct {
	PatientID               string  `json:"patient_id"`
	DoctorID                string  `json:"doctor_id"`
	TimeSlotID              string  `json:"time_slot_id"`
	Type                    string  `json:"type,omitempty"`
	ReasonForVisit          string  `json:"reason_for_visit,omitempty"`
	Notes                   string  `json:"notes,omitempty"`
	IsVirtual               bool    `json:"is_virtual,omitempty"`
	PreliminaryAssessmentID *string `json:"preliminary_assessment_id,omitempty"`
}

type UpdateAppointmentRequest struct {
	Status         *string `json:"status,omitempty"`
	TimeSlotID     *string `json:"time_slot_id,omitempty"`
	ReasonForVisit *string `json:"reason_for_visit,omitempty"`
	Notes          *string `json:"notes,omitempty"`
	CancelReason   *string `json:"cancel_reason,omitempty"`
}

type AppointmentResponse struct {
	ID                      uuid.UUID  `json:"id"`
	PatientID               uuid.UUID  `json:"patient_id"`
	DoctorID                uuid.UUID  `json:"doctor_id"`
	TimeSlotID              uuid.UUID  `json:"time_slot_id"`
	Date                    string     `json:"date"`
	StartTime               string     `json:"start_time"`
	EndTime                 string     `json:"end_time"`
	Type                    string     `json:"type"`
	Status                  string     `json:"status"`
	ReasonForVisit          string     `json:"reason_for_visit,omitempty"`
	Notes                   string     `json:"notes,omitempty"`
	PreliminaryAssessmentID *uuid.UUID `json:"preliminary_assessment_id,omitempty"`
	IsVirtual               bool       `json:"is_virtual"`
	VideoConferenceLink     *string    `json:"video_conference_link,omitempty"`
	CancelledAt             *time.Time `json:"cancelled_at,omitempty"`
	CancelReason            *string    `json:"cancel_reason,omitempty"`
}

func appointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                      a.ID,
		PatientID:               a.PatientID,
		DoctorID:                a.DoctorID,
		TimeSlotID:              a.TimeSlotID,
		Date:                    a.Date.Format("2006-01-02"),
		StartTime:               a.StartTime,
		EndTime:                 a.EndTime,
		Type:                    string(a.Type),
		Status:                  string(a.Status),
		ReasonForVisit:          a.ReasonForVisit,
		Notes:                   a.Notes,
		PreliminaryAssessmentID: a.PreliminaryAssessmentID,
		IsVirtual:               a.IsVirtual,
		VideoConferenceLink:     a.VideoConferenceLink,
		CancelledAt:             a.CancelledAt,
		CancelReason:            a.CancelReason,
	}
}

func appointmentResponses(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, appointmentResponse(&appts[i]))
	}
	return out
}

type CalendarOpRequest struct {
	Credential string `json:"credential,omitempty"`
	From       string `json:"from,omitempty"` // YYYY-MM-DD, defaults to today
	To         string `json:"to,omitempty"`   // defaults to from+30d
}

type CalendarDetail struct {
	EventID string `json:"event_id,omitempty"`
	SlotID  string `json:"slot_id,omitempty"`
	Action  string `json:"action"`
	Reason  string `json:"reason,omitempty"`
}

func calendarDetails(details []calendar.Detail) []CalendarDetail {
	out := make([]CalendarDetail, 0, len(details))
	for _, d := range details {
		out = append(out, CalendarDetail{EventID: d.EventID, SlotID: d.SlotID, Action: d.Action, Reason: d.Reason})
	}
	return out
}

type ImportResponse struct {
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Errors   int              `json:"errors"`
	Details  []CalendarDetail `json:"details"`
}

type ExportResponse struct {
	Exported int              `json:"exported"`
	Skipped  int              `json:"skipped"`
	Errors   int              `json:"errors"`
	Details  []CalendarDetail `json:"details"`
}

type SyncResponse struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Deleted int              `json:"deleted"`
	Errors  int              `json:"errors"`
	Details []CalendarDetail `json:"details"`
}

type NotificationResponse struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	RelatedEntity string    `json:"related_entity,omitempty"`
	RelatedID     uuid.UUID `json:"related_id,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

func notificationResponses(items []notify.InApp) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, NotificationResponse{
			ID:            n.ID,
			Title:         n.Title,
			Message:       n.Message,
			RelatedEntity: n.RelatedEntity,
			RelatedID:     n.RelatedID,
			Read:          n.Read,
			CreatedAt:     n.CreatedAt,
		})
	}
	return out
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
