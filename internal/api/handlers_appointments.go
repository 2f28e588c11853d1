package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/scheduling/internal/appointment"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.TimeSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_slot_id", "time_slot_id must be a valid UUID")
			return
		}

		in := appointment.CreateInput{
			PatientID:      patientID,
			DoctorID:       doctorID,
			TimeSlotID:     slotID,
			Type:           appointment.Type(req.Type),
			ReasonForVisit: req.ReasonForVisit,
			Notes:          req.Notes,
			IsVirtual:      req.IsVirtual,
		}
		if req.PreliminaryAssessmentID != nil {
			assessmentID, err := uuid.Parse(*req.PreliminaryAssessmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_preliminary_assessment_id", "preliminary_assessment_id must be a valid UUID")
				return
			}
			in.PreliminaryAssessmentID = &assessmentID
		}

		created, err := svc.Create(r.Context(), in, actorID(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, appointmentResponse(created))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		a, err := svc.GetByID(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(a))
	}
}

func listDoctorAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		from, to, ok := rangeQuery(w, r)
		if !ok {
			return
		}
		start := time.Now().UTC()
		if from != nil {
			start = *from
		}
		end := start.AddDate(0, 0, 7)
		if to != nil {
			end = *to
		}

		appts, err := svc.ListByDoctor(r.Context(), doctorID, start, end)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponses(appts))
	}
}

func listPatientAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := uuidParam(w, r, "patientID")
		if !ok {
			return
		}
		limit := intQuery(r, "limit", 50)
		offset := intQuery(r, "offset", 0)

		appts, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponses(appts))
	}
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patch := appointment.UpdateInput{
			ReasonForVisit: req.ReasonForVisit,
			Notes:          req.Notes,
			CancelReason:   req.CancelReason,
		}
		if req.Status != nil {
			status := appointment.Status(*req.Status)
			patch.Status = &status
		}
		if req.TimeSlotID != nil {
			slotID, err := uuid.Parse(*req.TimeSlotID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time_slot_id", "time_slot_id must be a valid UUID")
				return
			}
			patch.TimeSlotID = &slotID
		}

		updated, err := svc.Update(r.Context(), id, patch, actorID(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(updated))
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), id, actorID(r)); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func intQuery(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
