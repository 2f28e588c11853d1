package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/caresync/scheduling/internal/calendar"
	"github.com/caresync/scheduling/internal/notify"
)

func importCalendarHandler(bridge *calendar.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		req, from, to, ok := calendarOpRequest(w, r)
		if !ok {
			return
		}

		res, err := bridge.Import(r.Context(), doctorID, req.Credential, from, to, actorID(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ImportResponse{
			Imported: res.Imported,
			Skipped:  res.Skipped,
			Errors:   res.Errors,
			Details:  calendarDetails(res.Details),
		})
	}
}

func exportCalendarHandler(bridge *calendar.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		req, from, to, ok := calendarOpRequest(w, r)
		if !ok {
			return
		}

		res, err := bridge.Export(r.Context(), doctorID, req.Credential, from, to, actorID(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ExportResponse{
			Exported: res.Exported,
			Skipped:  res.Skipped,
			Errors:   res.Errors,
			Details:  calendarDetails(res.Details),
		})
	}
}

func syncCalendarHandler(bridge *calendar.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		req, from, to, ok := calendarOpRequest(w, r)
		if !ok {
			return
		}

		res, err := bridge.Sync(r.Context(), doctorID, req.Credential, from, to, actorID(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SyncResponse{
			Created: res.Created,
			Updated: res.Updated,
			Deleted: res.Deleted,
			Errors:  res.Errors,
			Details: calendarDetails(res.Details),
		})
	}
}

// calendarOpRequest decodes the shared import/export/sync body. The range
// defaults to the next thirty days.
func calendarOpRequest(w http.ResponseWriter, r *http.Request) (CalendarOpRequest, time.Time, time.Time, bool) {
	var req CalendarOpRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return req, time.Time{}, time.Time{}, false
		}
	}

	from := time.Now().UTC()
	if req.From != "" {
		t, err := time.Parse("2006-01-02", req.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return req, time.Time{}, time.Time{}, false
		}
		from = t
	}
	to := from.AddDate(0, 0, 30)
	if req.To != "" {
		t, err := time.Parse("2006-01-02", req.To)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return req, time.Time{}, time.Time{}, false
		}
		to = t
	}
	return req, from, to, true
}

func listNotificationsHandler(store notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "userID")
		if !ok {
			return
		}
		items, err := store.ListByUser(r.Context(), userID, intQuery(r, "limit", 50))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, notificationResponses(items))
	}
}

func markNotificationReadHandler(store notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := store.MarkRead(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
