package api

import (
	"encoding/json"
	"net/http"

	"github.com/caresync/scheduling/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the error taxonomy onto HTTP statuses. Internal
// failures hide their cause from clients.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	switch kind {
	case errs.KindValidation:
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errs.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errs.KindConflict:
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errs.KindUnauthorized:
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errs.KindExternal:
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
