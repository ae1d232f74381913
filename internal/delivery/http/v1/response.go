package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/internal/dismissal"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
)

const _maxBody = 1 << 16

var errBadJSON = errors.New("malformed request body")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, _maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.Join(errBadJSON, err)
	}
	return nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadJSON):
		return http.StatusBadRequest
	case errors.Is(err, alarm.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, alarm.ErrNotFound), errors.Is(err, dismissal.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, dismissal.ErrClosed), errors.Is(err, dismissal.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (r *routes) fail(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		r.logger.Error(op, logger.Err(err))
		msg = http.StatusText(status)
	} else {
		r.logger.Debug(op, "status", status, logger.Err(err))
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
