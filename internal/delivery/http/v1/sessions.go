package v1

import (
	"net/http"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/internal/dismissal"
	"github.com/Raimguzhinov/alarmd/internal/scheduler"
	"github.com/Raimguzhinov/alarmd/internal/timing"
	"github.com/go-chi/chi/v5"
)

type outcomeResponse struct {
	AlarmID string          `json:"alarmId"`
	State   dismissal.State `json:"state"`
	EndedAt time.Time       `json:"endedAt"`
	Alarm   alarm.Alarm     `json:"alarm"`
	Error   string          `json:"error,omitempty"`
}

func newOutcomeResponse(out dismissal.Outcome) outcomeResponse {
	res := outcomeResponse{
		AlarmID: out.AlarmID,
		State:   out.State,
		EndedAt: out.EndedAt,
		Alarm:   out.Alarm,
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	return res
}

type submitRequest struct {
	Code string `json:"code"`
}

type notificationResponse struct {
	Decision timing.Decision `json:"decision"`
}

type keystrokeRequest struct {
	Current  string `json:"current"`
	Proposed string `json:"proposed"`
}

type keystrokeResponse struct {
	Value string `json:"value"`
}

func (r *routes) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.sessions.Active())
}

// getSession returns the live snapshot, or how the last session of the alarm
// ended.
func (r *routes) getSession(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	s, err := r.sessions.Get(id)
	if err == nil {
		writeJSON(w, http.StatusOK, s.Snapshot())
		return
	}
	if out, ok := r.sessions.LastOutcome(id); ok {
		writeJSON(w, http.StatusOK, newOutcomeResponse(out))
		return
	}
	r.fail(w, "http - v1 - getSession", err)
}

func (r *routes) submit(w http.ResponseWriter, req *http.Request) {
	var body submitRequest
	if err := readJSON(req, &body); err != nil {
		r.fail(w, "http - v1 - submit", err)
		return
	}
	s, err := r.sessions.Get(chi.URLParam(req, "id"))
	if err != nil {
		r.fail(w, "http - v1 - submit", err)
		return
	}
	res, err := s.Submit(req.Context(), body.Code)
	if err != nil {
		r.fail(w, "http - v1 - submit - Submit", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (r *routes) regenerate(w http.ResponseWriter, req *http.Request) {
	s, err := r.sessions.Get(chi.URLParam(req, "id"))
	if err != nil {
		r.fail(w, "http - v1 - regenerate", err)
		return
	}
	if _, err := s.Regenerate(req.Context()); err != nil {
		r.fail(w, "http - v1 - regenerate - Regenerate", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (r *routes) cancelSession(w http.ResponseWriter, req *http.Request) {
	out, err := r.sessions.Cancel(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		r.fail(w, "http - v1 - cancelSession", err)
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeResponse(out))
}

// notification receives a fire forwarded by the device shell, either shown
// in the foreground (received) or acted on by the user (response).
func (r *routes) notification(w http.ResponseWriter, req *http.Request) {
	var src timing.Source
	switch timing.Source(chi.URLParam(req, "source")) {
	case timing.SourceReceived:
		src = timing.SourceReceived
	case timing.SourceResponse:
		src = timing.SourceResponse
	default:
		http.NotFound(w, req)
		return
	}

	var p scheduler.Payload
	if err := readJSON(req, &p); err != nil {
		r.fail(w, "http - v1 - notification", err)
		return
	}
	dec, err := r.notifications.Handle(req.Context(), p, src)
	if err != nil {
		r.fail(w, "http - v1 - notification - Handle", err)
		return
	}
	writeJSON(w, http.StatusAccepted, notificationResponse{Decision: dec})
}

func (r *routes) keystroke(w http.ResponseWriter, req *http.Request) {
	var body keystrokeRequest
	if err := readJSON(req, &body); err != nil {
		r.fail(w, "http - v1 - keystroke", err)
		return
	}
	writeJSON(w, http.StatusOK, keystrokeResponse{Value: dismissal.FilterKeystroke(body.Current, body.Proposed)})
}
