package v1

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/internal/dismissal"
	"github.com/Raimguzhinov/alarmd/internal/scheduler"
	"github.com/Raimguzhinov/alarmd/pkg/etag"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/go-chi/chi/v5"
)

func (r *routes) listAlarms(w http.ResponseWriter, req *http.Request) {
	alarms, err := r.alarms.List(req.Context())
	if err != nil {
		r.fail(w, "http - v1 - listAlarms", err)
		return
	}
	writeJSON(w, http.StatusOK, alarms)
}

func (r *routes) createAlarm(w http.ResponseWriter, req *http.Request) {
	var d alarm.Draft
	if err := readJSON(req, &d); err != nil {
		r.fail(w, "http - v1 - createAlarm", err)
		return
	}
	a, err := r.alarms.Create(req.Context(), d)
	if err != nil {
		r.fail(w, "http - v1 - createAlarm", err)
		return
	}
	w.Header().Set("Location", "/v1/alarms/"+a.ID)
	writeJSON(w, http.StatusCreated, a)
}

func (r *routes) getAlarm(w http.ResponseWriter, req *http.Request) {
	a, err := r.alarms.Get(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		r.fail(w, "http - v1 - getAlarm", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (r *routes) updateAlarm(w http.ResponseWriter, req *http.Request) {
	var p alarm.Patch
	if err := readJSON(req, &p); err != nil {
		r.fail(w, "http - v1 - updateAlarm", err)
		return
	}
	a, err := r.alarms.Update(req.Context(), chi.URLParam(req, "id"), p)
	if err != nil {
		r.fail(w, "http - v1 - updateAlarm", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// deleteAlarm ends a ringing session of the alarm before its records go.
func (r *routes) deleteAlarm(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if _, err := r.sessions.Cancel(req.Context(), id); err != nil &&
		!errors.Is(err, dismissal.ErrNoSession) && !errors.Is(err, dismissal.ErrClosed) {
		r.logger.Warn("http - v1 - deleteAlarm - cancel session", logger.AlarmID(id), logger.Err(err))
	}
	if err := r.alarms.Delete(req.Context(), id); err != nil {
		r.fail(w, "http - v1 - deleteAlarm", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *routes) toggleAlarm(w http.ResponseWriter, req *http.Request) {
	a, err := r.alarms.Toggle(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		r.fail(w, "http - v1 - toggleAlarm", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (r *routes) getRingtone(w http.ResponseWriter, req *http.Request) {
	rt, err := r.alarms.Ringtone(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		r.fail(w, "http - v1 - getRingtone", err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (r *routes) setRingtone(w http.ResponseWriter, req *http.Request) {
	var rt alarm.Ringtone
	if err := readJSON(req, &rt); err != nil {
		r.fail(w, "http - v1 - setRingtone", err)
		return
	}
	a, err := r.alarms.SetRingtone(req.Context(), chi.URLParam(req, "id"), rt)
	if err != nil {
		r.fail(w, "http - v1 - setRingtone", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (r *routes) deleteRingtone(w http.ResponseWriter, req *http.Request) {
	a, err := r.alarms.DeleteRingtone(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		r.fail(w, "http - v1 - deleteRingtone", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (r *routes) exportICal(w http.ResponseWriter, req *http.Request) {
	alarms, err := r.alarms.List(req.Context())
	if err != nil {
		r.fail(w, "http - v1 - exportICal", err)
		return
	}

	var buf bytes.Buffer
	if err := scheduler.ExportICal(&buf, alarms, r.clock.Now(), r.loc); err != nil {
		r.fail(w, "http - v1 - exportICal - ExportICal", err)
		return
	}

	tag := etag.FromData(buf.Bytes())
	w.Header().Set("ETag", tag)
	if etag.Match(req.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
