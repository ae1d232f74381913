package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/internal/alarm/db"
	"github.com/Raimguzhinov/alarmd/internal/code"
	"github.com/Raimguzhinov/alarmd/internal/dismissal"
	"github.com/Raimguzhinov/alarmd/internal/scheduler"
	"github.com/Raimguzhinov/alarmd/internal/timing"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	t       *testing.T
	clock   *clock.Mock
	manager *dismissal.Manager
	handler http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC))
	l := logger.Discard()

	platform := scheduler.NewLocalPlatform(clk, time.UTC, l)
	repo := alarm.NewRepository(db.NewMemory(), scheduler.New(platform, time.UTC, clk, l), clk, l)
	device := dismissal.NewLogDevice(l)
	manager := dismissal.NewManager(repo, code.NewGenerator(clk, l), device, device, clk, dismissal.Config{DefaultSound: "asset://default"}, l)
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	launcher := timing.LauncherFunc(func(ctx context.Context, a alarm.Alarm) error {
		_, err := manager.Launch(ctx, a.ID)
		return err
	})
	dispatcher := timing.NewDispatcher(
		repo,
		launcher,
		timing.NewValidator(timing.DefaultTolerance, time.UTC),
		timing.NewInFlight(clk, timing.DefaultInFlightTTL, 0),
		clk,
		l,
	)

	mux := chi.NewRouter()
	NewRouter(mux, Deps{
		Alarms:        repo,
		Sessions:      manager,
		Notifications: dispatcher,
		Clock:         clk,
		Location:      time.UTC,
	}, l)

	return &server{t: t, clock: clk, manager: manager, handler: mux}
}

func (s *server) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *server) createAlarm(freq alarm.Frequency) alarm.Alarm {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/v1/alarms", map[string]any{
		"time":      "2026-10-14T07:00:00Z",
		"label":     "wake up",
		"frequency": freq,
		"duration":  5,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[alarm.Alarm](s.t, rec)
}

func TestAlarmsCRUD(t *testing.T) {
	s := newServer(t)

	a := s.createAlarm(alarm.Daily)
	assert.True(t, a.IsActive)
	assert.NotEmpty(t, a.ScheduleHandle)

	list := decode[[]alarm.Alarm](t, s.do(http.MethodGet, "/v1/alarms/", nil))
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	rec := s.do(http.MethodPatch, "/v1/alarms/"+a.ID+"/", map[string]any{"label": "run"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run", decode[alarm.Alarm](t, rec).Label)

	rec = s.do(http.MethodPatch, "/v1/alarms/"+a.ID+"/", map[string]any{"duration": 120})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodPost, "/v1/alarms/"+a.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	off := decode[alarm.Alarm](t, rec)
	assert.False(t, off.IsActive)
	assert.Empty(t, off.ScheduleHandle)

	rec = s.do(http.MethodPut, "/v1/alarms/"+a.ID+"/ringtone", map[string]any{"uri": "file://sunrise.mp3", "name": "Sunrise"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "file://sunrise.mp3", decode[alarm.Alarm](t, rec).RingtoneOverride)

	rt := decode[alarm.Ringtone](t, s.do(http.MethodGet, "/v1/alarms/"+a.ID+"/ringtone", nil))
	assert.Equal(t, "Sunrise", rt.Name)

	rec = s.do(http.MethodDelete, "/v1/alarms/"+a.ID+"/ringtone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[alarm.Alarm](t, rec).RingtoneOverride)

	rec = s.do(http.MethodDelete, "/v1/alarms/"+a.ID+"/", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/v1/alarms/"+a.ID+"/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAlarmRejectsBadInput(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/v1/alarms", `{"time":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/v1/alarms", map[string]any{
		"time":      "2026-10-14T07:00:00Z",
		"label":     "",
		"frequency": "hourly",
		"duration":  0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, alarm.ErrInvalid.Error())
}

func TestICalFeed(t *testing.T) {
	s := newServer(t)
	s.createAlarm(alarm.Weekly)

	rec := s.do(http.MethodGet, "/v1/alarms/feed.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "BEGIN:VEVENT")
	assert.Contains(t, rec.Body.String(), "FREQ=WEEKLY")

	tag := rec.Header().Get("ETag")
	require.NotEmpty(t, tag)

	rec = s.do(http.MethodGet, "/v1/alarms/feed.ics", nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRingingFlow(t *testing.T) {
	s := newServer(t)
	a := s.createAlarm(alarm.Daily)

	payload := scheduler.Payload{AlarmID: a.ID, Duration: a.Duration, Kind: scheduler.PayloadKind}

	rec := s.do(http.MethodPost, "/v1/notifications/received", payload)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, timing.Launched, decode[notificationResponse](t, rec).Decision)

	rec = s.do(http.MethodPost, "/v1/notifications/response", payload)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, timing.Duplicate, decode[notificationResponse](t, rec).Decision)

	snap := decode[dismissal.Snapshot](t, s.do(http.MethodGet, "/v1/sessions/"+a.ID+"/", nil))
	assert.Equal(t, dismissal.Ringing, snap.State)
	assert.Equal(t, 300, snap.RemainingSeconds)
	require.True(t, alarm.ValidCode(snap.Code))

	wrong := "AAAAAAAA"
	if snap.Code == wrong {
		wrong = "BBBBBBBB"
	}
	rec = s.do(http.MethodPost, "/v1/sessions/"+a.ID+"/submit", submitRequest{Code: wrong})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[dismissal.Submission](t, rec)
	assert.Equal(t, dismissal.ResultWrong, res.Result)
	assert.Equal(t, 4, res.Remaining)

	rec = s.do(http.MethodPost, "/v1/sessions/"+a.ID+"/regenerate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[dismissal.Snapshot](t, rec)
	assert.Zero(t, snap.Attempts)

	rec = s.do(http.MethodPost, "/v1/sessions/"+a.ID+"/submit", submitRequest{Code: strings.ToLower(snap.Code)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dismissal.ResultSuccess, decode[dismissal.Submission](t, rec).Result)

	require.Eventually(t, func() bool {
		_, ok := s.manager.LastOutcome(a.ID)
		return ok
	}, time.Second, 5*time.Millisecond)

	rec = s.do(http.MethodGet, "/v1/sessions/"+a.ID+"/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[outcomeResponse](t, rec)
	assert.Equal(t, dismissal.Success, out.State)
	assert.True(t, out.Alarm.IsActive)

	rec = s.do(http.MethodPost, "/v1/sessions/"+a.ID+"/submit", submitRequest{Code: snap.Code})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelSession(t *testing.T) {
	s := newServer(t)
	a := s.createAlarm(alarm.Daily)

	rec := s.do(http.MethodPost, "/v1/notifications/received", scheduler.Payload{AlarmID: a.ID, Kind: scheduler.PayloadKind})
	require.Equal(t, http.StatusAccepted, rec.Code)

	sessions := decode[[]dismissal.Snapshot](t, s.do(http.MethodGet, "/v1/sessions/", nil))
	require.Len(t, sessions, 1)

	rec = s.do(http.MethodPost, "/v1/sessions/"+a.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dismissal.Cancelled, decode[outcomeResponse](t, rec).State)
}

func TestDeleteAlarmEndsRingingSession(t *testing.T) {
	s := newServer(t)
	a := s.createAlarm(alarm.Daily)

	rec := s.do(http.MethodPost, "/v1/notifications/received", scheduler.Payload{AlarmID: a.ID, Kind: scheduler.PayloadKind})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(http.MethodDelete, "/v1/alarms/"+a.ID+"/", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Eventually(t, func() bool {
		_, ok := s.manager.LastOutcome(a.ID)
		return ok
	}, time.Second, 5*time.Millisecond)
	out, _ := s.manager.LastOutcome(a.ID)
	assert.Equal(t, dismissal.Cancelled, out.State)
	assert.Empty(t, s.manager.Active())

	rec = s.do(http.MethodGet, "/v1/alarms/"+a.ID+"/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationNotDue(t *testing.T) {
	s := newServer(t)
	a := s.createAlarm(alarm.Daily)
	s.clock.Add(10 * time.Minute)

	rec := s.do(http.MethodPost, "/v1/notifications/received", scheduler.Payload{AlarmID: a.ID, Kind: scheduler.PayloadKind})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, timing.NotDue, decode[notificationResponse](t, rec).Decision)

	rec = s.do(http.MethodGet, "/v1/sessions/"+a.ID+"/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/v1/notifications/tapped", scheduler.Payload{AlarmID: a.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKeystroke(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/v1/keystroke", keystrokeRequest{Current: "AB", Proposed: "ABc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABC", decode[keystrokeResponse](t, rec).Value)

	rec = s.do(http.MethodPost, "/v1/keystroke", keystrokeRequest{Current: "AB", Proposed: "ABCDEF"})
	assert.Equal(t, "AB", decode[keystrokeResponse](t, rec).Value)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", nil).Code)

	rec := s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
