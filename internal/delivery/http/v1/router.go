// Package v1 is the HTTP API the mobile shell talks to.
package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	mwlogger "github.com/Raimguzhinov/alarmd/internal/delivery/http/middleware/logger"
	"github.com/Raimguzhinov/alarmd/internal/dismissal"
	"github.com/Raimguzhinov/alarmd/internal/scheduler"
	"github.com/Raimguzhinov/alarmd/internal/timing"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

type Alarms interface {
	List(ctx context.Context) ([]alarm.Alarm, error)
	Get(ctx context.Context, id string) (alarm.Alarm, error)
	Create(ctx context.Context, d alarm.Draft) (alarm.Alarm, error)
	Update(ctx context.Context, id string, p alarm.Patch) (alarm.Alarm, error)
	Delete(ctx context.Context, id string) error
	Toggle(ctx context.Context, id string) (alarm.Alarm, error)
	Ringtone(ctx context.Context, alarmID string) (alarm.Ringtone, error)
	SetRingtone(ctx context.Context, alarmID string, rt alarm.Ringtone) (alarm.Alarm, error)
	DeleteRingtone(ctx context.Context, alarmID string) (alarm.Alarm, error)
}

type Sessions interface {
	Get(alarmID string) (*dismissal.Session, error)
	LastOutcome(alarmID string) (dismissal.Outcome, bool)
	Active() []dismissal.Snapshot
	Cancel(ctx context.Context, alarmID string) (dismissal.Outcome, error)
}

type Notifications interface {
	Handle(ctx context.Context, p scheduler.Payload, src timing.Source) (timing.Decision, error)
}

type Deps struct {
	Alarms        Alarms
	Sessions      Sessions
	Notifications Notifications
	Clock         clock.Clock
	Location      *time.Location
	CORS          cors.Options
}

// NewRouter -.
func NewRouter(handler *chi.Mux, deps Deps, l *logger.Logger) {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	r := &routes{
		alarms:        deps.Alarms,
		sessions:      deps.Sessions,
		notifications: deps.Notifications,
		clock:         deps.Clock,
		loc:           deps.Location,
		logger:        l.Component("http/v1"),
	}

	handler.Use(middleware.RequestID)
	handler.Use(mwlogger.New(l))
	handler.Use(middleware.Recoverer)
	handler.Use(cors.New(deps.CORS).Handler)

	handler.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler.Handle("/metrics", promhttp.Handler())

	handler.Route("/v1", func(v1 chi.Router) {
		v1.Route("/alarms", func(a chi.Router) {
			a.Get("/", r.listAlarms)
			a.Post("/", r.createAlarm)
			a.Get("/feed.ics", r.exportICal)
			a.Route("/{id}", func(one chi.Router) {
				one.Get("/", r.getAlarm)
				one.Patch("/", r.updateAlarm)
				one.Delete("/", r.deleteAlarm)
				one.Post("/toggle", r.toggleAlarm)
				one.Get("/ringtone", r.getRingtone)
				one.Put("/ringtone", r.setRingtone)
				one.Delete("/ringtone", r.deleteRingtone)
			})
		})

		v1.Post("/notifications/{source}", r.notification)

		v1.Route("/sessions", func(s chi.Router) {
			s.Get("/", r.listSessions)
			s.Route("/{id}", func(one chi.Router) {
				one.Get("/", r.getSession)
				one.Post("/submit", r.submit)
				one.Post("/regenerate", r.regenerate)
				one.Post("/cancel", r.cancelSession)
			})
		})

		v1.Post("/keystroke", r.keystroke)
	})
}

type routes struct {
	alarms        Alarms
	sessions      Sessions
	notifications Notifications
	clock         clock.Clock
	loc           *time.Location
	logger        *logger.Logger
}
