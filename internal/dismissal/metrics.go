package dismissal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const _namespace = "alarmd"

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "dismissal",
		Name:      "sessions_started_total",
		Help:      "Ringing sessions that entered the ringing state.",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: _namespace,
		Subsystem: "dismissal",
		Name:      "sessions_active",
		Help:      "Sessions currently ringing.",
	})

	sessionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "dismissal",
		Name:      "session_outcomes_total",
		Help:      "Finished sessions by terminal state.",
	}, []string{"state"})

	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "dismissal",
		Name:      "submissions_total",
		Help:      "Code submissions by result.",
	}, []string{"result"})

	codeRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "dismissal",
		Name:      "code_rotations_total",
		Help:      "Dismissal codes replaced during a session.",
	}, []string{"reason"})

	audioRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "dismissal",
		Name:      "audio_restarts_total",
		Help:      "Sounds restarted after ending on their own.",
	})

	degradedResources = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: "dismissal",
		Name:      "degraded_resources_total",
		Help:      "Ringing resources that could not be acquired.",
	}, []string{"resource"})
)
