package timing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "alarmd",
	Subsystem: "timing",
	Name:      "dispatch_total",
	Help:      "Delivered notifications by source and dispatch decision.",
}, []string{"source", "decision"})
