package assign

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	attemptsTotal    *prometheus.CounterVec
	responseLatency  *prometheus.HistogramVec
	escalationsTotal prometheus.Counter
	autoCancelTotal  prometheus.Counter
	activeRequests   prometheus.Gauge
	notifySuccess    prometheus.Counter
	notifyFailure    prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Gauge, prometheus.Counter, prometheus.Counter) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assignment_response_latency_seconds",
			Help:    "Time between contacting a provider and its response",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	att := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignment_attempts_total",
			Help: "Number of provider contact attempts by outcome",
		},
		[]string{"outcome", "service_type"},
	)
	esc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assignment_escalations_total",
			Help: "Number of requests escalated to admin attention",
		},
	)
	acx := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assignment_auto_cancellations_total",
			Help: "Number of requests auto-cancelled after the deadline",
		},
	)
	act := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "assignment_active_requests",
			Help: "Number of requests currently in a non-terminal state",
		},
	)
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_dispatch_success_total",
			Help: "Number of successful notification dispatches",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_dispatch_failure_total",
			Help: "Number of failed notification dispatches",
		},
	)
	return lat, att, esc, acx, act, suc, fail
}

func init() {
	responseLatency, attemptsTotal, escalationsTotal, autoCancelTotal, activeRequests, notifySuccess, notifyFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers assignment metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		responseLatency, attemptsTotal, escalationsTotal, autoCancelTotal, activeRequests, notifySuccess, notifyFailure,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
