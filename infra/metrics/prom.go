package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/fieldserv/matchd/core/metrics"
)

// PromSink records assignment events in Prometheus metrics.
type PromSink struct {
	attempts    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	escalations prometheus.Counter
}

// NewPromSink registers assignment metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "match_attempt_events_total",
		Help: "Total number of resolved contact attempts",
	}, []string{"provider_id", "service_type", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "match_response_latency_seconds",
		Help:    "Time between contacting a provider and its response",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider_id", "outcome"})
	escalations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "match_escalation_events_total",
		Help: "Number of requests escalated for admin attention",
	})

	if err := reg.Register(attempts); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			attempts = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(escalations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			escalations = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}

	return &PromSink{attempts: attempts, latency: latency, escalations: escalations}, nil
}

// RecordAssignment increments the attempt counter for each record.
func (s *PromSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	for _, r := range recs {
		s.attempts.WithLabelValues(r.ProviderID, r.ServiceType, r.Outcome.String()).Inc()
	}
	return nil
}

// RecordResponseLatency records the response latency histogram.
func (s *PromSink) RecordResponseLatency(recs []coremetrics.ResponseLatency) error {
	for _, r := range recs {
		s.latency.WithLabelValues(r.ProviderID, r.Outcome.String()).Observe(r.Latency.Seconds())
	}
	return nil
}

// RecordEscalation increments the escalation counter.
func (s *PromSink) RecordEscalation(coremetrics.EscalationEvent) error {
	s.escalations.Inc()
	return nil
}

// StartPromServer exposes /metrics on the given port and blocks.
func StartPromServer(port string) error {
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("invalid prometheus port %q", port)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
