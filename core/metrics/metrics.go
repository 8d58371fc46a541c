// Package metrics defines the sink interfaces used to record assignment
// outcomes. Concrete sinks (Prometheus, InfluxDB) live in infra/metrics.
package metrics

import (
	"time"

	"github.com/fieldserv/matchd/core/model"
)

// AssignmentRecord represents one resolved contact attempt to be recorded.
type AssignmentRecord struct {
	RequestID   string
	ProviderID  string
	ServiceType string
	Priority    model.Priority
	Outcome     model.AttemptOutcome
	Score       float64
	Round       int
	Time        time.Time
}

// MetricsSink records assignment outcomes for observability purposes.
type MetricsSink interface {
	RecordAssignment(recs []AssignmentRecord) error
}

// ResponseLatency is the time between contacting a provider and its answer.
type ResponseLatency struct {
	RequestID  string
	ProviderID string
	Outcome    model.AttemptOutcome
	Latency    time.Duration
}

// LatencyRecorder is implemented by sinks able to record response latency.
type LatencyRecorder interface {
	RecordResponseLatency(recs []ResponseLatency) error
}

// EscalationEvent captures a request flagged for admin attention.
type EscalationEvent struct {
	RequestID string
	Reason    string
	Time      time.Time
}

// EscalationRecorder records escalation events.
type EscalationRecorder interface {
	RecordEscalation(ev EscalationEvent) error
}

// NopSink implements all sink interfaces with no-op methods.
type NopSink struct{}

func (NopSink) RecordAssignment([]AssignmentRecord) error     { return nil }
func (NopSink) RecordResponseLatency([]ResponseLatency) error { return nil }
func (NopSink) RecordEscalation(EscalationEvent) error        { return nil }
