package metrics

import coremetrics "github.com/fieldserv/matchd/core/metrics"

// MultiSink fans assignment records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordResponseLatency forwards latency records when supported by the sink.
func (m *MultiSink) RecordResponseLatency(recs []coremetrics.ResponseLatency) error {
	for _, s := range m.Sinks {
		if lr, ok := s.(coremetrics.LatencyRecorder); ok {
			if err := lr.RecordResponseLatency(recs); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordEscalation forwards escalation events when supported by the sink.
func (m *MultiSink) RecordEscalation(ev coremetrics.EscalationEvent) error {
	for _, s := range m.Sinks {
		if er, ok := s.(coremetrics.EscalationRecorder); ok {
			if err := er.RecordEscalation(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
