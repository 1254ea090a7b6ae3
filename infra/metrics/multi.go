package metrics

import coremetrics "github.com/fixnow/dispatch/core/metrics"

// MultiSink fans match results out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordMatchResult forwards the results to all sinks, returning the
// first error encountered.
func (m *MultiSink) RecordMatchResult(results []coremetrics.MatchResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordMatchResult(results); err != nil {
			return err
		}
	}
	return nil
}
