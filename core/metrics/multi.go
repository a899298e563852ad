package metrics

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordRun(rec RunRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordGroupLoads forwards group loads when supported by the sink.
func (m *MultiSink) RecordGroupLoads(loads []GroupLoad) error {
	for _, s := range m.Sinks {
		if r, ok := s.(GroupLoadRecorder); ok {
			if err := r.RecordGroupLoads(loads); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordMoves forwards rebalance moves when supported by the sink.
func (m *MultiSink) RecordMoves(moves []MoveEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(MoveRecorder); ok {
			if err := r.RecordMoves(moves); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPublish forwards publish outcomes when supported by the sink.
func (m *MultiSink) RecordPublish(ev PublishEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(PublishRecorder); ok {
			if err := r.RecordPublish(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFailure forwards failed runs when supported by the sink.
func (m *MultiSink) RecordFailure(ev FailureEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(FailureRecorder); ok {
			if err := r.RecordFailure(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
