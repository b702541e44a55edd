package metrics

import "github.com/kilianp07/fleetdispatch/core/status"

// MultiSink fans events out to multiple sinks. Optional recorders are only
// invoked on sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordMutation forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordMutation(ev MutationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordMutation(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordReconcile forwards pass summaries.
func (m *MultiSink) RecordReconcile(ev ReconcileEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ReconcileRecorder); ok {
			if err := rec.RecordReconcile(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSideEffect forwards side-effect failures.
func (m *MultiSink) RecordSideEffect(ev SideEffectEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SideEffectRecorder); ok {
			if err := rec.RecordSideEffect(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordWorkingSet forwards working-set gauges.
func (m *MultiSink) RecordWorkingSet(counts map[status.Status]int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(WorkingSetRecorder); ok {
			if err := rec.RecordWorkingSet(counts); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordNotification forwards bus notification counts.
func (m *MultiSink) RecordNotification(kind string) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(NotificationRecorder); ok {
			if err := rec.RecordNotification(kind); err != nil {
				return err
			}
		}
	}
	return nil
}
