package metrics

import coremetrics "github.com/carebox/carebox/core/metrics"

// MultiSink fans dose events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDose forwards the event to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordDose(ev coremetrics.DoseEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDose(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordMissed forwards missed-dose events when supported by the sink.
func (m *MultiSink) RecordMissed(ev coremetrics.MissedDoseEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.MissedRecorder); ok {
			if err := rec.RecordMissed(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordArmedReminders forwards the gauge when supported by the sink.
func (m *MultiSink) RecordArmedReminders(n int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ReminderRecorder); ok {
			if err := rec.RecordArmedReminders(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordAdherence forwards the aggregates when supported by the sink.
func (m *MultiSink) RecordAdherence(confirmed, pending int, meanDelaySec float64) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.AdherenceRecorder); ok {
			if err := rec.RecordAdherence(confirmed, pending, meanDelaySec); err != nil {
				return err
			}
		}
	}
	return nil
}
