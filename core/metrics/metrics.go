// Package metrics defines the observability events recorded by the
// dispense engine and the sink interfaces that consume them.
package metrics

import (
	"time"

	"github.com/carebox/carebox/core/events"
)

// DoseEvent represents a single dispense attempt to be recorded.
type DoseEvent struct {
	MedicationID string
	ScheduleID   string
	Name         string
	Compartment  int
	Auto         bool
	Success      bool
	Actuation    time.Duration
	Time         time.Time
}

// MetricsSink records dose events for observability purposes.
type MetricsSink interface {
	RecordDose(ev DoseEvent) error
}

// MissedDoseEvent captures a dose flagged by the missed sweep.
type MissedDoseEvent struct {
	MedicationID string
	ScheduleID   string
	Status       events.MissedStatus
	ScheduledAt  time.Time
	Time         time.Time
}

// MissedRecorder records missed doses.
type MissedRecorder interface {
	RecordMissed(ev MissedDoseEvent) error
}

// ReminderRecorder records the number of currently armed reminders.
type ReminderRecorder interface {
	RecordArmedReminders(n int) error
}

// AdherenceRecorder records adherence aggregates for the telemetry
// report.
type AdherenceRecorder interface {
	RecordAdherence(confirmed, pending int, meanDelaySec float64) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDose(DoseEvent) error              { return nil }
func (NopSink) RecordMissed(MissedDoseEvent) error      { return nil }
func (NopSink) RecordArmedReminders(int) error          { return nil }
func (NopSink) RecordAdherence(int, int, float64) error { return nil }
