package events

import (
	"time"

	"github.com/carebox/carebox/core/model"
)

// MQTT topics the device speaks on.
const (
	TopicCommands     = "/device/commands"
	TopicStatus       = "/device/status"
	TopicTelemetry    = "/device/telemetry"
	TopicConfirmation = "/device/med_confirmation"
	TopicTaken        = "/device/medication_taken"
)

// MissedStatus classifies how a dose was missed.
type MissedStatus string

const (
	// MissedNeverDispensed means the due point passed without any
	// dispense, automatic or manual.
	MissedNeverDispensed MissedStatus = "never_dispensed"
	// MissedNotTaken means the dose left the device but intake was
	// never confirmed.
	MissedNotTaken MissedStatus = "dispensed_not_taken"
)

// DueEvent is published when a schedule reaches its due point.
type DueEvent struct {
	Medication model.Medication
	Schedule   model.Schedule
	At         time.Time
}

// DispensedEvent is published after a dispense attempt.
type DispensedEvent struct {
	Medication model.Medication
	Schedule   model.Schedule
	At         time.Time
	Auto       bool
	HardwareOK bool
}

// MissedEvent is published by the missed-dose sweep.
type MissedEvent struct {
	Medication  model.Medication
	Schedule    model.Schedule
	Status      MissedStatus
	ScheduledAt time.Time
	DispensedAt time.Time
}

// ReminderEvent is published when a pre-dose reminder fires.
type ReminderEvent struct {
	MedicationID string
	Name         string
	DueAt        time.Time
}

// TakenEvent is published when the patient confirms intake.
type TakenEvent struct {
	Medication model.Medication
	Schedule   model.Schedule
	At         time.Time
}
