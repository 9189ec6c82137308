package events

import (
	"encoding/json"
	"time"
)

// Envelope is the outer frame of every message the device publishes.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Wire message types.
const (
	TypeMedicationAlert = "medication_alert"
	TypeDoseDispensed   = "dose_dispensed"
	TypeDoseMissed      = "dose_missed"
	TypeDoseReminder    = "dose_reminder"
	TypeTakenConfirmed  = "taken_confirmed"
	TypeCommandResult   = "command_result"
	TypeTelemetry       = "telemetry"
	TypePong            = "pong"
	TypeStatus          = "status"
)

// AlertPayload announces a due or dispensed dose.
type AlertPayload struct {
	MedicationID string `json:"medicationId"`
	ScheduleID   string `json:"scheduleId"`
	Name         string `json:"name"`
	Compartment  int    `json:"compartment"`
	Auto         bool   `json:"auto"`
	HardwareOK   bool   `json:"hardwareOk"`
}

// MissedPayload reports a missed dose found by the sweep.
type MissedPayload struct {
	MedicationID  string `json:"medicationId"`
	ScheduleID    string `json:"scheduleId"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	ScheduledTime int64  `json:"scheduledTime"`
	DispensedTime int64  `json:"dispensedTime,omitempty"`
}

// ReminderPayload announces an upcoming dose.
type ReminderPayload struct {
	MedicationID string `json:"medicationId"`
	Name         string `json:"name"`
	DueTime      int64  `json:"dueTime"`
}

// TakenPayload confirms patient intake.
type TakenPayload struct {
	MedicationID string `json:"medicationId"`
	ScheduleID   string `json:"scheduleId"`
	TakenTime    int64  `json:"takenTime"`
}

// ResultPayload acknowledges an inbound command.
type ResultPayload struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TelemetryPayload is the periodic device report.
type TelemetryPayload struct {
	UptimeSec      int64   `json:"uptimeSec"`
	Medications    int     `json:"medications"`
	AutoDispense   bool    `json:"autoDispense"`
	ArmedReminders int     `json:"armedReminders"`
	DosesConfirmed int     `json:"dosesConfirmed"`
	DosesPending   int     `json:"dosesPending"`
	MeanDelaySec   float64 `json:"meanDelaySec"`
}

// StatusPayload reports device availability on the status topic.
type StatusPayload struct {
	State string `json:"state"`
}

// Marshal frames payload in an envelope stamped at ts.
func Marshal(typ string, ts time.Time, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      typ,
		Timestamp: ts.UnixMilli(),
		Payload:   payload,
	})
}
