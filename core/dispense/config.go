package dispense

import "time"

// Config tunes the dispense loop.
type Config struct {
	// CheckInterval is the period of the due-dose check.
	CheckInterval time.Duration `json:"check_interval"`
	// WakeTimeout bounds how long the loop sleeps without a wake.
	WakeTimeout time.Duration `json:"wake_timeout"`
	// IdleSleep is the pause taken when no medications are loaded.
	IdleSleep time.Duration `json:"idle_sleep"`
	// ClockRetry is the pause between checks of clock reliability.
	ClockRetry time.Duration `json:"clock_retry"`

	// MissedEvery runs the missed-dose sweep every N check cycles.
	MissedEvery int `json:"missed_every"`
	// MissedThreshold is the grace period before a dose counts as
	// missed.
	MissedThreshold time.Duration `json:"missed_threshold"`

	// ReminderEvery re-arms reminders every N check cycles.
	ReminderEvery int `json:"reminder_every"`
	// ReminderLead is how far before the due point a reminder fires.
	ReminderLead time.Duration `json:"reminder_lead"`
	// MaxReminders caps the number of simultaneously armed reminders.
	MaxReminders int `json:"max_reminders"`

	// AutoDispense starts the engine dispensing without a command.
	AutoDispense bool `json:"auto_dispense"`
	// RecordOnFailure marks a dose dispensed even when the mechanics
	// failed, so the cycle still advances and the dose is not retried
	// forever.
	RecordOnFailure bool `json:"record_on_failure"`
}

// SetDefaults fills unset durations and counters.
func (c *Config) SetDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.WakeTimeout <= 0 {
		c.WakeTimeout = 60 * time.Second
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = 5 * time.Minute
	}
	if c.ClockRetry <= 0 {
		c.ClockRetry = 30 * time.Second
	}
	if c.MissedEvery <= 0 {
		c.MissedEvery = 10
	}
	if c.MissedThreshold <= 0 {
		c.MissedThreshold = 30 * time.Minute
	}
	if c.ReminderEvery <= 0 {
		c.ReminderEvery = 20
	}
	if c.ReminderLead <= 0 {
		c.ReminderLead = 5 * time.Minute
	}
	if c.MaxReminders <= 0 {
		c.MaxReminders = 10
	}
}
