package hardware

import "time"

// Config holds the mechanical timings of the dispenser.
type Config struct {
	// PresenceThreshold is the sensor distance, in centimeters, under
	// which a container is considered present on the tray.
	PresenceThreshold float64 `json:"presence_threshold_cm"`
	// PollInterval is the pause between presence reads while waiting
	// for a container.
	PollInterval time.Duration `json:"poll_interval"`
	// MinReadSpacing is the shortest allowed gap between two sensor
	// reads. PollInterval is raised to it when configured lower.
	MinReadSpacing time.Duration `json:"min_read_spacing"`
	// MaxWait bounds how long a dispense waits for a container.
	MaxWait time.Duration `json:"max_wait"`

	// SettleTime is how long a gate is held open, and then closed,
	// per pill.
	SettleTime time.Duration `json:"settle_time"`
	// InterUnitPause separates consecutive pills of one dose.
	InterUnitPause time.Duration `json:"inter_unit_pause"`

	// PumpDuty is the PWM duty applied to the pump, in percent.
	PumpDuty int `json:"pump_duty"`
	// LiquidUnitTime is the pump runtime per dose unit.
	LiquidUnitTime time.Duration `json:"liquid_unit_time"`
	// LiquidMinTime and LiquidMaxTime clamp the total pump runtime.
	LiquidMinTime time.Duration `json:"liquid_min_time"`
	LiquidMaxTime time.Duration `json:"liquid_max_time"`
	// FailSafeMargin is added to the runtime for the watchdog that
	// forces the pump off if the normal stop never runs.
	FailSafeMargin time.Duration `json:"fail_safe_margin"`

	// SelfTest cycles the gates and probes the sensor at startup.
	SelfTest bool `json:"self_test"`
}

// SetDefaults fills unset fields with the values the mechanics were
// calibrated with.
func (c *Config) SetDefaults() {
	if c.PresenceThreshold <= 0 {
		c.PresenceThreshold = 5.0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MinReadSpacing <= 0 {
		c.MinReadSpacing = 60 * time.Millisecond
	}
	if c.PollInterval < c.MinReadSpacing {
		c.PollInterval = c.MinReadSpacing
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 60 * time.Second
	}
	if c.SettleTime <= 0 {
		c.SettleTime = time.Second
	}
	if c.InterUnitPause <= 0 {
		c.InterUnitPause = 200 * time.Millisecond
	}
	if c.PumpDuty <= 0 || c.PumpDuty > 100 {
		c.PumpDuty = 80
	}
	if c.LiquidUnitTime <= 0 {
		c.LiquidUnitTime = 500 * time.Millisecond
	}
	if c.LiquidMinTime <= 0 {
		c.LiquidMinTime = 500 * time.Millisecond
	}
	if c.LiquidMaxTime <= 0 {
		c.LiquidMaxTime = 5 * time.Second
	}
	if c.FailSafeMargin <= 0 {
		c.FailSafeMargin = 100 * time.Millisecond
	}
}

// PumpRuntime converts a dose of units into a clamped pump runtime.
func (c Config) PumpRuntime(units int) time.Duration {
	d := time.Duration(units) * c.LiquidUnitTime
	if d < c.LiquidMinTime {
		d = c.LiquidMinTime
	}
	if d > c.LiquidMaxTime {
		d = c.LiquidMaxTime
	}
	return d
}
