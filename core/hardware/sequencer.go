package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carebox/carebox/core/alert"
	"github.com/carebox/carebox/core/faults"
	"github.com/carebox/carebox/core/logger"
	"github.com/carebox/carebox/core/model"
)

// ErrSensorFailure marks a presence wait that ran out while the
// distance sensor kept failing, as opposed to a container that never
// showed up. It is always wrapped together with ErrTimeout.
var ErrSensorFailure = errors.New("presence sensor failure")

// Sequencer turns a dispense request into the ordered actuation steps:
// wait for a container on the tray, then run the gate or pump cycle.
// One dispense runs at a time.
type Sequencer struct {
	mu     sync.Mutex
	cfg    Config
	gates  GateDriver
	pump   PumpDriver
	sensor DistanceSensor
	alerts alert.Player
	log    logger.Logger
}

// NewSequencer wires the drivers behind a sequencer. cfg fields left
// at zero take their calibrated defaults.
func NewSequencer(cfg Config, gates GateDriver, pump PumpDriver, sensor DistanceSensor, alerts alert.Player, log logger.Logger) *Sequencer {
	cfg.SetDefaults()
	if alerts == nil {
		alerts = alert.NopPlayer{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Sequencer{cfg: cfg, gates: gates, pump: pump, sensor: sensor, alerts: alerts, log: log}
}

// Dispense delivers one dose of med. It blocks until the container is
// detected or the wait times out, then actuates the mechanics. The
// returned error is ErrTimeout when no container showed up and
// ErrInvalidArgument when the medication cannot be dispensed at all.
func (s *Sequencer) Dispense(ctx context.Context, med model.Medication) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := validate(med); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.awaitContainer(ctx, med.Name); err != nil {
		return err
	}

	var err error
	if med.IsLiquid() {
		err = s.dispenseLiquid(ctx, med.PillsPerDose)
	} else {
		err = s.dispensePills(ctx, med.Compartment, med.PillsPerDose)
	}
	if err != nil {
		return err
	}
	s.alerts.Play(alert.PatternDoseTaken)
	return nil
}

// SelfTest cycles every gate and takes a sensor reading. It never
// runs the pump.
func (s *Sequencer) SelfTest(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := 1; c <= model.MaxPillCompartments; c++ {
		if err := s.gates.Open(ctx, c); err != nil {
			return fmt.Errorf("self test: gate %d open: %w", c, err)
		}
		if err := s.gates.Close(ctx, c); err != nil {
			return fmt.Errorf("self test: gate %d close: %w", c, err)
		}
	}
	if _, err := s.sensor.Distance(ctx); err != nil {
		return fmt.Errorf("self test: sensor: %w", err)
	}
	return nil
}

// ready rejects actuation on a sequencer missing any of its drivers.
func (s *Sequencer) ready() error {
	if s.gates == nil || s.pump == nil || s.sensor == nil {
		return fmt.Errorf("%w: hardware not initialized", faults.ErrInvalidState)
	}
	return nil
}

func validate(med model.Medication) error {
	if med.IsLiquid() {
		if med.Compartment != model.LiquidCompartment {
			return fmt.Errorf("%w: liquid medication in compartment %d", faults.ErrInvalidArgument, med.Compartment)
		}
		return nil
	}
	if med.Compartment < 1 || med.Compartment > model.MaxPillCompartments {
		return fmt.Errorf("%w: pill compartment %d out of range", faults.ErrInvalidArgument, med.Compartment)
	}
	if med.PillsPerDose < 1 {
		return fmt.Errorf("%w: dose of %d pills", faults.ErrInvalidArgument, med.PillsPerDose)
	}
	return nil
}

// awaitContainer polls the presence sensor until a container sits on
// the tray or the deadline passes. Each missed read prompts the
// patient with the ready pattern. An expiry caused by a failing
// sensor carries ErrSensorFailure so callers can tell it from a
// container that never arrived.
func (s *Sequencer) awaitContainer(ctx context.Context, name string) error {
	deadline := time.Now().Add(s.cfg.MaxWait)
	var sensorErr error
	for {
		d, err := s.sensor.Distance(ctx)
		sensorErr = err
		if err != nil {
			s.log.Warnf("presence read failed: %v", err)
		} else if d < s.cfg.PresenceThreshold {
			return nil
		}
		if !time.Now().Before(deadline) {
			s.alerts.Play(alert.PatternDoseMissed)
			if sensorErr != nil {
				return fmt.Errorf("%w: %w: %v", faults.ErrTimeout, ErrSensorFailure, sensorErr)
			}
			return fmt.Errorf("%w: no container within %s", faults.ErrTimeout, s.cfg.MaxWait)
		}
		s.alerts.Play(alert.PatternDoseReady)
		s.log.Debugf("waiting for container (%s)", name)
		if err := sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// dispenseLiquid runs the pump for a clamped, dose-proportional time.
// A watchdog timer forces the pump off should the normal stop path
// never execute.
func (s *Sequencer) dispenseLiquid(ctx context.Context, units int) error {
	runtime := s.cfg.PumpRuntime(units)
	if err := s.pump.Start(s.cfg.PumpDuty); err != nil {
		return fmt.Errorf("pump start: %w", err)
	}
	failSafe := time.AfterFunc(runtime+s.cfg.FailSafeMargin, func() {
		s.log.Errorf("pump fail-safe fired after %s", runtime)
		if err := s.pump.Stop(); err != nil {
			s.log.Errorf("pump fail-safe stop: %v", err)
		}
	})
	defer failSafe.Stop()

	waitErr := sleep(ctx, runtime)
	if err := s.pump.Stop(); err != nil {
		return fmt.Errorf("pump stop: %w", err)
	}
	return waitErr
}

// dispensePills opens and closes the compartment gate once per pill.
// The gate is forced closed on every exit path.
func (s *Sequencer) dispensePills(ctx context.Context, compartment, count int) error {
	defer func() {
		if err := s.gates.Close(context.Background(), compartment); err != nil {
			s.log.Errorf("forced close of gate %d: %v", compartment, err)
		}
	}()
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := sleep(ctx, s.cfg.InterUnitPause); err != nil {
				return err
			}
		}
		if err := s.gates.Open(ctx, compartment); err != nil {
			return fmt.Errorf("gate %d open: %w", compartment, err)
		}
		if err := sleep(ctx, s.cfg.SettleTime); err != nil {
			return err
		}
		if err := s.gates.Close(ctx, compartment); err != nil {
			return fmt.Errorf("gate %d close: %w", compartment, err)
		}
		if err := sleep(ctx, s.cfg.SettleTime); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
