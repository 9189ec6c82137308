// Package hardware provides the simulated rig used when the engine
// runs without physical drivers, and as the default for development.
package hardware

import (
	"context"
	"errors"
	"sync"

	"github.com/carebox/carebox/core/logger"
)

// SimRig implements the gate, pump and presence ports in memory. The
// tray starts occupied so dispenses in a dev loop complete without
// anyone standing next to the machine.
type SimRig struct {
	mu        sync.Mutex
	log       logger.Logger
	present   bool
	pumpOn    bool
	openGates map[int]bool
	actions   []string

	// FailGates and FailPump force actuation errors.
	FailGates bool
	FailPump  bool
}

// NewSimRig returns a rig with a container on the tray.
func NewSimRig(log logger.Logger) *SimRig {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &SimRig{log: log, present: true, openGates: make(map[int]bool)}
}

// SetPresent puts or removes the container on the tray.
func (r *SimRig) SetPresent(p bool) {
	r.mu.Lock()
	r.present = p
	r.mu.Unlock()
}

// Actions returns the recorded actuation history.
func (r *SimRig) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

// PumpOn reports whether the pump is currently running.
func (r *SimRig) PumpOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pumpOn
}

func (r *SimRig) record(action string) {
	r.actions = append(r.actions, action)
	r.log.Debugf("sim rig: %s", action)
}

func (r *SimRig) Open(_ context.Context, compartment int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailGates {
		return errors.New("sim gate failure")
	}
	r.openGates[compartment] = true
	r.record("open")
	return nil
}

func (r *SimRig) Close(_ context.Context, compartment int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openGates[compartment] = false
	r.record("close")
	return nil
}

func (r *SimRig) Start(duty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailPump {
		return errors.New("sim pump failure")
	}
	r.pumpOn = true
	r.record("pump on")
	return nil
}

func (r *SimRig) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pumpOn = false
	r.record("pump off")
	return nil
}

// Distance reports a close reading while the container is present and
// an out-of-range one otherwise.
func (r *SimRig) Distance(context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.present {
		return 2.0, nil
	}
	return 120.0, nil
}
