// Package hardware drives the dispensing mechanics: compartment gates,
// the liquid pump and the presence sensor above the tray.
package hardware

import "context"

// GateDriver actuates the gate of a pill compartment.
type GateDriver interface {
	Open(ctx context.Context, compartment int) error
	Close(ctx context.Context, compartment int) error
}

// PumpDriver controls the liquid dosing pump.
type PumpDriver interface {
	Start(duty int) error
	Stop() error
}

// DistanceSensor measures the distance to the nearest obstacle over
// the tray, in centimeters.
type DistanceSensor interface {
	Distance(ctx context.Context) (float64, error)
}
