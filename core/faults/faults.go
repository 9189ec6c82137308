// Package faults defines the error taxonomy shared by the record store,
// the dispenser and the hardware sequencer. Callers classify failures
// with errors.Is against these sentinels; wrapped messages carry the
// detail.
package faults

import "errors"

var (
	// ErrInvalidArgument marks malformed identifiers or an
	// inconsistent compartment/type combination.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks an unknown medication or schedule id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks operations attempted before their
	// precondition holds: hardware or store not initialized, or a
	// taken-confirmation before the dose was dispensed.
	ErrInvalidState = errors.New("invalid state")

	// ErrTimeout marks a container that never appeared under the
	// spout or a sensor echo that never returned.
	ErrTimeout = errors.New("timeout")

	// ErrStorage marks a failed persistence write or commit.
	ErrStorage = errors.New("storage failure")

	// ErrPayload marks a sync payload that could not be decoded into
	// medication records.
	ErrPayload = errors.New("malformed payload")
)
