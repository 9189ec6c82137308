// Package clock abstracts the device time source. The dispenser refuses
// to evaluate schedules until the clock is plausible: on a freshly
// booted device the RTC reads some time in 1970 until NTP catches up,
// and acting on that time would dispense doses at random.
package clock

import (
	"sync"
	"time"
)

// ReliableYear is the threshold below which the system time is treated
// as unsynchronized.
const ReliableYear = 2022

// Clock supplies the current time and a plausibility check.
type Clock interface {
	Now() time.Time
	// Reliable reports whether the current time can be trusted for
	// schedule decisions.
	Reliable() bool
}

// System reads the operating system clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) Reliable() bool { return time.Now().Year() >= ReliableYear }

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu       sync.Mutex
	now      time.Time
	reliable bool
}

// NewFake returns a Fake pinned at t and reporting a reliable time.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t, reliable: true}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Reliable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reliable
}

// Set pins the clock at t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// SetReliable overrides the plausibility answer.
func (f *Fake) SetReliable(ok bool) {
	f.mu.Lock()
	f.reliable = ok
	f.mu.Unlock()
}
