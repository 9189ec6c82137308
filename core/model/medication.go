// Package model holds the medication and schedule records shared by the
// record store, the schedule engine and the dispenser.
package model

import "time"

// Medication types. A medication is either pills released through a
// gated compartment or a liquid pushed by the pump; the two never mix.
const (
	TypePill   = "pill"
	TypeLiquid = "liquid"
)

// Compartment layout of the device: three gated pill slots and one
// fixed liquid slot.
const (
	MaxPillCompartments = 3
	LiquidCompartment   = 4
)

// Mode selects the recurrence model of a schedule. Exactly one mode is
// active; fields of the inactive mode are ignored, not cleared.
type Mode int

const (
	// ModeWeekday repeats on a set of weekdays at a fixed time of day.
	ModeWeekday Mode = iota
	// ModeInterval repeats every IntervalHours, anchored to a fixed
	// time of day.
	ModeInterval
)

func (m Mode) String() string {
	if m == ModeInterval {
		return "interval"
	}
	return "weekday"
}

// Due is the next scheduled dispense point of a schedule. Never marks
// the end of treatment: no further doses will occur. The zero Due is
// "not yet computed".
type Due struct {
	At    time.Time
	Never bool
}

// Known reports whether Due names an actual point in time.
func (d Due) Known() bool { return !d.Never && !d.At.IsZero() }

// DueMillis renders the due point the way events carry timestamps:
// milliseconds since epoch, 0 when unset or Never.
func (d Due) DueMillis() int64 {
	if !d.Known() {
		return 0
	}
	return d.At.UnixMilli()
}

// Schedule is one recurring dose rule of a medication.
type Schedule struct {
	ID        string
	TimeOfDay int // minutes from midnight, 0..1439
	Mode      Mode

	// Interval mode.
	IntervalHours int
	TreatmentDays int
	TreatmentEnd  time.Time // zero = unbounded

	// Weekday mode. ISO numbering, 1=Monday .. 7=Sunday. Never empty
	// after ingestion: an empty selection defaults to all seven days.
	Weekdays []int

	NextDue       Due
	LastDispensed time.Time // zero = never
	LastTaken     time.Time // zero = never
}

// OnWeekday reports whether the ISO weekday (1=Monday..7=Sunday) is
// selected.
func (s *Schedule) OnWeekday(iso int) bool {
	for _, d := range s.Weekdays {
		if d == iso {
			return true
		}
	}
	return false
}

// Dispensed reports whether a dose has ever been released for this
// schedule.
func (s *Schedule) Dispensed() bool {
	return !s.LastDispensed.IsZero()
}

// AwaitingConfirmation reports a released dose whose intake the
// patient has not confirmed yet.
func (s *Schedule) AwaitingConfirmation() bool {
	return s.Dispensed() && s.LastTaken.Before(s.LastDispensed)
}

// Medication is one managed drug with its compartment assignment and
// dose rules. The full set is replaced wholesale on every sync; only
// the schedule timestamps and the pill inventory mutate in between.
type Medication struct {
	ID           string
	Name         string
	Compartment  int
	Type         string
	PillsPerDose int
	// RemainingPills is descriptive inventory, not a dispensing
	// precondition. Decremented on each recorded dose, floored at 0.
	RemainingPills int
	Schedules      []Schedule
}

// IsLiquid reports whether the medication dispenses through the pump.
func (m *Medication) IsLiquid() bool { return m.Type == TypeLiquid }

// Clone returns a deep copy. Snapshots handed to sweeps must not alias
// the registry's mutable records.
func (m *Medication) Clone() Medication {
	out := *m
	out.Schedules = make([]Schedule, len(m.Schedules))
	for i, s := range m.Schedules {
		cs := s
		cs.Weekdays = append([]int(nil), s.Weekdays...)
		out.Schedules[i] = cs
	}
	return out
}

// ISOWeekday maps a time.Time to ISO weekday numbering, 1=Monday
// through 7=Sunday.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// MinuteOfDay returns the wall-clock minutes elapsed since midnight.
func MinuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }

// AtTimeOfDay returns the instant on t's calendar day at the given
// minutes-from-midnight, in t's location.
func AtTimeOfDay(t time.Time, minutes int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), minutes/60, minutes%60, 0, 0, t.Location())
}
