// Package records owns the in-memory medication set and mirrors every
// mutation to the persistent store. All mutation funnels through the
// Registry; sweeps read deep-copied snapshots so they never observe a
// half-applied update.
package records

import (
	"fmt"
	"sync"
	"time"

	"github.com/carebox/carebox/core/faults"
	"github.com/carebox/carebox/core/logger"
	"github.com/carebox/carebox/core/model"
	"github.com/carebox/carebox/core/schedule"
	"github.com/carebox/carebox/core/storage"
)

// Registry is the record store: the authoritative list of medications
// and their schedules.
type Registry struct {
	mu    sync.RWMutex
	meds  []model.Medication
	store storage.Store
	log   logger.Logger
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store storage.Store, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Registry{store: store, log: log}
}

// Load replaces the in-memory set with the persisted records and
// recomputes every due point against now.
func (r *Registry) Load(now time.Time) error {
	meds, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("%w: load records: %v", faults.ErrStorage, err)
	}
	r.mu.Lock()
	r.meds = meds
	r.recomputeLocked(now)
	r.mu.Unlock()
	r.log.Infof("loaded %d medications from store", len(meds))
	return nil
}

// Count returns the number of medications.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.meds)
}

// Get returns a deep copy of the medication with the given id.
func (r *Registry) Get(id string) (model.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.meds {
		if r.meds[i].ID == id {
			return r.meds[i].Clone(), nil
		}
	}
	return model.Medication{}, fmt.Errorf("%w: medication %q", faults.ErrNotFound, id)
}

// Snapshot returns a deep copy of the full medication set.
func (r *Registry) Snapshot() []model.Medication {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Medication, len(r.meds))
	for i := range r.meds {
		out[i] = r.meds[i].Clone()
	}
	return out
}

// DueNow selects the schedule that should dispense next: the smallest
// next-due point that has arrived (due > 0 and due <= now). Ties keep
// the first match in encounter order. The second return is the owning
// medication.
func (r *Registry) DueNow(now time.Time) (model.Medication, model.Schedule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		bestMed   int = -1
		bestSched int
		bestAt    time.Time
	)
	for i := range r.meds {
		for j := range r.meds[i].Schedules {
			due := r.meds[i].Schedules[j].NextDue
			if !due.Known() || due.At.After(now) {
				continue
			}
			if bestMed < 0 || due.At.Before(bestAt) {
				bestMed, bestSched, bestAt = i, j, due.At
			}
		}
	}
	if bestMed < 0 {
		return model.Medication{}, model.Schedule{}, false
	}
	med := r.meds[bestMed].Clone()
	return med, med.Schedules[bestSched], true
}

// ActiveSchedule re-scans the medication and returns the first schedule
// not yet dispensed for its current cycle (next due after the last
// dispense). This guards against releasing the same cycle twice.
func (r *Registry) ActiveSchedule(medID string) (model.Schedule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.meds {
		if r.meds[i].ID != medID {
			continue
		}
		for _, s := range r.meds[i].Schedules {
			if s.NextDue.Known() && s.NextDue.At.After(s.LastDispensed) {
				cs := s
				cs.Weekdays = append([]int(nil), s.Weekdays...)
				return cs, true
			}
		}
	}
	return model.Schedule{}, false
}

// MarkDispensed records a dispense: stamps the last-dispensed time,
// decrements pill inventory (floored at zero), recomputes the next due
// point and persists the medication.
func (r *Registry) MarkDispensed(medID, schedID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	med, sched, err := r.findLocked(medID, schedID)
	if err != nil {
		return err
	}
	sched.LastDispensed = now
	if med.Type == model.TypePill {
		med.RemainingPills -= med.PillsPerDose
		if med.RemainingPills < 0 {
			med.RemainingPills = 0
		}
	}
	sched.NextDue = schedule.NextDue(sched, now)
	return r.persistLocked(med)
}

// ConfirmTaken records user confirmation of a dose. It fails with
// ErrInvalidState when no dispensed dose is awaiting confirmation;
// LastTaken is not touched in that case.
func (r *Registry) ConfirmTaken(medID, schedID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	med, sched, err := r.findLocked(medID, schedID)
	if err != nil {
		return err
	}
	if !sched.AwaitingConfirmation() {
		return fmt.Errorf("%w: schedule %s has no dose awaiting confirmation", faults.ErrInvalidState, schedID)
	}
	sched.LastTaken = now
	return r.persistLocked(med)
}

// RecomputeAll refreshes every schedule's due point against now and
// persists the result.
func (r *Registry) RecomputeAll(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recomputeLocked(now)
	var first error
	for i := range r.meds {
		if err := r.persistLocked(&r.meds[i]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Registry) recomputeLocked(now time.Time) {
	for i := range r.meds {
		for j := range r.meds[i].Schedules {
			s := &r.meds[i].Schedules[j]
			s.NextDue = schedule.NextDue(s, now)
		}
	}
}

func (r *Registry) findLocked(medID, schedID string) (*model.Medication, *model.Schedule, error) {
	for i := range r.meds {
		if r.meds[i].ID != medID {
			continue
		}
		for j := range r.meds[i].Schedules {
			if r.meds[i].Schedules[j].ID == schedID {
				return &r.meds[i], &r.meds[i].Schedules[j], nil
			}
		}
		return nil, nil, fmt.Errorf("%w: schedule %q of medication %q", faults.ErrNotFound, schedID, medID)
	}
	return nil, nil, fmt.Errorf("%w: medication %q", faults.ErrNotFound, medID)
}

func (r *Registry) persistLocked(med *model.Medication) error {
	if err := r.store.Save(med.Clone()); err != nil {
		return fmt.Errorf("%w: save %s: %v", faults.ErrStorage, med.ID, err)
	}
	if err := r.store.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", faults.ErrStorage, err)
	}
	return nil
}
