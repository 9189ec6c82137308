package records

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/carebox/carebox/core/faults"
	"github.com/carebox/carebox/core/model"
)

// Wire format of the sync-all command payload. Field names follow the
// companion app's JSON.
type syncPayload struct {
	Medications []medicationSpec `json:"medications"`
}

type medicationSpec struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Compartment  int            `json:"compartment"`
	Type         string         `json:"type"`
	PillsPerDose int            `json:"pillsPerDose"`
	TotalPills   int            `json:"totalPills"`
	Schedules    []scheduleSpec `json:"schedules"`
}

type scheduleSpec struct {
	ID            string `json:"id"`
	Time          *int   `json:"time"`
	IntervalMode  bool   `json:"intervalMode"`
	IntervalHours int    `json:"intervalHours"`
	TreatmentDays int    `json:"treatmentDays"`
	Days          []int  `json:"days"`
}

const defaultTimeOfDay = 8 * 60 // 08:00

// Sync replaces the whole medication set from a raw sync payload. The
// previous set is superseded, never merged: records absent from the
// payload are deleted from the store. Every due point is recomputed
// against now before persisting.
func (r *Registry) Sync(raw []byte, now time.Time) (int, error) {
	var p syncPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, fmt.Errorf("%w: %v", faults.ErrPayload, err)
	}

	meds := make([]model.Medication, 0, len(p.Medications))
	for _, ms := range p.Medications {
		if ms.ID == "" || ms.Name == "" || ms.Compartment == 0 || ms.Type == "" {
			r.log.Warnf("sync: medication missing required fields, skipping")
			continue
		}
		med := model.Medication{
			ID:          ms.ID,
			Name:        ms.Name,
			Compartment: ms.Compartment,
			Type:        ms.Type,
		}
		if ms.Type == model.TypePill {
			med.PillsPerDose = ms.PillsPerDose
			if med.PillsPerDose < 1 {
				med.PillsPerDose = 1
			}
			med.RemainingPills = ms.TotalPills
		}
		for i, ss := range ms.Schedules {
			med.Schedules = append(med.Schedules, buildSchedule(ss, i, now))
		}
		meds = append(meds, med)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.meds
	r.meds = meds
	r.recomputeLocked(now)

	kept := make(map[string]bool, len(meds))
	for i := range meds {
		kept[meds[i].ID] = true
	}
	for i := range old {
		if !kept[old[i].ID] {
			if err := r.store.Delete(old[i].ID); err != nil {
				r.log.Warnf("sync: delete superseded %s: %v", old[i].ID, err)
			}
		}
	}
	var firstErr error
	for i := range r.meds {
		if err := r.persistLocked(&r.meds[i]); err != nil {
			r.log.Errorf("sync: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	r.log.Infof("synced %d medications", len(meds))
	return len(meds), firstErr
}

func buildSchedule(ss scheduleSpec, idx int, now time.Time) model.Schedule {
	s := model.Schedule{
		ID:        ss.ID,
		TimeOfDay: defaultTimeOfDay,
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("sched_%d", idx)
	}
	// Midnight (0) is a valid anchor; only an absent or out-of-range
	// field falls back to the default.
	if ss.Time != nil && *ss.Time >= 0 && *ss.Time <= 1439 {
		s.TimeOfDay = *ss.Time
	}
	if ss.IntervalMode {
		s.Mode = model.ModeInterval
		s.IntervalHours = ss.IntervalHours
		if s.IntervalHours < 1 {
			s.IntervalHours = 24
		}
		if ss.TreatmentDays > 0 {
			s.TreatmentDays = ss.TreatmentDays
			s.TreatmentEnd = now.Add(time.Duration(ss.TreatmentDays) * 24 * time.Hour)
		}
		return s
	}
	s.Mode = model.ModeWeekday
	seen := [8]bool{}
	for _, d := range ss.Days {
		if d >= 1 && d <= 7 {
			seen[d] = true
		}
	}
	for d := 1; d <= 7; d++ {
		if seen[d] {
			s.Weekdays = append(s.Weekdays, d)
		}
	}
	if len(s.Weekdays) == 0 {
		// Nothing selected means every day.
		s.Weekdays = []int{1, 2, 3, 4, 5, 6, 7}
	}
	sort.Ints(s.Weekdays)
	return s
}
