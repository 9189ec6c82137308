package records

import "gonum.org/v1/gonum/stat"

// Adherence summarizes how promptly confirmed doses follow their
// dispense across the current record set. Delays are measured from
// dispense to confirmation; schedules never confirmed contribute to
// Pending only.
type Adherence struct {
	Confirmed    int     `json:"confirmed"`
	Pending      int     `json:"pending"`
	MeanDelaySec float64 `json:"meanDelaySec"`
	StdDelaySec  float64 `json:"stdDelaySec"`
}

// AdherenceStats computes confirmation-delay statistics over all
// schedules that have dispensed at least once.
func (r *Registry) AdherenceStats() Adherence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var delays []float64
	var pending int
	for i := range r.meds {
		for _, s := range r.meds[i].Schedules {
			if s.LastDispensed.IsZero() {
				continue
			}
			if s.LastTaken.Before(s.LastDispensed) {
				pending++
				continue
			}
			delays = append(delays, s.LastTaken.Sub(s.LastDispensed).Seconds())
		}
	}
	a := Adherence{Confirmed: len(delays), Pending: pending}
	if len(delays) > 0 {
		a.MeanDelaySec = stat.Mean(delays, nil)
	}
	if len(delays) > 1 {
		a.StdDelaySec = stat.StdDev(delays, nil)
	}
	return a
}
