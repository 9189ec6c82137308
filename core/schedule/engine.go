// Package schedule computes when a dose rule is next due. NextDue is a
// pure function of the schedule and the supplied instant, so a decision
// pass that evaluates many schedules against one `now` is deterministic
// and repeatable.
package schedule

import (
	"time"

	"github.com/carebox/carebox/core/model"
)

// NextDue returns the next dispense point for s as seen from now.
//
// Interval mode anchors to the time of day: if today's anchor has not
// passed yet, the dose is due today at the anchor. Once the anchor has
// passed, a schedule that was never dispensed, or whose interval has
// fully elapsed since the last dispense, rolls to tomorrow's anchor
// rather than to now+interval. Otherwise the next point is last
// dispense plus the interval.
//
// Weekday mode picks today at the anchor when today is selected and the
// anchor has not passed, else scans forward up to seven days for the
// next selected weekday.
//
// A treatment end in the past, or an interval point beyond the
// treatment end, yields Never.
func NextDue(s *model.Schedule, now time.Time) model.Due {
	if !s.TreatmentEnd.IsZero() && !now.Before(s.TreatmentEnd) {
		return model.Due{Never: true}
	}

	minute := model.MinuteOfDay(now)
	today := model.AtTimeOfDay(now, s.TimeOfDay)

	if s.Mode == model.ModeInterval {
		if s.TimeOfDay > minute {
			return model.Due{At: today}
		}
		interval := time.Duration(s.IntervalHours) * time.Hour
		if s.LastDispensed.IsZero() || now.Sub(s.LastDispensed) >= interval {
			next := today.AddDate(0, 0, 1)
			if exceedsEnd(s, next) {
				return model.Due{Never: true}
			}
			return model.Due{At: next}
		}
		next := s.LastDispensed.Add(interval)
		if exceedsEnd(s, next) {
			return model.Due{Never: true}
		}
		return model.Due{At: next}
	}

	wd := model.ISOWeekday(now)
	if s.OnWeekday(wd) && s.TimeOfDay > minute {
		return model.Due{At: today}
	}
	for ahead := 1; ahead <= 7; ahead++ {
		d := wd + ahead
		if d > 7 {
			d -= 7
		}
		if s.OnWeekday(d) {
			return model.Due{At: today.AddDate(0, 0, ahead)}
		}
	}
	// Unreachable with a non-empty weekday set; ingestion defaults an
	// empty selection to all seven days.
	return model.Due{Never: true}
}

func exceedsEnd(s *model.Schedule, t time.Time) bool {
	return !s.TreatmentEnd.IsZero() && t.After(s.TreatmentEnd)
}
