package dispense

import (
	"time"

	"github.com/carebox/carebox/core/alert"
	"github.com/carebox/carebox/core/events"
	"github.com/carebox/carebox/core/metrics"
	"github.com/carebox/carebox/core/model"
)

// sweepMissed walks every schedule and reports doses the grace period
// has run out on. A dose counts missed either because it was never
// dispensed, or because it left the device and intake was never
// confirmed.
func (o *Orchestrator) sweepMissed(now time.Time) {
	for _, med := range o.reg.Snapshot() {
		for _, s := range med.Schedules {
			status, schedAt, dispAt, hit := classifyMissed(s, now, o.cfg.MissedThreshold)
			if !hit {
				continue
			}
			o.log.Warnf("missed dose: %s schedule %s (%s)", med.Name, s.ID, status)
			o.alerts.Play(alert.PatternDoseMissed)
			p := events.MissedPayload{
				MedicationID:  med.ID,
				ScheduleID:    s.ID,
				Name:          med.Name,
				Status:        string(status),
				ScheduledTime: schedAt.UnixMilli(),
			}
			if !dispAt.IsZero() {
				p.DispensedTime = dispAt.UnixMilli()
			}
			o.publish(events.TopicConfirmation, events.TypeDoseMissed, p)
			o.emit(events.MissedEvent{
				Medication:  med,
				Schedule:    s,
				Status:      status,
				ScheduledAt: schedAt,
				DispensedAt: dispAt,
			})
			if rec, ok := o.sink.(metrics.MissedRecorder); ok {
				if err := rec.RecordMissed(metrics.MissedDoseEvent{
					MedicationID: med.ID,
					ScheduleID:   s.ID,
					Status:       status,
					ScheduledAt:  schedAt,
					Time:         now,
				}); err != nil {
					o.log.Warnf("metrics sink: %v", err)
				}
			}
		}
	}
}

// classifyMissed applies the grace period to one schedule. Both
// outcomes require the due point itself to be past the threshold:
// still pending means the dose never left the device, dispensed for
// that due point but unconfirmed means it left but was not taken.
// A schedule whose due point is current or future never classifies.
func classifyMissed(s model.Schedule, now time.Time, threshold time.Duration) (events.MissedStatus, time.Time, time.Time, bool) {
	if !s.NextDue.Known() || s.NextDue.At.After(now.Add(-threshold)) {
		return "", time.Time{}, time.Time{}, false
	}
	if s.LastDispensed.Before(s.NextDue.At) {
		return events.MissedNeverDispensed, s.NextDue.At, time.Time{}, true
	}
	if s.LastTaken.Before(s.LastDispensed) {
		return events.MissedNotTaken, s.NextDue.At, s.LastDispensed, true
	}
	return "", time.Time{}, time.Time{}, false
}
