package dispense

import (
	"context"
	"fmt"

	"github.com/carebox/carebox/core/alert"
	"github.com/carebox/carebox/core/events"
	"github.com/carebox/carebox/core/faults"
	"github.com/carebox/carebox/core/metrics"
	"github.com/carebox/carebox/core/model"
)

// SyncMedications replaces the medication set from a sync payload and
// returns the number of records accepted.
func (o *Orchestrator) SyncMedications(raw []byte) (int, error) {
	n, err := o.reg.Sync(raw, o.clk.Now())
	if err != nil {
		return 0, err
	}
	o.log.Infof("schedule sync accepted %d medication(s)", n)
	o.rearmReminders()
	o.Wake()
	return n, nil
}

// ManualDispense dispenses one dose of medID on request, outside the
// automatic path. With schedID set that exact schedule is consumed,
// failing with ErrNotFound when the medication has no such schedule;
// left empty, the first schedule still pending its cycle is used.
func (o *Orchestrator) ManualDispense(ctx context.Context, medID, schedID string) error {
	med, err := o.reg.Get(medID)
	if err != nil {
		return err
	}
	var sched model.Schedule
	if schedID != "" {
		found := false
		for _, s := range med.Schedules {
			if s.ID == schedID {
				sched = s
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: medication %s has no schedule %s", faults.ErrNotFound, medID, schedID)
		}
	} else {
		var ok bool
		sched, ok = o.reg.ActiveSchedule(medID)
		if !ok {
			return fmt.Errorf("%w: no active schedule for %s", faults.ErrInvalidState, medID)
		}
	}
	return o.dispense(ctx, med, sched, false)
}

// ConfirmTaken records patient intake of a dispensed, not yet
// confirmed dose of medID. With schedID set the confirmation lands on
// that exact schedule; left empty, the first schedule awaiting
// confirmation is used.
func (o *Orchestrator) ConfirmTaken(medID, schedID string) error {
	med, err := o.reg.Get(medID)
	if err != nil {
		return err
	}
	if schedID == "" {
		for _, s := range med.Schedules {
			if s.AwaitingConfirmation() {
				schedID = s.ID
				break
			}
		}
	}
	if schedID == "" {
		return fmt.Errorf("%w: no dispensed dose awaiting confirmation for %s", faults.ErrInvalidState, medID)
	}
	now := o.clk.Now()
	if err := o.reg.ConfirmTaken(medID, schedID, now); err != nil {
		return err
	}
	o.alerts.Play(alert.PatternConfirm)
	o.publish(events.TopicConfirmation, events.TypeTakenConfirmed, events.TakenPayload{
		MedicationID: medID,
		ScheduleID:   schedID,
		TakenTime:    now.UnixMilli(),
	})
	med, _ = o.reg.Get(medID)
	for _, s := range med.Schedules {
		if s.ID == schedID {
			o.emit(events.TakenEvent{Medication: med, Schedule: s, At: now})
		}
	}
	return nil
}

// SetAutoDispense switches the automatic path on or off.
func (o *Orchestrator) SetAutoDispense(on bool) {
	o.mu.Lock()
	o.auto = on
	o.mu.Unlock()
	o.log.Infof("auto dispense set to %t", on)
	o.Wake()
}

// AutoDispense reports whether the automatic path is active.
func (o *Orchestrator) AutoDispense() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.auto
}

// Telemetry builds the periodic device report.
func (o *Orchestrator) Telemetry() events.TelemetryPayload {
	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	now := o.clk.Now()
	uptime := int64(0)
	if !started.IsZero() {
		uptime = int64(now.Sub(started).Seconds())
	}
	adh := o.reg.AdherenceStats()
	if rec, ok := o.sink.(metrics.AdherenceRecorder); ok {
		if err := rec.RecordAdherence(adh.Confirmed, adh.Pending, adh.MeanDelaySec); err != nil {
			o.log.Warnf("metrics sink: %v", err)
		}
	}
	return events.TelemetryPayload{
		UptimeSec:      uptime,
		Medications:    o.reg.Count(),
		AutoDispense:   o.AutoDispense(),
		ArmedReminders: o.reminders.armed(),
		DosesConfirmed: adh.Confirmed,
		DosesPending:   adh.Pending,
		MeanDelaySec:   adh.MeanDelaySec,
	}
}
