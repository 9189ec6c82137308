package dispense

import (
	"sync"
	"time"

	"github.com/carebox/carebox/core/alert"
	"github.com/carebox/carebox/core/events"
	"github.com/carebox/carebox/core/metrics"
)

// reminderTable holds the armed pre-dose reminders, one slot per
// schedule, bounded by a fixed capacity.
type reminderTable struct {
	mu       sync.Mutex
	capacity int
	timers   map[string]*time.Timer
}

func newReminderTable(capacity int) *reminderTable {
	return &reminderTable{capacity: capacity, timers: make(map[string]*time.Timer)}
}

// arm schedules fire after d for the given schedule. Re-arming an
// occupied slot replaces its timer. The return is false when the
// table is full.
func (t *reminderTable) arm(scheduleID string, d time.Duration, fire func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[scheduleID]; ok {
		old.Stop()
	} else if len(t.timers) >= t.capacity {
		return false
	}
	t.timers[scheduleID] = time.AfterFunc(d, fire)
	return true
}

// clear stops and removes every armed reminder.
func (t *reminderTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *reminderTable) armed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// rearmReminders rebuilds the reminder table from the current record
// set. Reminders whose fire point already passed are skipped;
// schedules beyond the table capacity are dropped with a warning.
func (o *Orchestrator) rearmReminders() {
	now := o.clk.Now()
	o.reminders.clear()
	dropped := 0
	for _, med := range o.reg.Snapshot() {
		for _, s := range med.Schedules {
			if !s.NextDue.Known() {
				continue
			}
			fireAt := s.NextDue.At.Add(-o.cfg.ReminderLead)
			if !fireAt.After(now) {
				continue
			}
			medID, schedID, due := med.ID, s.ID, s.NextDue.At
			ok := o.reminders.arm(schedID, fireAt.Sub(now), func() {
				o.fireReminder(medID, schedID, due)
			})
			if !ok {
				dropped++
			}
		}
	}
	if dropped > 0 {
		o.log.Warnf("reminder table full, dropped %d reminder(s)", dropped)
	}
	if rec, ok := o.sink.(metrics.ReminderRecorder); ok {
		if err := rec.RecordArmedReminders(o.reminders.armed()); err != nil {
			o.log.Warnf("metrics sink: %v", err)
		}
	}
}

// fireReminder announces an upcoming dose. The medication is looked
// up again at fire time so a sync between arming and firing cannot
// leave a stale name, and a dose already dispensed stays silent.
func (o *Orchestrator) fireReminder(medID, schedID string, due time.Time) {
	med, err := o.reg.Get(medID)
	if err != nil {
		return
	}
	for _, s := range med.Schedules {
		if s.ID == schedID && !s.LastDispensed.Before(due) {
			return
		}
	}
	o.log.Infof("reminder: %s due at %s", med.Name, due.Format(time.RFC3339))
	o.alerts.Play(alert.PatternDoseReady)
	o.publish(events.TopicConfirmation, events.TypeDoseReminder, events.ReminderPayload{
		MedicationID: medID,
		Name:         med.Name,
		DueTime:      due.UnixMilli(),
	})
	o.emit(events.ReminderEvent{MedicationID: medID, Name: med.Name, DueAt: due})
}
