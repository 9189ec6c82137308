// Package dispense runs the engine loop: it watches the record
// registry for due doses, drives the hardware sequencer, reports every
// outcome on the device topics and keeps reminders and the missed-dose
// sweep going.
package dispense

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carebox/carebox/core/alert"
	"github.com/carebox/carebox/core/clock"
	"github.com/carebox/carebox/core/events"
	"github.com/carebox/carebox/core/logger"
	"github.com/carebox/carebox/core/metrics"
	"github.com/carebox/carebox/core/model"
	"github.com/carebox/carebox/core/mqtt"
	"github.com/carebox/carebox/core/records"
	"github.com/carebox/carebox/internal/eventbus"
)

// Dispenser delivers one dose through the mechanics.
type Dispenser interface {
	Dispense(ctx context.Context, med model.Medication) error
}

// Orchestrator owns the dispense loop. All state behind mu; the loop,
// reminder timers and inbound commands run on different goroutines.
type Orchestrator struct {
	cfg    Config
	reg    *records.Registry
	seq    Dispenser
	clk    clock.Clock
	alerts alert.Player
	bus    *eventbus.Bus[any]
	sink   metrics.MetricsSink
	log    logger.Logger

	mu        sync.Mutex
	pub       mqtt.Publisher
	auto      bool
	started   time.Time
	wake      chan struct{}
	reminders *reminderTable
}

// New assembles an orchestrator. reg and seq are required; the other
// collaborators may be nil and are replaced with no-ops.
func New(cfg Config, reg *records.Registry, seq Dispenser, clk clock.Clock, pub mqtt.Publisher, alerts alert.Player, bus *eventbus.Bus[any], sink metrics.MetricsSink, log logger.Logger) (*Orchestrator, error) {
	if reg == nil || seq == nil {
		return nil, fmt.Errorf("dispense: nil registry or dispenser")
	}
	cfg.SetDefaults()
	if clk == nil {
		clk = clock.System{}
	}
	if alerts == nil {
		alerts = alert.NopPlayer{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Orchestrator{
		cfg:       cfg,
		reg:       reg,
		seq:       seq,
		pub:       pub,
		clk:       clk,
		alerts:    alerts,
		bus:       bus,
		sink:      sink,
		log:       log,
		auto:      cfg.AutoDispense,
		wake:      make(chan struct{}, 1),
		reminders: newReminderTable(cfg.MaxReminders),
	}, nil
}

// Run blocks until ctx is cancelled. It starts the periodic ticker,
// arms the initial reminders and then services due doses.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.started = o.clk.Now()
	o.mu.Unlock()

	o.alerts.Play(alert.PatternStartup)
	defer o.reminders.clear()

	o.rearmReminders()
	go o.periodic(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !o.clk.Reliable() {
			o.log.Warnf("clock not reliable yet, holding dispenses")
			if err := o.pause(ctx, o.cfg.ClockRetry); err != nil {
				return err
			}
			continue
		}
		if o.reg.Count() == 0 {
			o.log.Debugf("no medications loaded, idling")
			if err := o.waitWake(ctx, o.cfg.IdleSleep); err != nil {
				return err
			}
			continue
		}
		o.checkDue(ctx)
		if err := o.waitWake(ctx, o.cfg.WakeTimeout); err != nil {
			return err
		}
	}
}

// Wake nudges the loop out of its sleep. Multiple wakes coalesce.
func (o *Orchestrator) Wake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// periodic drives the counters the firmware side-tasks hang off: the
// missed sweep and the reminder re-arm, each every N check cycles.
func (o *Orchestrator) periodic(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.CheckInterval)
	defer ticker.Stop()
	var missedN, remindN int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		missedN++
		remindN++
		if missedN >= o.cfg.MissedEvery {
			missedN = 0
			o.sweepMissed(o.clk.Now())
		}
		if remindN >= o.cfg.ReminderEvery {
			remindN = 0
			o.rearmReminders()
		}
		o.Wake()
	}
}

// checkDue dispenses or announces the earliest arrived dose, if any.
// The due scan picks the medication; the schedule actually consumed
// is re-resolved as the first one still pending for its cycle.
func (o *Orchestrator) checkDue(ctx context.Context) {
	now := o.clk.Now()
	med, sched, ok := o.reg.DueNow(now)
	if !ok {
		return
	}
	if act, ok := o.reg.ActiveSchedule(med.ID); ok {
		sched = act
	} else {
		o.log.Warnf("due dose on %s but no pending schedule", med.Name)
		return
	}
	auto := o.AutoDispense()
	o.log.Infof("dose due: %s (schedule %s)", med.Name, sched.ID)
	o.publish(events.TopicConfirmation, events.TypeMedicationAlert, events.AlertPayload{
		MedicationID: med.ID,
		ScheduleID:   sched.ID,
		Name:         med.Name,
		Compartment:  med.Compartment,
		Auto:         auto,
	})
	o.emit(events.DueEvent{Medication: med, Schedule: sched, At: now})
	if !auto {
		o.alerts.Play(alert.PatternDoseReady)
		return
	}
	if err := o.dispense(ctx, med, sched, true); err != nil {
		o.log.Errorf("auto dispense of %s: %v", med.Name, err)
	}
}

// dispense runs the mechanics and records the outcome. With
// RecordOnFailure set the cycle advances even when the hardware
// failed, so the same dose is not retried forever.
func (o *Orchestrator) dispense(ctx context.Context, med model.Medication, sched model.Schedule, auto bool) error {
	wallStart := time.Now()
	err := o.seq.Dispense(ctx, med)
	ok := err == nil
	if !ok {
		o.alerts.Play(alert.PatternError)
	}
	if ok || o.cfg.RecordOnFailure {
		if merr := o.reg.MarkDispensed(med.ID, sched.ID, o.clk.Now()); merr != nil {
			o.log.Errorf("recording dispense of %s: %v", med.ID, merr)
		}
	}
	o.publish(events.TopicConfirmation, events.TypeDoseDispensed, events.AlertPayload{
		MedicationID: med.ID,
		ScheduleID:   sched.ID,
		Name:         med.Name,
		Compartment:  med.Compartment,
		Auto:         auto,
		HardwareOK:   ok,
	})
	o.emit(events.DispensedEvent{Medication: med, Schedule: sched, At: o.clk.Now(), Auto: auto, HardwareOK: ok})
	if serr := o.sink.RecordDose(metrics.DoseEvent{
		MedicationID: med.ID,
		ScheduleID:   sched.ID,
		Name:         med.Name,
		Compartment:  med.Compartment,
		Auto:         auto,
		Success:      ok,
		Actuation:    time.Since(wallStart),
		Time:         o.clk.Now(),
	}); serr != nil {
		o.log.Warnf("metrics sink: %v", serr)
	}
	return err
}

// SetPublisher attaches the broker publisher. The orchestrator runs
// silently without one.
func (o *Orchestrator) SetPublisher(pub mqtt.Publisher) {
	o.mu.Lock()
	o.pub = pub
	o.mu.Unlock()
}

func (o *Orchestrator) publish(topic, typ string, payload interface{}) {
	o.mu.Lock()
	pub := o.pub
	o.mu.Unlock()
	if pub == nil {
		return
	}
	b, err := events.Marshal(typ, o.clk.Now(), payload)
	if err != nil {
		o.log.Errorf("encoding %s: %v", typ, err)
		return
	}
	if err := pub.Publish(topic, b); err != nil {
		o.log.Warnf("publish %s: %v", topic, err)
	}
}

func (o *Orchestrator) emit(e any) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}

// pause sleeps d or returns early when ctx ends.
func (o *Orchestrator) pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// waitWake sleeps until a wake arrives, d passes or ctx ends.
func (o *Orchestrator) waitWake(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.wake:
		return nil
	case <-t.C:
		return nil
	}
}
