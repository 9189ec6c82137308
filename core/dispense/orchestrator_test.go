package dispense

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carebox/carebox/core/alert"
	"github.com/carebox/carebox/core/clock"
	"github.com/carebox/carebox/core/events"
	"github.com/carebox/carebox/core/faults"
	"github.com/carebox/carebox/core/metrics"
	"github.com/carebox/carebox/core/model"
	"github.com/carebox/carebox/core/records"
	"github.com/carebox/carebox/infra/storage"
	"github.com/carebox/carebox/internal/eventbus"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

type published struct {
	topic   string
	payload []byte
}

func (p *recordingPublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, payload})
	return nil
}

func (p *recordingPublisher) byType(typ string) []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Envelope
	for _, m := range p.msgs {
		var env events.Envelope
		if err := json.Unmarshal(m.payload, &env); err != nil {
			continue
		}
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

type fakeDispenser struct {
	mu    sync.Mutex
	calls []string
	fail  error
}

func (d *fakeDispenser) Dispense(_ context.Context, med model.Medication) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, med.ID)
	return d.fail
}

func (d *fakeDispenser) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type recordingSink struct {
	mu     sync.Mutex
	doses  []metrics.DoseEvent
	missed []metrics.MissedDoseEvent
	armed  int
}

func (s *recordingSink) RecordDose(ev metrics.DoseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doses = append(s.doses, ev)
	return nil
}

func (s *recordingSink) RecordMissed(ev metrics.MissedDoseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missed = append(s.missed, ev)
	return nil
}

func (s *recordingSink) RecordArmedReminders(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = n
	return nil
}

type fixture struct {
	orch   *Orchestrator
	reg    *records.Registry
	clk    *clock.Fake
	pub    *recordingPublisher
	seq    *fakeDispenser
	alerts *alert.Recorder
	sink   *recordingSink
	bus    *eventbus.Bus[any]
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		reg:    records.NewRegistry(storage.NewMemoryStore(), nil),
		clk:    clock.NewFake(time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC)),
		pub:    &recordingPublisher{},
		seq:    &fakeDispenser{},
		alerts: &alert.Recorder{},
		sink:   &recordingSink{},
		bus:    eventbus.New[any](),
	}
	t.Cleanup(f.bus.Close)
	orch, err := New(cfg, f.reg, f.seq, f.clk, f.pub, f.alerts, f.bus, f.sink, nil)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func (f *fixture) sync(t *testing.T, payload string) {
	t.Helper()
	_, err := f.orch.SyncMedications([]byte(payload))
	require.NoError(t, err)
}

const oneMed = `{"medications":[{"id":"med-1","name":"Amoxicillin","compartment":1,"type":"pill","pillsPerDose":1,"totalPills":10,"schedules":[{"id":"s1","time":480,"intervalMode":true,"intervalHours":8}]}]}`

const twoSchedules = `{"medications":[{"id":"med-1","name":"Amoxicillin","compartment":1,"type":"pill","pillsPerDose":1,"totalPills":10,"schedules":[
  {"id":"s1","time":1200,"intervalMode":true,"intervalHours":24},
  {"id":"s2","time":480,"intervalMode":true,"intervalHours":24}]}]}`

func TestCheckDueAutoDispensesAndAdvancesCycle(t *testing.T) {
	f := newFixture(t, Config{AutoDispense: true, RecordOnFailure: true})
	f.sync(t, oneMed)

	// Before the due point nothing moves.
	f.orch.checkDue(context.Background())
	require.Zero(t, f.seq.count())

	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))
	f.orch.checkDue(context.Background())
	require.Equal(t, 1, f.seq.count())

	med, err := f.reg.Get("med-1")
	require.NoError(t, err)
	require.Equal(t, 9, med.RemainingPills)
	require.True(t, med.Schedules[0].NextDue.At.After(f.clk.Now()))

	// A second pass must not re-dispense the consumed dose.
	f.orch.checkDue(context.Background())
	require.Equal(t, 1, f.seq.count())

	require.Len(t, f.pub.byType(events.TypeDoseDispensed), 1)
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.doses, 1)
	require.True(t, f.sink.doses[0].Success)
}

func TestCheckDueConsumesFirstPendingSchedule(t *testing.T) {
	f := newFixture(t, Config{AutoDispense: true, RecordOnFailure: true})
	f.sync(t, twoSchedules)

	// s2 (08:00) brings the medication due, but the schedule consumed
	// is the first one still pending its cycle, which is s1 (20:00).
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))
	f.orch.checkDue(context.Background())
	require.Equal(t, 1, f.seq.count())

	med, err := f.reg.Get("med-1")
	require.NoError(t, err)
	require.False(t, med.Schedules[0].LastDispensed.IsZero(), "s1 consumed")
	require.True(t, med.Schedules[1].LastDispensed.IsZero(), "s2 untouched")

	envs := f.pub.byType(events.TypeDoseDispensed)
	require.Len(t, envs, 1)
	var p events.AlertPayload
	b, _ := json.Marshal(envs[0].Payload)
	require.NoError(t, json.Unmarshal(b, &p))
	require.Equal(t, "s1", p.ScheduleID)
}

func TestCheckDueManualModeOnlyAnnounces(t *testing.T) {
	f := newFixture(t, Config{AutoDispense: false})
	f.sync(t, oneMed)
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))

	f.orch.checkDue(context.Background())
	require.Zero(t, f.seq.count())
	require.Len(t, f.pub.byType(events.TypeMedicationAlert), 1)
	require.Equal(t, 1, f.alerts.Count(alert.PatternDoseReady))
}

func TestRecordOnFailurePolicy(t *testing.T) {
	f := newFixture(t, Config{AutoDispense: true, RecordOnFailure: true})
	f.sync(t, oneMed)
	f.seq.fail = errors.New("servo stalled")
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))

	f.orch.checkDue(context.Background())
	med, _ := f.reg.Get("med-1")
	require.False(t, med.Schedules[0].LastDispensed.IsZero(), "failure still consumes the cycle")

	envs := f.pub.byType(events.TypeDoseDispensed)
	require.Len(t, envs, 1)
	var p events.AlertPayload
	b, _ := json.Marshal(envs[0].Payload)
	require.NoError(t, json.Unmarshal(b, &p))
	require.False(t, p.HardwareOK)
}

func TestRecordOnFailureDisabledKeepsDoseDue(t *testing.T) {
	f := newFixture(t, Config{AutoDispense: true})
	f.sync(t, oneMed)
	f.seq.fail = errors.New("servo stalled")
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))

	f.orch.checkDue(context.Background())
	med, _ := f.reg.Get("med-1")
	require.True(t, med.Schedules[0].LastDispensed.IsZero())

	// The dose stays due and is retried next cycle.
	f.orch.checkDue(context.Background())
	require.Equal(t, 2, f.seq.count())
}

func TestManualDispense(t *testing.T) {
	f := newFixture(t, Config{})
	f.sync(t, oneMed)
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))

	require.NoError(t, f.orch.ManualDispense(context.Background(), "med-1", ""))
	require.Equal(t, 1, f.seq.count())
	require.ErrorIs(t, f.orch.ManualDispense(context.Background(), "ghost", ""), faults.ErrNotFound)
	require.ErrorIs(t, f.orch.ManualDispense(context.Background(), "med-1", "ghost"), faults.ErrNotFound)
}

func TestManualDispenseTargetsRequestedSchedule(t *testing.T) {
	f := newFixture(t, Config{})
	f.sync(t, twoSchedules)

	require.NoError(t, f.orch.ManualDispense(context.Background(), "med-1", "s2"))

	med, err := f.reg.Get("med-1")
	require.NoError(t, err)
	require.True(t, med.Schedules[0].LastDispensed.IsZero(), "s1 untouched")
	require.False(t, med.Schedules[1].LastDispensed.IsZero(), "s2 consumed")
}

func TestConfirmTakenFlow(t *testing.T) {
	f := newFixture(t, Config{})
	f.sync(t, oneMed)
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))

	require.ErrorIs(t, f.orch.ConfirmTaken("med-1", ""), faults.ErrInvalidState)

	require.NoError(t, f.orch.ManualDispense(context.Background(), "med-1", ""))
	f.clk.Advance(2 * time.Minute)
	require.NoError(t, f.orch.ConfirmTaken("med-1", ""))
	require.Len(t, f.pub.byType(events.TypeTakenConfirmed), 1)
	require.Equal(t, 1, f.alerts.Count(alert.PatternConfirm))

	med, _ := f.reg.Get("med-1")
	require.False(t, med.Schedules[0].LastTaken.IsZero())
}

func TestConfirmTakenTargetsRequestedSchedule(t *testing.T) {
	f := newFixture(t, Config{})
	f.sync(t, twoSchedules)
	require.NoError(t, f.orch.ManualDispense(context.Background(), "med-1", "s1"))
	require.NoError(t, f.orch.ManualDispense(context.Background(), "med-1", "s2"))
	f.clk.Advance(2 * time.Minute)

	require.NoError(t, f.orch.ConfirmTaken("med-1", "s2"))

	med, err := f.reg.Get("med-1")
	require.NoError(t, err)
	require.True(t, med.Schedules[0].LastTaken.IsZero(), "s1 still unconfirmed")
	require.False(t, med.Schedules[1].LastTaken.IsZero(), "confirmation landed on s2")

	require.ErrorIs(t, f.orch.ConfirmTaken("med-1", "ghost"), faults.ErrNotFound)
}

func TestSweepMissedNeverDispensed(t *testing.T) {
	f := newFixture(t, Config{})
	f.sync(t, oneMed)

	// Due at 08:00, swept 31 minutes later without any dispense.
	now := time.Date(2025, time.March, 10, 8, 31, 0, 0, time.UTC)
	f.clk.Set(now)
	f.orch.sweepMissed(now)

	envs := f.pub.byType(events.TypeDoseMissed)
	require.Len(t, envs, 1)
	var p events.MissedPayload
	b, _ := json.Marshal(envs[0].Payload)
	require.NoError(t, json.Unmarshal(b, &p))
	require.Equal(t, string(events.MissedNeverDispensed), p.Status)
	require.Equal(t, 1, f.alerts.Count(alert.PatternDoseMissed))

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.missed, 1)
}

func TestClassifyMissedGatesOnDuePoint(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	due := now.Add(-31 * time.Minute)
	known := func(at time.Time) model.Due { return model.Due{At: at} }

	tests := []struct {
		name   string
		sched  model.Schedule
		status events.MissedStatus
		hit    bool
	}{
		{
			name:   "pending past threshold",
			sched:  model.Schedule{NextDue: known(due)},
			status: events.MissedNeverDispensed,
			hit:    true,
		},
		{
			name:   "dispensed for due point, unconfirmed",
			sched:  model.Schedule{NextDue: known(due), LastDispensed: due},
			status: events.MissedNotTaken,
			hit:    true,
		},
		{
			name:  "dispensed and confirmed",
			sched: model.Schedule{NextDue: known(due), LastDispensed: due, LastTaken: due.Add(time.Minute)},
		},
		{
			name:  "due point in the future, recent unconfirmed dispense",
			sched: model.Schedule{NextDue: known(now.Add(23 * time.Hour)), LastDispensed: now.Add(-31 * time.Minute)},
		},
		{
			name:  "inside the grace period",
			sched: model.Schedule{NextDue: known(now.Add(-15 * time.Minute))},
		},
		{
			name:  "no due point",
			sched: model.Schedule{NextDue: model.Due{Never: true}, LastDispensed: due},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, _, _, hit := classifyMissed(tc.sched, now, 30*time.Minute)
			require.Equal(t, tc.hit, hit)
			if tc.hit {
				require.Equal(t, tc.status, status)
			}
		})
	}
}

func TestSweepSilentAfterDispenseAdvancesDue(t *testing.T) {
	f := newFixture(t, Config{})
	f.sync(t, oneMed)
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))
	require.NoError(t, f.orch.ManualDispense(context.Background(), "med-1", ""))

	// The dispense moved the due point ahead, so an unconfirmed dose
	// raises nothing until that next point is itself overdue.
	now := f.clk.Now().Add(31 * time.Minute)
	f.clk.Set(now)
	f.orch.sweepMissed(now)
	require.Empty(t, f.pub.byType(events.TypeDoseMissed))
}

func TestSweepSilentInsideGracePeriod(t *testing.T) {
	f := newFixture(t, Config{})
	f.sync(t, oneMed)
	now := time.Date(2025, time.March, 10, 8, 15, 0, 0, time.UTC)
	f.clk.Set(now)
	f.orch.sweepMissed(now)
	require.Empty(t, f.pub.byType(events.TypeDoseMissed))
}

func TestRemindersArmAndCap(t *testing.T) {
	f := newFixture(t, Config{MaxReminders: 2, ReminderLead: 5 * time.Minute})
	meds := `{"medications":[
	  {"id":"a","name":"A","compartment":1,"type":"pill","schedules":[{"id":"sa","time":600,"intervalMode":true,"intervalHours":24}]},
	  {"id":"b","name":"B","compartment":2,"type":"pill","schedules":[{"id":"sb","time":660,"intervalMode":true,"intervalHours":24}]},
	  {"id":"c","name":"C","compartment":3,"type":"pill","schedules":[{"id":"sc","time":720,"intervalMode":true,"intervalHours":24}]}]}`
	f.sync(t, meds)

	require.Equal(t, 2, f.orch.reminders.armed(), "table capped at 2 slots")
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Equal(t, 2, f.sink.armed)
}

func TestReminderFiresAndResolvesNameAtFireTime(t *testing.T) {
	f := newFixture(t, Config{ReminderLead: 5 * time.Minute})
	f.sync(t, oneMed)

	med, _ := f.reg.Get("med-1")
	due := med.Schedules[0].NextDue.At
	f.orch.fireReminder("med-1", "s1", due)

	envs := f.pub.byType(events.TypeDoseReminder)
	require.Len(t, envs, 1)
	var p events.ReminderPayload
	b, _ := json.Marshal(envs[0].Payload)
	require.NoError(t, json.Unmarshal(b, &p))
	require.Equal(t, "Amoxicillin", p.Name)
	require.Equal(t, due.UnixMilli(), p.DueTime)
}

func TestReminderSilentWhenAlreadyDispensed(t *testing.T) {
	f := newFixture(t, Config{})
	f.sync(t, oneMed)
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))
	med, _ := f.reg.Get("med-1")
	due := med.Schedules[0].NextDue.At
	require.NoError(t, f.orch.ManualDispense(context.Background(), "med-1", ""))

	f.orch.fireReminder("med-1", "s1", due)
	require.Empty(t, f.pub.byType(events.TypeDoseReminder))
}

func TestRunHoldsWhileClockUnreliable(t *testing.T) {
	f := newFixture(t, Config{ClockRetry: 5 * time.Millisecond, CheckInterval: time.Hour})
	f.sync(t, oneMed)
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))
	f.clk.SetReliable(false)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	err := f.orch.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, f.seq.count(), "no dispense on an untrusted clock")
}

func TestRunDispensesOnWake(t *testing.T) {
	f := newFixture(t, Config{
		AutoDispense:  true,
		CheckInterval: time.Hour,
		WakeTimeout:   time.Hour,
		IdleSleep:     time.Millisecond,
	})
	f.sync(t, oneMed)
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	require.Eventually(t, func() bool { return f.seq.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestTelemetryReport(t *testing.T) {
	f := newFixture(t, Config{AutoDispense: true})
	f.sync(t, oneMed)
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))
	require.NoError(t, f.orch.ManualDispense(context.Background(), "med-1", ""))

	tp := f.orch.Telemetry()
	require.Equal(t, 1, tp.Medications)
	require.True(t, tp.AutoDispense)
	require.Equal(t, 1, tp.DosesPending)
	require.Zero(t, tp.DosesConfirmed)
}

func TestSetAutoDispense(t *testing.T) {
	f := newFixture(t, Config{AutoDispense: true})
	f.orch.SetAutoDispense(false)
	require.False(t, f.orch.AutoDispense())
	f.orch.SetAutoDispense(true)
	require.True(t, f.orch.AutoDispense())
}

func TestEventBusSeesDoseLifecycle(t *testing.T) {
	f := newFixture(t, Config{AutoDispense: true, RecordOnFailure: true})
	_, ch := f.bus.Subscribe()
	f.sync(t, oneMed)
	f.clk.Set(time.Date(2025, time.March, 10, 8, 1, 0, 0, time.UTC))
	f.orch.checkDue(context.Background())

	var sawDue, sawDispensed bool
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			switch e.(type) {
			case events.DueEvent:
				sawDue = true
			case events.DispensedEvent:
				sawDispensed = true
			}
		case <-time.After(time.Second):
			t.Fatal("missing bus events")
		}
	}
	require.True(t, sawDue)
	require.True(t, sawDispensed)
}
