// Package metrics provides the Prometheus and InfluxDB sinks behind
// the core recorder interfaces.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/carebox/carebox/core/metrics"
)

// PromSink records dose events in Prometheus metrics.
type PromSink struct {
	doses     *prometheus.CounterVec
	missed    *prometheus.CounterVec
	actuation *prometheus.HistogramVec
	reminders prometheus.Gauge
}

// NewPromSink registers the dispenser metrics on the default
// Prometheus registerer. The metrics server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	doses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispenser_doses_total",
		Help: "Total number of dispense attempts",
	}, []string{"medication_id", "auto", "success"})
	missed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispenser_missed_doses_total",
		Help: "Total number of doses flagged missed",
	}, []string{"medication_id", "status"})
	actuation := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispenser_actuation_seconds",
		Help:    "Time from dispense start to mechanics completion",
		Buckets: prometheus.DefBuckets,
	}, []string{"auto", "success"})
	reminders := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispenser_armed_reminders",
		Help: "Number of currently armed dose reminders",
	})

	if err := reg.Register(doses); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			doses = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(missed); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			missed = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(actuation); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			actuation = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(reminders); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			reminders = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{doses: doses, missed: missed, actuation: actuation, reminders: reminders}, nil
}

// RecordDose increments the dose counter and observes actuation time.
func (s *PromSink) RecordDose(ev coremetrics.DoseEvent) error {
	auto := strconv.FormatBool(ev.Auto)
	success := strconv.FormatBool(ev.Success)
	s.doses.WithLabelValues(ev.MedicationID, auto, success).Inc()
	s.actuation.WithLabelValues(auto, success).Observe(ev.Actuation.Seconds())
	return nil
}

// RecordMissed increments the missed-dose counter.
func (s *PromSink) RecordMissed(ev coremetrics.MissedDoseEvent) error {
	s.missed.WithLabelValues(ev.MedicationID, string(ev.Status)).Inc()
	return nil
}

// RecordArmedReminders sets the reminder gauge.
func (s *PromSink) RecordArmedReminders(n int) error {
	s.reminders.Set(float64(n))
	return nil
}
