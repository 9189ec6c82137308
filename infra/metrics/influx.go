package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/carebox/carebox/core/metrics"
	"github.com/carebox/carebox/infra/logger"
)

// InfluxSink writes dose events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDose writes one dispense attempt.
func (s *InfluxSink) RecordDose(ev coremetrics.DoseEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dose_event").
		AddTag("medication_id", ev.MedicationID).
		AddTag("schedule_id", ev.ScheduleID).
		AddTag("auto", strconv.FormatBool(ev.Auto)).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("compartment", ev.Compartment).
		AddField("actuation_seconds", ev.Actuation.Seconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordMissed writes one missed-dose event.
func (s *InfluxSink) RecordMissed(ev coremetrics.MissedDoseEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("missed_dose").
		AddTag("medication_id", ev.MedicationID).
		AddTag("schedule_id", ev.ScheduleID).
		AddTag("status", string(ev.Status)).
		AddField("scheduled_at", ev.ScheduledAt.UnixMilli()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAdherence writes the adherence aggregates.
func (s *InfluxSink) RecordAdherence(confirmed, pending int, meanDelaySec float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("adherence").
		AddField("confirmed", confirmed).
		AddField("pending", pending).
		AddField("mean_delay_seconds", meanDelaySec).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
