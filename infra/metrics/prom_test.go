package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/carebox/carebox/core/events"
	coremetrics "github.com/carebox/carebox/core/metrics"
)

func TestPromSinkRecordsDoses(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordDose(coremetrics.DoseEvent{
		MedicationID: "med-1",
		Auto:         true,
		Success:      true,
		Actuation:    2 * time.Second,
		Time:         time.Now(),
	}))
	require.NoError(t, sink.RecordMissed(coremetrics.MissedDoseEvent{
		MedicationID: "med-1",
		Status:       events.MissedNeverDispensed,
	}))
	require.NoError(t, sink.RecordArmedReminders(4))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["dispenser_doses_total"])
	require.True(t, names["dispenser_missed_doses_total"])
	require.True(t, names["dispenser_actuation_seconds"])
	require.True(t, names["dispenser_armed_reminders"])
}

func TestPromSinkDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	// Registering again must reuse the existing collectors.
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, sink.RecordArmedReminders(1))
}
