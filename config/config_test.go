package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "carebox-1"
  username: "user"
  password: "pass"
dispenser:
  check_interval: "15s"
  missed_threshold: "20m"
  auto_dispense: false
hardware:
  presence_threshold_cm: 6.5
  max_wait: "45s"
storage:
  dir: "/var/lib/carebox"
metrics:
  prometheus_enabled: true
  prometheus_addr: ":9100"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	require.Equal(t, "carebox-1", cfg.MQTT.ClientID)
	require.Equal(t, 15*time.Second, cfg.Dispenser.CheckInterval)
	require.Equal(t, 20*time.Minute, cfg.Dispenser.MissedThreshold)
	require.False(t, cfg.Dispenser.AutoDispense)
	require.InDelta(t, 6.5, cfg.Hardware.PresenceThreshold, 0.001)
	require.Equal(t, 45*time.Second, cfg.Hardware.MaxWait)
	require.Equal(t, "/var/lib/carebox", cfg.Storage.Dir)
	require.True(t, cfg.Metrics.PrometheusEnabled)
	require.Equal(t, ":9100", cfg.Metrics.PrometheusAddr)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `mqtt:
  broker: "tcp://localhost:1883"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 30*time.Second, cfg.Dispenser.CheckInterval)
	require.Equal(t, 30*time.Minute, cfg.Dispenser.MissedThreshold)
	require.True(t, cfg.Dispenser.AutoDispense)
	require.True(t, cfg.Dispenser.RecordOnFailure)
	require.Equal(t, time.Second, cfg.Hardware.PollInterval)
	require.Equal(t, "./data", cfg.Storage.Dir)
	require.Equal(t, ":9090", cfg.Metrics.PrometheusAddr)
}

func TestLoadExplicitFalsePolicy(t *testing.T) {
	path := writeConfig(t, `mqtt:
  broker: "tcp://localhost:1883"
dispenser:
  record_on_failure: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Dispenser.RecordOnFailure)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `mqtt:
  broker: "tcp://localhost:1883"
`)
	require.NoError(t, os.Setenv("CB_MQTT__CLIENT_ID", "from-env"))
	defer func() { require.NoError(t, os.Unsetenv("CB_MQTT__CLIENT_ID")) }()

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.MQTT.ClientID)
}

func TestLoadRejectsMissingBroker(t *testing.T) {
	path := writeConfig(t, `dispenser:
  check_interval: "15s"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInfluxWithoutURL(t *testing.T) {
	path := writeConfig(t, `mqtt:
  broker: "tcp://localhost:1883"
metrics:
  influx_enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
}
