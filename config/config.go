// Package config loads the engine configuration from a YAML or JSON
// file with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/carebox/carebox/core/dispense"
	"github.com/carebox/carebox/core/hardware"
	"github.com/carebox/carebox/infra/mqtt"
)

type Config struct {
	MQTT      mqtt.Config     `json:"mqtt"`
	Dispenser dispense.Config `json:"dispenser"`
	Hardware  hardware.Config `json:"hardware"`
	Storage   StorageConfig   `json:"storage"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// StorageConfig selects where medication records persist.
type StorageConfig struct {
	// Dir is the Badger database directory.
	Dir string `json:"dir"`
	// InMemory keeps records in memory only, for development.
	InMemory bool `json:"in_memory"`
}

// SetDefaults applies sane defaults.
func (c *StorageConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "./data"
	}
}

// MetricsConfig enables the observability sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
}

// Validate checks mandatory fields.
func (c MetricsConfig) Validate() error {
	if c.InfluxEnabled && c.InfluxURL == "" {
		return fmt.Errorf("influx_url is required when influx is enabled")
	}
	return nil
}

// Load reads the configuration at path. Environment variables with the
// CB_ prefix override file values, double underscores standing in for
// section separators.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("CB_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cb_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	// Flags that default on: only overridable when present in the
	// config source.
	if !k.Exists("dispenser.record_on_failure") {
		cfg.Dispenser.RecordOnFailure = true
	}
	if !k.Exists("dispenser.auto_dispense") {
		cfg.Dispenser.AutoDispense = true
	}
	cfg.MQTT.SetDefaults()
	cfg.Dispenser.SetDefaults()
	cfg.Hardware.SetDefaults()
	cfg.Storage.SetDefaults()
	cfg.Metrics.SetDefaults()
	if cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}
	if err := cfg.Metrics.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
