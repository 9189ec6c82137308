// Package app assembles the dispenser engine from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/carebox/carebox/config"
	"github.com/carebox/carebox/core/clock"
	"github.com/carebox/carebox/core/dispense"
	"github.com/carebox/carebox/core/hardware"
	coremetrics "github.com/carebox/carebox/core/metrics"
	"github.com/carebox/carebox/core/records"
	corestorage "github.com/carebox/carebox/core/storage"
	infraalert "github.com/carebox/carebox/infra/alert"
	infrahardware "github.com/carebox/carebox/infra/hardware"
	"github.com/carebox/carebox/infra/logger"
	"github.com/carebox/carebox/infra/metrics"
	"github.com/carebox/carebox/infra/mqtt"
	"github.com/carebox/carebox/infra/storage"
	"github.com/carebox/carebox/internal/eventbus"
)

// Service wires the engine, its store, the broker connection and the
// metrics sinks.
type Service struct {
	Orchestrator *dispense.Orchestrator
	client       *mqtt.PahoClient
	store        corestorage.Store
	bus          *eventbus.Bus[any]
	log          logger.Logger
	promEnabled  bool
	promAddr     string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	clk := clock.System{}

	var store corestorage.Store
	if cfg.Storage.InMemory {
		store = storage.NewMemoryStore()
	} else {
		bs, err := storage.NewBadgerStore(cfg.Storage.Dir, logger.New("storage"))
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		store = bs
	}

	reg := records.NewRegistry(store, logger.New("records"))
	if err := reg.Load(clk.Now()); err != nil {
		logg.Errorf("loading records: %v", err)
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.MetricsSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New[any]()
	alerts := infraalert.NewLogPlayer(logger.New("alert"))
	rig := infrahardware.NewSimRig(logger.New("rig"))
	seq := hardware.NewSequencer(cfg.Hardware, rig, rig, rig, alerts, logger.New("hardware"))
	if cfg.Hardware.SelfTest {
		if err := seq.SelfTest(context.Background()); err != nil {
			logg.Errorf("hardware self test: %v", err)
		}
	}

	orch, err := dispense.New(cfg.Dispenser, reg, seq, clk, nil, alerts, bus, sink, logger.New("dispense"))
	if err != nil {
		return nil, fmt.Errorf("dispense engine: %w", err)
	}

	handler := mqtt.NewHandler(orch, clk, logger.New("mqtt_handler"))
	client, err := mqtt.NewPahoClient(cfg.MQTT, handler)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	orch.SetPublisher(client)

	return &Service{
		Orchestrator: orch,
		client:       client,
		store:        store,
		bus:          bus,
		log:          logg,
		promEnabled:  cfg.Metrics.PrometheusEnabled,
		promAddr:     cfg.Metrics.PrometheusAddr,
	}, nil
}

// Run starts the engine and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	err := s.Orchestrator.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.client.Disconnect()
	s.bus.Close()
	return s.store.Close()
}
