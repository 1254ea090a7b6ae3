package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/fixnow/dispatch/config"
	"github.com/fixnow/dispatch/core/catalog"
	coredispatch "github.com/fixnow/dispatch/core/dispatch"
	"github.com/fixnow/dispatch/core/dispatch/logging"
	"github.com/fixnow/dispatch/core/directory"
	coremetrics "github.com/fixnow/dispatch/core/metrics"
	corenotify "github.com/fixnow/dispatch/core/notify"
	"github.com/fixnow/dispatch/core/providerstatus"
	"github.com/fixnow/dispatch/infra/logger"
	"github.com/fixnow/dispatch/infra/metrics"
	"github.com/fixnow/dispatch/infra/notify"
	"github.com/fixnow/dispatch/internal/eventbus"
)

// Service wires the dispatch coordinator to its collaborators and runs
// the background reaper.
type Service struct {
	Coordinator *coredispatch.Coordinator
	Directory   *directory.MemoryDirectory
	Catalog     *catalog.MemoryCatalog
	Status      *providerstatus.MemoryStore
	bus         eventbus.EventBus
	log         logger.Logger
	reaper      *cron.Cron
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	var notifier corenotify.Notifier
	if cfg.Notifier.Broker != "" {
		n, err := notify.NewMQTTNotifier(cfg.Notifier)
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
		notifier = n
	} else {
		logg.Warnf("no broker configured, notifications are collected in memory")
		notifier = notify.NewMockNotifier()
	}

	var sinks []coremetrics.MetricsSink
	promEnabled := cfg.Metrics.PrometheusEnabled
	promPort := cfg.Metrics.PrometheusPort
	if promEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.MetricsSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	dir := directory.NewMemoryDirectory()
	cat, err := catalog.NewMemoryCatalog()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	bus := eventbus.New()
	coord, err := coredispatch.NewCoordinator(dir, cat, notifier, cfg.Dispatch, sink, bus, logg)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	switch cfg.Logging.Backend {
	case "jsonl":
		store, err := logging.NewJSONLStore(cfg.Logging.Path)
		if err != nil {
			return nil, fmt.Errorf("jsonl store: %w", err)
		}
		coord.SetLogStore(store)
	case "sqlite":
		store, err := logging.NewSQLiteStore(cfg.Logging.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		coord.SetLogStore(store)
	}

	status := providerstatus.NewMemoryStore()
	coord.SetStatusStore(status)

	svc := &Service{
		Coordinator: coord,
		Directory:   dir,
		Catalog:     cat,
		Status:      status,
		bus:         bus,
		log:         logg,
		promEnabled: promEnabled,
		promPort:    promPort,
	}
	svc.reaper = cron.New()
	if _, err := svc.reaper.AddFunc(cfg.Dispatch.ReaperSpec, func() {
		if n := coord.ExpireOverdue(); n > 0 {
			logg.Infof("reaper closed %d overdue requests", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("reaper schedule: %w", err)
	}
	return svc, nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.reaper.Start()
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	reapCtx := s.reaper.Stop()
	<-reapCtx.Done()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error { return s.Coordinator.Close() }
