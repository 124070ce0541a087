// Package app assembles the bridge from its configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/chairlink/config"
	"github.com/kilianp07/chairlink/core/configpush"
	"github.com/kilianp07/chairlink/core/device"
	"github.com/kilianp07/chairlink/core/hardware"
	coremetrics "github.com/kilianp07/chairlink/core/metrics"
	"github.com/kilianp07/chairlink/core/session"
	"github.com/kilianp07/chairlink/infra/discovery"
	infrahw "github.com/kilianp07/chairlink/infra/hardware"
	"github.com/kilianp07/chairlink/infra/logger"
	"github.com/kilianp07/chairlink/infra/metrics"
	"github.com/kilianp07/chairlink/infra/transport"
	"github.com/kilianp07/chairlink/internal/eventbus"
)

// Service owns the hardware, the device model and the session manager.
type Service struct {
	Manager *session.Manager
	Device  *device.State

	hw       hardware.Device
	bus      *eventbus.TypedBus[session.Transition]
	resolver session.Resolver
	log      logger.Logger
	promAddr string
}

// New creates a Service from the configuration. The hardware is not opened
// until Run.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.Configure(cfg.Log); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	log := logger.New("service")

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	hw, err := infrahw.New(cfg.Hardware)
	if err != nil {
		return nil, fmt.Errorf("hardware: %w", err)
	}
	tr, err := transport.New(cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	resolver, err := discovery.NewResolver(cfg.Discovery)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	announcer, err := discovery.NewAnnouncer(cfg.Announce)
	if err != nil {
		return nil, fmt.Errorf("announce: %w", err)
	}

	state := device.New(hw, cfg.Device, logger.New("device"), sink)
	bus := eventbus.NewTyped[session.Transition]()
	deps := session.Deps{
		Resolver:  resolver,
		Transport: tr,
		Announcer: announcer,
		Device:    state,
		Log:       logger.New("session"),
		Sink:      sink,
		Bus:       bus,
	}
	if cfg.ConfigPush.Path != "" {
		deps.ConfigPush = configpush.NewWatcher(cfg.ConfigPush, logger.New("config_push"))
	}
	mgr, err := session.NewManager(cfg.Session, deps)
	if err != nil {
		return nil, err
	}
	log.Infof("hardware=%s transport=%s discovery=%s announce=%s",
		cfg.Hardware.Type, cfg.Transport.Type, cfg.Discovery.Type, cfg.Announce.Type)
	return &Service{
		Manager:  mgr,
		Device:   state,
		hw:       hw,
		bus:      bus,
		resolver: resolver,
		log:      log,
		promAddr: cfg.Metrics.PrometheusAddr,
	}, nil
}

// Run opens the hardware and runs the session until ctx is cancelled. A
// hardware open failure is fatal; everything after it is retried.
func (s *Service) Run(ctx context.Context) error {
	if err := s.hw.Open(); err != nil {
		return fmt.Errorf("open hardware: %w", err)
	}
	// The keeper outlives ctx so the controller keeps receiving heartbeats
	// while the chair is parked; keeper.Stop ends it.
	keeper := s.Device.StartKeeper(context.WithoutCancel(ctx))
	done := logTransitions(ctx, s.bus, s.log)

	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	runErr := s.Manager.Run(ctx)

	// Park the chair while the keeper still feeds the controller.
	var errs []error
	if err := s.Device.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop device: %w", err))
	}
	keeper.Stop()
	if err := s.hw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close hardware: %w", err))
	}
	<-done
	s.log.Infof("stopped after %d hardware heartbeats (%d failed)", keeper.Sent(), keeper.Failed())
	return errors.Join(append([]error{runErr}, errs...)...)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if c, ok := s.resolver.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
