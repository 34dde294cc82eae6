package biz

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
)

// ProbeScheduler drives periodic health probing of all active backends
type ProbeScheduler struct {
	registry *BackendRegistry
	probe    *HealthProbe
	interval time.Duration
	logger   *logger.Logger
}

// NewProbeScheduler creates a scheduler probing at the given interval
func NewProbeScheduler(registry *BackendRegistry, probe *HealthProbe, interval time.Duration, log *logger.Logger) *ProbeScheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &ProbeScheduler{
		registry: registry,
		probe:    probe,
		interval: interval,
		logger:   log,
	}
}

// Start runs the probe loop until ctx is cancelled. It probes once
// immediately so backends leave the Unknown state at startup.
func (s *ProbeScheduler) Start(ctx context.Context) {
	s.logger.Info("health probe scheduler started", zap.Duration("interval", s.interval))

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("initial probe round failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("health probe scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("probe round failed", zap.Error(err))
			}
		}
	}
}

// RunOnce probes every active backend once and applies the results
func (s *ProbeScheduler) RunOnce(ctx context.Context) error {
	backends, err := s.registry.ListProbeTargets(ctx)
	if err != nil {
		return err
	}
	if len(backends) == 0 {
		return nil
	}

	results := s.probe.ProbeAll(ctx, backends)
	for _, res := range results {
		if err := s.registry.ApplyProbeResult(ctx, res); err != nil {
			s.logger.Error("failed to apply probe result",
				zap.String("backend_id", res.BackendID),
				zap.Error(err),
			)
		}
	}
	return nil
}
