package biz

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/workerpool"
)

// ProbeResult is the outcome of one health check against one backend
type ProbeResult struct {
	BackendID string
	OK        bool
	Latency   time.Duration
	Err       error
}

// BackendProber performs the transport-level reachability check for a backend.
// Implementations must honor ctx cancellation.
type BackendProber interface {
	Probe(ctx context.Context, b *Backend) error
}

// HealthProbe runs bounded-time health checks against backends. A panic or
// hang inside a prober is converted into a failed result; one bad backend
// never takes the prober down.
type HealthProbe struct {
	prober BackendProber
	pool   *workerpool.Pool
	logger *logger.Logger
}

// NewHealthProbe creates a health probe running checks on the given pool
func NewHealthProbe(prober BackendProber, pool *workerpool.Pool, log *logger.Logger) *HealthProbe {
	return &HealthProbe{
		prober: prober,
		pool:   pool,
		logger: log,
	}
}

// Probe checks one backend within its configured deadline
func (h *HealthProbe) Probe(ctx context.Context, b *Backend) ProbeResult {
	deadline := b.Settings.ProbeDeadline()
	probeCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	err := h.runProbe(probeCtx, b)
	latency := time.Since(start)

	res := ProbeResult{
		BackendID: b.ID,
		OK:        err == nil,
		Latency:   latency,
		Err:       err,
	}
	if err != nil {
		h.logger.Warn("backend probe failed",
			zap.String("backend", b.Name),
			zap.String("kind", string(b.Kind)),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
	}
	return res
}

// runProbe invokes the prober with panic isolation
func (h *HealthProbe) runProbe(ctx context.Context, b *Backend) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return h.prober.Probe(ctx, b)
}

// ProbeAll checks every given backend concurrently, bounded by the pool size,
// and returns one result per backend in input order.
func (h *HealthProbe) ProbeAll(ctx context.Context, backends []*Backend) []ProbeResult {
	results := make([]ProbeResult, len(backends))
	tasks := make([]func(), len(backends))
	for i, b := range backends {
		i, b := i, b
		tasks[i] = func() {
			results[i] = h.Probe(ctx, b)
		}
	}
	if err := h.pool.Run(tasks); err != nil {
		// Pool is shut down; report every backend as unchecked
		for i, b := range backends {
			results[i] = ProbeResult{BackendID: b.ID, OK: false, Err: err}
		}
	}
	return results
}
