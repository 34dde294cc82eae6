package biz

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/storage/types"
)

// Backend is the domain view of a configured storage target
type Backend struct {
	ID   string
	Name string
	Kind types.BackendKind

	Credentials  types.CredentialBundle
	Capabilities types.Capabilities
	Settings     types.Settings

	IsActive  bool
	IsDefault bool

	HealthState    types.HealthState
	SuccessStreak  int
	FailureStreak  int
	LastProbeAt    *time.Time
	LastProbeError string
	LastLatencyMS  int64

	FileCount  int64
	BytesUsed  int64
	ErrorCount int64
	LastUsedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Healthy reports whether the backend is usable for new writes
func (b *Backend) Healthy() bool {
	return b.HealthState == types.HealthHealthy
}

// BackendRepo is the persistence contract for backend configs
type BackendRepo interface {
	Create(ctx context.Context, b *Backend) error
	GetByID(ctx context.Context, id string) (*Backend, error)
	GetByName(ctx context.Context, name string) (*Backend, error)
	List(ctx context.Context) ([]*Backend, error)
	ListActive(ctx context.Context) ([]*Backend, error) // active only, any health, ordered by name
	Update(ctx context.Context, b *Backend) error
	// SetDefault atomically clears the default flag everywhere and sets it on
	// one record; a concurrent reader never observes zero or two defaults.
	SetDefault(ctx context.Context, id string) error
	RecordUsage(ctx context.Context, id string, deltaFiles, deltaBytes int64) error
	UpdateHealth(ctx context.Context, b *Backend) error
	Deactivate(ctx context.Context, id string) error
}

// RegistryConfig tunes the health state machine hysteresis
type RegistryConfig struct {
	HealthyThreshold   int // consecutive successes to leave Unhealthy
	UnhealthyThreshold int // consecutive failures to leave Healthy
}

// DefaultRegistryConfig returns the standard hysteresis thresholds
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		HealthyThreshold:   2,
		UnhealthyThreshold: 3,
	}
}

// BackendRegistry owns backend configs and their health state. Health
// transitions are serialized per backend so concurrent probe results cannot
// interleave streak updates.
type BackendRegistry struct {
	repo   BackendRepo
	config RegistryConfig
	logger *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBackendRegistry creates a backend registry
func NewBackendRegistry(repo BackendRepo, cfg RegistryConfig, log *logger.Logger) *BackendRegistry {
	if cfg.HealthyThreshold <= 0 {
		cfg.HealthyThreshold = DefaultRegistryConfig().HealthyThreshold
	}
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = DefaultRegistryConfig().UnhealthyThreshold
	}
	return &BackendRegistry{
		repo:   repo,
		config: cfg,
		logger: log,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Register validates and persists a new backend config
func (r *BackendRegistry) Register(ctx context.Context, b *Backend) (*Backend, error) {
	if b.Name == "" {
		return nil, apperrors.NewValidationError("backend name is required")
	}
	if !b.Kind.Valid() {
		return nil, apperrors.New(apperrors.ErrBackendInvalidKind, string(b.Kind))
	}
	if err := b.Credentials.Validate(b.Kind); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrBackendBadCreds)
	}

	existing, err := r.repo.GetByName(ctx, b.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.ErrBackendExists, b.Name)
	}

	b.IsActive = true
	b.HealthState = types.HealthUnknown
	b.SuccessStreak = 0
	b.FailureStreak = 0

	wantDefault := b.IsDefault
	b.IsDefault = false

	if err := r.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	if wantDefault {
		if err := r.repo.SetDefault(ctx, b.ID); err != nil {
			return nil, err
		}
		b.IsDefault = true
	}

	r.logger.Info("storage backend registered",
		zap.String("id", b.ID),
		zap.String("name", b.Name),
		zap.String("kind", string(b.Kind)),
	)
	return b, nil
}

// Get returns a backend by id
func (r *BackendRegistry) Get(ctx context.Context, id string) (*Backend, error) {
	b, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperrors.New(apperrors.ErrBackendNotFound, id)
	}
	return b, nil
}

// List returns every registered backend, active or not
func (r *BackendRegistry) List(ctx context.Context) ([]*Backend, error) {
	return r.repo.List(ctx)
}

// ListActive returns backends that are both active and healthy, ordered by name
func (r *BackendRegistry) ListActive(ctx context.Context) ([]*Backend, error) {
	backends, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	healthy := make([]*Backend, 0, len(backends))
	for _, b := range backends {
		if b.Healthy() {
			healthy = append(healthy, b)
		}
	}
	sort.Slice(healthy, func(i, j int) bool { return healthy[i].Name < healthy[j].Name })
	return healthy, nil
}

// ListProbeTargets returns every active backend regardless of health, so
// unhealthy backends keep getting probed and can recover.
func (r *BackendRegistry) ListProbeTargets(ctx context.Context) ([]*Backend, error) {
	return r.repo.ListActive(ctx)
}

// GetDefault returns the active+healthy default backend, falling back to the
// first active+healthy backend when the flagged default is unhealthy or
// missing. When nothing qualifies it returns NoBackendAvailable carrying the
// names of the unhealthy backends.
func (r *BackendRegistry) GetDefault(ctx context.Context) (*Backend, error) {
	backends, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var fallback *Backend
	var unhealthy []string
	for _, b := range backends {
		if !b.Healthy() {
			unhealthy = append(unhealthy, b.Name)
			continue
		}
		if b.IsDefault {
			return b, nil
		}
		if fallback == nil {
			fallback = b
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, apperrors.NewNoBackendAvailableError(unhealthy)
}

// SetDefault makes the given backend the default. The repo performs the
// clear-all-then-set atomically; once this returns every GetDefault observes
// the new default.
func (r *BackendRegistry) SetDefault(ctx context.Context, id string) error {
	b, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsActive {
		return apperrors.New(apperrors.ErrBackendInactive, b.Name)
	}
	if err := r.repo.SetDefault(ctx, id); err != nil {
		return err
	}
	r.logger.Info("default storage backend changed", zap.String("id", id), zap.String("name", b.Name))
	return nil
}

// Deactivate retires a backend; configs are never hard-deleted
func (r *BackendRegistry) Deactivate(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.repo.Deactivate(ctx, id)
}

// RecordUsage updates the cumulative usage counters after a committed transfer
func (r *BackendRegistry) RecordUsage(ctx context.Context, id string, deltaFiles, deltaBytes int64) error {
	return r.repo.RecordUsage(ctx, id, deltaFiles, deltaBytes)
}

// ApplyProbeResult feeds one probe outcome into the health state machine and
// persists the resulting state.
func (r *BackendRegistry) ApplyProbeResult(ctx context.Context, res ProbeResult) error {
	lock := r.backendLock(res.BackendID)
	lock.Lock()
	defer lock.Unlock()

	b, err := r.Get(ctx, res.BackendID)
	if err != nil {
		return err
	}

	prev := b.HealthState
	if res.OK {
		b.SuccessStreak++
		b.FailureStreak = 0
		b.LastProbeError = ""
	} else {
		b.FailureStreak++
		b.SuccessStreak = 0
		if res.Err != nil {
			b.LastProbeError = res.Err.Error()
		}
		b.ErrorCount++
	}
	b.HealthState = nextHealthState(b.HealthState, b.SuccessStreak, b.FailureStreak, r.config)

	now := time.Now().UTC()
	b.LastProbeAt = &now
	b.LastLatencyMS = res.Latency.Milliseconds()

	if err := r.repo.UpdateHealth(ctx, b); err != nil {
		return err
	}

	if prev != b.HealthState {
		r.logger.Warn("backend health state changed",
			zap.String("backend", b.Name),
			zap.String("from", string(prev)),
			zap.String("to", string(b.HealthState)),
			zap.Int("success_streak", b.SuccessStreak),
			zap.Int("failure_streak", b.FailureStreak),
		)
	}
	return nil
}

// nextHealthState implements the hysteresis transitions:
// Unknown flips on the first result; Unhealthy needs HealthyThreshold
// consecutive successes to recover; Healthy needs UnhealthyThreshold
// consecutive failures to degrade.
func nextHealthState(state types.HealthState, successStreak, failureStreak int, cfg RegistryConfig) types.HealthState {
	switch state {
	case types.HealthUnknown:
		if successStreak > 0 {
			return types.HealthHealthy
		}
		return types.HealthUnhealthy
	case types.HealthHealthy:
		if failureStreak >= cfg.UnhealthyThreshold {
			return types.HealthUnhealthy
		}
		return types.HealthHealthy
	case types.HealthUnhealthy:
		if successStreak >= cfg.HealthyThreshold {
			return types.HealthHealthy
		}
		return types.HealthUnhealthy
	default:
		return types.HealthUnknown
	}
}

func (r *BackendRegistry) backendLock(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}
