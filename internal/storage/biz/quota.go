package biz

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
)

// QuotaStore loads persisted usage and limits for an owner. UsedBytes counts
// every version of every file, soft-deleted included; deleted bytes stop
// counting only when the file is purged.
type QuotaStore interface {
	UsedBytes(ctx context.Context, ownerID string) (int64, error)
	// LimitBytes returns the per-owner override and whether one exists
	LimitBytes(ctx context.Context, ownerID string) (int64, bool, error)
	SetLimitBytes(ctx context.Context, ownerID string, limit int64) error
}

// QuotaWarning is emitted when an owner crosses the warn threshold
type QuotaWarning struct {
	OwnerID    string
	UsedBytes  int64
	LimitBytes int64
	At         time.Time
}

// WarningSink receives quota warnings. Implementations must not block.
type WarningSink interface {
	QuotaWarning(w QuotaWarning)
}

// QuotaConfig tunes the ledger
type QuotaConfig struct {
	DefaultLimit  int64   // bytes granted to owners without an override
	WarnThreshold float64 // fraction of the limit that triggers a warning
}

type ownerUsage struct {
	used   int64
	limit  int64
	warned bool
}

// QuotaLedger tracks per-owner storage usage. Usage is cached in memory after
// the first load; CheckCapacity reads the cache without I/O, and Reserve
// re-checks the limit under the owner's lock so concurrent commits can never
// push usage past the limit.
type QuotaLedger struct {
	store  QuotaStore
	config QuotaConfig
	sink   WarningSink
	logger *logger.Logger

	mu     sync.Mutex
	owners map[string]*ownerUsage
}

// NewQuotaLedger creates a quota ledger
func NewQuotaLedger(store QuotaStore, cfg QuotaConfig, log *logger.Logger) *QuotaLedger {
	if cfg.WarnThreshold <= 0 || cfg.WarnThreshold > 1 {
		cfg.WarnThreshold = 0.9
	}
	return &QuotaLedger{
		store:  store,
		config: cfg,
		logger: log,
		owners: make(map[string]*ownerUsage),
	}
}

// SetWarningSink attaches the warning consumer. Call before serving traffic.
func (l *QuotaLedger) SetWarningSink(sink WarningSink) {
	l.sink = sink
}

// Prime loads an owner's usage and limit into the cache if absent
func (l *QuotaLedger) Prime(ctx context.Context, ownerID string) error {
	l.mu.Lock()
	_, ok := l.owners[ownerID]
	l.mu.Unlock()
	if ok {
		return nil
	}

	used, err := l.store.UsedBytes(ctx, ownerID)
	if err != nil {
		return err
	}
	limit, hasOverride, err := l.store.LimitBytes(ctx, ownerID)
	if err != nil {
		return err
	}
	if !hasOverride {
		limit = l.config.DefaultLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.owners[ownerID]; !ok {
		l.owners[ownerID] = &ownerUsage{used: used, limit: limit}
	}
	return nil
}

// CheckCapacity reports whether incoming bytes fit within the owner's quota.
// It is a pure read of cached state and performs no I/O; callers must Prime
// the owner first. Available never goes negative.
func (l *QuotaLedger) CheckCapacity(ownerID string, incoming int64) (allowed bool, available int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.owners[ownerID]
	if !ok {
		return false, 0
	}
	available = u.limit - u.used
	if available < 0 {
		available = 0
	}
	return incoming <= available, available
}

// Reserve atomically re-checks capacity and records the usage. It is the
// commit step of the two-phase admission: CheckCapacity may have said yes
// earlier, but only Reserve's answer is binding.
func (l *QuotaLedger) Reserve(ctx context.Context, ownerID string, bytes int64) error {
	if bytes < 0 {
		return apperrors.NewValidationError("reserve size must be non-negative")
	}
	if err := l.Prime(ctx, ownerID); err != nil {
		return err
	}

	l.mu.Lock()
	u := l.owners[ownerID]
	available := u.limit - u.used
	if available < 0 {
		available = 0
	}
	if bytes > available {
		l.mu.Unlock()
		return apperrors.NewQuotaExceededError(bytes-available, available)
	}
	u.used += bytes
	warning, warn := l.maybeWarnLocked(ownerID, u)
	l.mu.Unlock()

	if warn {
		l.emitWarning(warning)
	}
	return nil
}

// Release returns bytes to the owner's quota after a purge or failed commit
func (l *QuotaLedger) Release(ownerID string, bytes int64) {
	if bytes <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.owners[ownerID]
	if !ok {
		return
	}
	u.used -= bytes
	if u.used < 0 {
		u.used = 0
	}
	if float64(u.used) < l.config.WarnThreshold*float64(u.limit) {
		u.warned = false
	}
}

// Snapshot returns the cached usage and limit for an owner
func (l *QuotaLedger) Snapshot(ownerID string) (used, limit int64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, found := l.owners[ownerID]
	if !found {
		return 0, 0, false
	}
	return u.used, u.limit, true
}

// SetLimit updates an owner's limit override and the cache
func (l *QuotaLedger) SetLimit(ctx context.Context, ownerID string, limit int64) error {
	if limit <= 0 {
		return apperrors.NewValidationError("quota limit must be positive")
	}
	if err := l.store.SetLimitBytes(ctx, ownerID, limit); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if u, ok := l.owners[ownerID]; ok {
		u.limit = limit
		u.warned = false
	}
	l.logger.Info("owner quota limit updated",
		zap.String("owner_id", ownerID),
		zap.Int64("limit_bytes", limit),
	)
	return nil
}

// Invalidate drops an owner's cached state, forcing a reload on next Prime.
// Used after out-of-band mutations such as purges done directly in the store.
func (l *QuotaLedger) Invalidate(ownerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.owners, ownerID)
}

func (l *QuotaLedger) maybeWarnLocked(ownerID string, u *ownerUsage) (QuotaWarning, bool) {
	if u.warned || u.limit <= 0 {
		return QuotaWarning{}, false
	}
	if float64(u.used) < l.config.WarnThreshold*float64(u.limit) {
		return QuotaWarning{}, false
	}
	u.warned = true
	return QuotaWarning{
		OwnerID:    ownerID,
		UsedBytes:  u.used,
		LimitBytes: u.limit,
		At:         time.Now().UTC(),
	}, true
}

func (l *QuotaLedger) emitWarning(w QuotaWarning) {
	l.logger.Warn("owner approaching quota limit",
		zap.String("owner_id", w.OwnerID),
		zap.Int64("used_bytes", w.UsedBytes),
		zap.Int64("limit_bytes", w.LimitBytes),
	)
	if l.sink != nil {
		l.sink.QuotaWarning(w)
	}
}
