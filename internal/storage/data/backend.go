package data

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
	"github.com/cloudvault/cloudvault-backend/internal/storage/models"
	"github.com/cloudvault/cloudvault-backend/internal/storage/types"
)

type backendRepo struct {
	db     *database.DB
	logger *logger.Logger
}

// NewBackendRepo creates a backend repository
func NewBackendRepo(db *database.DB, log *logger.Logger) biz.BackendRepo {
	return &backendRepo{db: db, logger: log}
}

func (r *backendRepo) Create(ctx context.Context, b *biz.Backend) error {
	m := toBackendModel(b)
	if err := r.db.GetDBFromContext(ctx).Create(m).Error; err != nil {
		return err
	}
	b.ID = m.ID
	b.CreatedAt = m.CreatedAt
	b.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *backendRepo) GetByID(ctx context.Context, id string) (*biz.Backend, error) {
	var m models.StorageBackend
	err := r.db.GetDBFromContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toBackendDomain(&m), nil
}

func (r *backendRepo) GetByName(ctx context.Context, name string) (*biz.Backend, error) {
	var m models.StorageBackend
	err := r.db.GetDBFromContext(ctx).Where("name = ?", name).First(&m).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toBackendDomain(&m), nil
}

func (r *backendRepo) List(ctx context.Context) ([]*biz.Backend, error) {
	var ms []models.StorageBackend
	err := r.db.GetDBFromContext(ctx).Order("name ASC").Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return toBackendDomains(ms), nil
}

func (r *backendRepo) ListActive(ctx context.Context) ([]*biz.Backend, error) {
	var ms []models.StorageBackend
	err := r.db.GetDBFromContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return toBackendDomains(ms), nil
}

func (r *backendRepo) Update(ctx context.Context, b *biz.Backend) error {
	m := toBackendModel(b)
	return r.db.GetDBFromContext(ctx).
		Model(&models.StorageBackend{}).
		Where("id = ?", b.ID).
		Select("name", "kind", "credentials", "capabilities", "settings", "is_active", "updated_at").
		Updates(m).Error
}

// SetDefault clears every default flag then sets one, inside a transaction so
// readers always observe exactly one default among active backends.
func (r *backendRepo) SetDefault(ctx context.Context, id string) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		tx := r.db.GetDBFromContext(ctx)
		if err := tx.Model(&models.StorageBackend{}).
			Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.StorageBackend{}).
			Where("id = ?", id).
			Update("is_default", true).Error
	})
}

func (r *backendRepo) RecordUsage(ctx context.Context, id string, deltaFiles, deltaBytes int64) error {
	return r.db.GetDBFromContext(ctx).
		Model(&models.StorageBackend{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"file_count":   gorm.Expr("GREATEST(file_count + ?, 0)", deltaFiles),
			"bytes_used":   gorm.Expr("GREATEST(bytes_used + ?, 0)", deltaBytes),
			"last_used_at": time.Now().UTC(),
		}).Error
}

func (r *backendRepo) UpdateHealth(ctx context.Context, b *biz.Backend) error {
	return r.db.GetDBFromContext(ctx).
		Model(&models.StorageBackend{}).
		Where("id = ?", b.ID).
		Updates(map[string]interface{}{
			"health_state":     string(b.HealthState),
			"success_streak":   b.SuccessStreak,
			"failure_streak":   b.FailureStreak,
			"last_probe_at":    b.LastProbeAt,
			"last_probe_error": b.LastProbeError,
			"last_latency_ms":  b.LastLatencyMS,
			"error_count":      b.ErrorCount,
		}).Error
}

func (r *backendRepo) Deactivate(ctx context.Context, id string) error {
	return r.db.GetDBFromContext(ctx).
		Model(&models.StorageBackend{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"is_default": false,
		}).Error
}

func toBackendModel(b *biz.Backend) *models.StorageBackend {
	return &models.StorageBackend{
		ID:             b.ID,
		Name:           b.Name,
		Kind:           string(b.Kind),
		Credentials:    b.Credentials,
		Capabilities:   b.Capabilities,
		Settings:       b.Settings,
		IsActive:       b.IsActive,
		IsDefault:      b.IsDefault,
		HealthState:    string(b.HealthState),
		SuccessStreak:  b.SuccessStreak,
		FailureStreak:  b.FailureStreak,
		LastProbeAt:    b.LastProbeAt,
		LastProbeError: b.LastProbeError,
		LastLatencyMS:  b.LastLatencyMS,
		FileCount:      b.FileCount,
		BytesUsed:      b.BytesUsed,
		ErrorCount:     b.ErrorCount,
		LastUsedAt:     b.LastUsedAt,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func toBackendDomain(m *models.StorageBackend) *biz.Backend {
	return &biz.Backend{
		ID:             m.ID,
		Name:           m.Name,
		Kind:           types.BackendKind(m.Kind),
		Credentials:    m.Credentials,
		Capabilities:   m.Capabilities,
		Settings:       m.Settings,
		IsActive:       m.IsActive,
		IsDefault:      m.IsDefault,
		HealthState:    types.HealthState(m.HealthState),
		SuccessStreak:  m.SuccessStreak,
		FailureStreak:  m.FailureStreak,
		LastProbeAt:    m.LastProbeAt,
		LastProbeError: m.LastProbeError,
		LastLatencyMS:  m.LastLatencyMS,
		FileCount:      m.FileCount,
		BytesUsed:      m.BytesUsed,
		ErrorCount:     m.ErrorCount,
		LastUsedAt:     m.LastUsedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toBackendDomains(ms []models.StorageBackend) []*biz.Backend {
	out := make([]*biz.Backend, 0, len(ms))
	for i := range ms {
		out = append(out, toBackendDomain(&ms[i]))
	}
	return out
}
