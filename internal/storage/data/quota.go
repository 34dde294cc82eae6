package data

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
	"github.com/cloudvault/cloudvault-backend/internal/storage/models"
)

type quotaStore struct {
	db     *database.DB
	logger *logger.Logger
}

// NewQuotaStore creates a quota store
func NewQuotaStore(db *database.DB, log *logger.Logger) biz.QuotaStore {
	return &quotaStore{db: db, logger: log}
}

// UsedBytes sums every version of every file the owner has, soft-deleted
// files included; only purging removes their footprint.
func (s *quotaStore) UsedBytes(ctx context.Context, ownerID string) (int64, error) {
	var used int64
	err := s.db.GetDBFromContext(ctx).
		Model(&models.FileVersion{}).
		Joins("JOIN files ON files.id = file_versions.file_id").
		Where("files.owner_id = ?", ownerID).
		Select("COALESCE(SUM(file_versions.size), 0)").
		Scan(&used).Error
	if err != nil {
		return 0, err
	}
	return used, nil
}

func (s *quotaStore) LimitBytes(ctx context.Context, ownerID string) (int64, bool, error) {
	var q models.OwnerQuota
	err := s.db.GetDBFromContext(ctx).Where("owner_id = ?", ownerID).First(&q).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return q.LimitBytes, true, nil
}

func (s *quotaStore) SetLimitBytes(ctx context.Context, ownerID string, limit int64) error {
	now := time.Now().UTC()
	return s.db.GetDBFromContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"limit_bytes": limit, "updated_at": now}),
		}).
		Create(&models.OwnerQuota{
			OwnerID:    ownerID,
			LimitBytes: limit,
			CreatedAt:  now,
			UpdatedAt:  now,
		}).Error
}
