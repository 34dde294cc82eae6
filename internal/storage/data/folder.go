package data

import (
	"context"
	"time"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
	"github.com/cloudvault/cloudvault-backend/internal/storage/models"
)

type folderRepo struct {
	db     *database.DB
	logger *logger.Logger
}

// NewFolderRepo creates a folder repository
func NewFolderRepo(db *database.DB, log *logger.Logger) biz.FolderRepo {
	return &folderRepo{db: db, logger: log}
}

func (r *folderRepo) Create(ctx context.Context, f *biz.Folder) error {
	m := toFolderModel(f)
	if err := r.db.GetDBFromContext(ctx).Create(m).Error; err != nil {
		return err
	}
	f.ID = m.ID
	f.CreatedAt = m.CreatedAt
	f.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *folderRepo) GetByID(ctx context.Context, id string) (*biz.Folder, error) {
	var m models.Folder
	err := r.db.GetDBFromContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toFolderDomain(&m), nil
}

func (r *folderRepo) HasLiveSibling(ctx context.Context, ownerID string, parentID *string, name, excludeID string) (bool, error) {
	q := r.db.GetDBFromContext(ctx).
		Model(&models.Folder{}).
		Where("owner_id = ? AND name = ? AND is_deleted = ?", ownerID, name, false)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListSubtree matches the folder itself plus everything under it. Matching on
// path = prefix OR path LIKE prefix || '/%' avoids catching siblings whose
// names share the prefix, like /docs vs /docs2.
func (r *folderRepo) ListSubtree(ctx context.Context, ownerID, prefix string) ([]*biz.Folder, error) {
	var ms []models.Folder
	err := r.db.GetDBFromContext(ctx).
		Where("owner_id = ? AND (path = ? OR path LIKE ?)", ownerID, prefix, prefix+"/%").
		Order("path ASC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	out := make([]*biz.Folder, 0, len(ms))
	for i := range ms {
		out = append(out, toFolderDomain(&ms[i]))
	}
	return out, nil
}

func (r *folderRepo) Update(ctx context.Context, f *biz.Folder) error {
	return r.db.GetDBFromContext(ctx).
		Model(&models.Folder{}).
		Where("id = ?", f.ID).
		Updates(map[string]interface{}{
			"parent_id":  f.ParentID,
			"name":       f.Name,
			"path":       f.Path,
			"updated_at": f.UpdatedAt,
		}).Error
}

func (r *folderRepo) UpdatePaths(ctx context.Context, updates []biz.PathUpdate) error {
	tx := r.db.GetDBFromContext(ctx)
	for _, u := range updates {
		if err := tx.Model(&models.Folder{}).
			Where("id = ?", u.ID).
			Update("path", u.Path).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *folderRepo) SetDeleted(ctx context.Context, ids []string, deleted bool, by string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"is_deleted": deleted,
		"updated_at": at,
	}
	if deleted {
		updates["deleted_at"] = at
		updates["deleted_by"] = by
	} else {
		updates["deleted_at"] = nil
		updates["deleted_by"] = ""
	}
	return r.db.GetDBFromContext(ctx).
		Model(&models.Folder{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}

func toFolderModel(f *biz.Folder) *models.Folder {
	return &models.Folder{
		ID:        f.ID,
		OwnerID:   f.OwnerID,
		ParentID:  f.ParentID,
		Name:      f.Name,
		Path:      f.Path,
		IsDeleted: f.IsDeleted,
		DeletedAt: f.DeletedAt,
		DeletedBy: f.DeletedBy,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func toFolderDomain(m *models.Folder) *biz.Folder {
	return &biz.Folder{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		ParentID:  m.ParentID,
		Name:      m.Name,
		Path:      m.Path,
		IsDeleted: m.IsDeleted,
		DeletedAt: m.DeletedAt,
		DeletedBy: m.DeletedBy,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
