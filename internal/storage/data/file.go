package data

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
	"github.com/cloudvault/cloudvault-backend/internal/storage/models"
)

type fileRepo struct {
	db     *database.DB
	logger *logger.Logger
}

// NewFileRepo creates a file repository
func NewFileRepo(db *database.DB, log *logger.Logger) biz.FileRepo {
	return &fileRepo{db: db, logger: log}
}

// Create persists the file and its version-1 row in one transaction
func (r *fileRepo) Create(ctx context.Context, f *biz.File) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		tx := r.db.GetDBFromContext(ctx)

		m := toFileModel(f)
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		f.ID = m.ID
		f.CreatedAt = m.CreatedAt
		f.UpdatedAt = m.UpdatedAt

		v := &models.FileVersion{
			FileID:        m.ID,
			VersionNumber: 1,
			Size:          f.Size,
			StorageKey:    f.StorageKey,
			Hash:          f.Hash,
			UploadedBy:    f.OwnerID,
			CreatedAt:     f.CreatedAt,
		}
		if err := tx.Create(v).Error; err != nil {
			return err
		}
		f.Versions = []*biz.FileVersion{toVersionDomain(v)}
		return nil
	})
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*biz.File, error) {
	var m models.File
	err := r.db.GetDBFromContext(ctx).
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version_number ASC")
		}).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toFileDomain(&m), nil
}

// AppendVersion writes the new version row and the updated mirror fields in
// one transaction. The unique (file_id, version_number) index rejects a
// concurrent append of the same number.
func (r *fileRepo) AppendVersion(ctx context.Context, f *biz.File, v *biz.FileVersion) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		tx := r.db.GetDBFromContext(ctx)

		vm := &models.FileVersion{
			FileID:        v.FileID,
			VersionNumber: v.VersionNumber,
			Size:          v.Size,
			StorageKey:    v.StorageKey,
			Hash:          v.Hash,
			UploadedBy:    v.UploadedBy,
			CreatedAt:     v.CreatedAt,
		}
		if err := tx.Create(vm).Error; err != nil {
			return err
		}
		v.ID = vm.ID

		return tx.Model(&models.File{}).
			Where("id = ?", f.ID).
			Updates(map[string]interface{}{
				"current_version": f.CurrentVersion,
				"size":            f.Size,
				"storage_key":     f.StorageKey,
				"hash":            f.Hash,
				"updated_at":      f.UpdatedAt,
			}).Error
	})
}

func (r *fileRepo) SetDeleted(ctx context.Context, ids []string, deleted bool, by string, at time.Time) error {
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
		Model(&models.File{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}

func (r *fileRepo) MarkDeletedInFolders(ctx context.Context, folderIDs []string, by string, at time.Time) error {
	if len(folderIDs) == 0 {
		return nil
	}
	return r.db.GetDBFromContext(ctx).
		Model(&models.File{}).
		Where("folder_id IN ? AND is_deleted = ?", folderIDs, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": at,
			"deleted_by": by,
			"updated_at": at,
		}).Error
}

func (r *fileRepo) FindLiveByHash(ctx context.Context, backendID, hash string) (*biz.File, error) {
	var m models.File
	err := r.db.GetDBFromContext(ctx).
		Where("backend_id = ? AND hash = ? AND is_deleted = ?", backendID, hash, false).
		Order("created_at ASC").
		First(&m).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return toFileDomain(&m), nil
}

func (r *fileRepo) ListLiveByOwner(ctx context.Context, ownerID string) ([]*biz.File, error) {
	var ms []models.File
	err := r.db.GetDBFromContext(ctx).
		Where("owner_id = ? AND is_deleted = ?", ownerID, false).
		Order("created_at DESC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	out := make([]*biz.File, 0, len(ms))
	for i := range ms {
		out = append(out, toFileDomain(&ms[i]))
	}
	return out, nil
}

func (r *fileRepo) RecordAccess(ctx context.Context, id string, download bool) error {
	updates := map[string]interface{}{
		"last_accessed_at": time.Now().UTC(),
	}
	if download {
		updates["download_count"] = gorm.Expr("download_count + 1")
	} else {
		updates["view_count"] = gorm.Expr("view_count + 1")
	}
	return r.db.GetDBFromContext(ctx).
		Model(&models.File{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *fileRepo) CountByStorageKey(ctx context.Context, key string) (int64, error) {
	var count int64
	err := r.db.GetDBFromContext(ctx).
		Model(&models.FileVersion{}).
		Where("storage_key = ?", key).
		Count(&count).Error
	return count, err
}

// Delete removes the file and its versions permanently
func (r *fileRepo) Delete(ctx context.Context, id string) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		tx := r.db.GetDBFromContext(ctx)
		if err := tx.Where("file_id = ?", id).Delete(&models.FileVersion{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.File{}).Error
	})
}

func toFileModel(f *biz.File) *models.File {
	return &models.File{
		ID:             f.ID,
		OwnerID:        f.OwnerID,
		Name:           f.Name,
		OriginalName:   f.OriginalName,
		MIMEType:       f.MIMEType,
		Extension:      f.Extension,
		Size:           f.Size,
		BackendID:      f.BackendID,
		StorageKey:     f.StorageKey,
		Hash:           f.Hash,
		FolderID:       f.FolderID,
		IsPublic:       f.IsPublic,
		CurrentVersion: f.CurrentVersion,
		ViewCount:      f.ViewCount,
		DownloadCount:  f.DownloadCount,
		LastAccessedAt: f.LastAccessedAt,
		IsDeleted:      f.IsDeleted,
		DeletedAt:      f.DeletedAt,
		DeletedBy:      f.DeletedBy,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

func toFileDomain(m *models.File) *biz.File {
	f := &biz.File{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		Name:           m.Name,
		OriginalName:   m.OriginalName,
		MIMEType:       m.MIMEType,
		Extension:      m.Extension,
		Size:           m.Size,
		BackendID:      m.BackendID,
		StorageKey:     m.StorageKey,
		Hash:           m.Hash,
		FolderID:       m.FolderID,
		IsPublic:       m.IsPublic,
		CurrentVersion: m.CurrentVersion,
		ViewCount:      m.ViewCount,
		DownloadCount:  m.DownloadCount,
		LastAccessedAt: m.LastAccessedAt,
		IsDeleted:      m.IsDeleted,
		DeletedAt:      m.DeletedAt,
		DeletedBy:      m.DeletedBy,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	for i := range m.Versions {
		f.Versions = append(f.Versions, toVersionDomain(&m.Versions[i]))
	}
	return f
}

func toVersionDomain(v *models.FileVersion) *biz.FileVersion {
	return &biz.FileVersion{
		ID:            v.ID,
		FileID:        v.FileID,
		VersionNumber: v.VersionNumber,
		Size:          v.Size,
		StorageKey:    v.StorageKey,
		Hash:          v.Hash,
		UploadedBy:    v.UploadedBy,
		CreatedAt:     v.CreatedAt,
	}
}
