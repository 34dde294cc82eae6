package biz

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
)

// File is the catalog record of an uploaded file. Size, StorageKey and Hash
// always mirror the current version.
type File struct {
	ID      string
	OwnerID string

	Name         string
	OriginalName string
	MIMEType     string
	Extension    string
	Size         int64

	BackendID  string
	StorageKey string
	Hash       string

	FolderID *string
	IsPublic bool

	CurrentVersion int

	ViewCount      int64
	DownloadCount  int64
	LastAccessedAt *time.Time

	IsDeleted bool
	DeletedAt *time.Time
	DeletedBy string

	CreatedAt time.Time
	UpdatedAt time.Time

	Versions []*FileVersion
}

// FileVersion is one entry in a file's ordered version chain
type FileVersion struct {
	ID            string
	FileID        string
	VersionNumber int
	Size          int64
	StorageKey    string
	Hash          string
	UploadedBy    string
	CreatedAt     time.Time
}

// TotalBytes sums every version's size; this is the file's quota footprint
func (f *File) TotalBytes() int64 {
	var total int64
	for _, v := range f.Versions {
		total += v.Size
	}
	if total == 0 {
		total = f.Size
	}
	return total
}

// FileRepo is the persistence contract for files and their versions
type FileRepo interface {
	// Create persists the file together with its version-1 row atomically
	Create(ctx context.Context, f *File) error
	GetByID(ctx context.Context, id string) (*File, error) // versions loaded
	// AppendVersion persists the new version row and the updated mirror
	// fields on the file record atomically
	AppendVersion(ctx context.Context, f *File, v *FileVersion) error
	// SetDeleted flips the tombstone on the given live (or deleted, when
	// restoring) files
	SetDeleted(ctx context.Context, ids []string, deleted bool, by string, at time.Time) error
	// MarkDeletedInFolders tombstones every live file directly inside the
	// given folders; used by folder cascade delete
	MarkDeletedInFolders(ctx context.Context, folderIDs []string, by string, at time.Time) error
	FindLiveByHash(ctx context.Context, backendID, hash string) (*File, error)
	ListLiveByOwner(ctx context.Context, ownerID string) ([]*File, error)
	RecordAccess(ctx context.Context, id string, download bool) error
	// CountByStorageKey counts versions referencing a storage key, across all
	// files and tombstone states; used before deleting deduplicated objects
	CountByStorageKey(ctx context.Context, key string) (int64, error)
	// Delete permanently removes the file and its versions
	Delete(ctx context.Context, id string) error
}

// FileCatalog owns file metadata, the version chain and access counters
type FileCatalog struct {
	repo     FileRepo
	quota    *QuotaLedger
	registry *BackendRegistry
	logger   *logger.Logger
}

// NewFileCatalog creates a file catalog
func NewFileCatalog(repo FileRepo, quota *QuotaLedger, registry *BackendRegistry, log *logger.Logger) *FileCatalog {
	return &FileCatalog{
		repo:     repo,
		quota:    quota,
		registry: registry,
		logger:   log,
	}
}

// CreateFileParams describes a committed upload entering the catalog
type CreateFileParams struct {
	OwnerID    string
	Name       string
	MIMEType   string
	Size       int64
	BackendID  string
	StorageKey string
	Hash       string
	FolderID   *string
	UploadedBy string
}

// CreateFile records a committed upload as a new catalog entry at version 1.
// Quota is reserved before the record is written and rolled back if the write
// fails.
func (c *FileCatalog) CreateFile(ctx context.Context, p CreateFileParams) (*File, error) {
	if err := ValidateName(p.Name); err != nil {
		return nil, err
	}
	if p.Size <= 0 {
		return nil, apperrors.NewValidationError("file size must be positive")
	}
	if p.StorageKey == "" {
		return nil, apperrors.NewValidationError("storage key is required")
	}

	if err := c.quota.Reserve(ctx, p.OwnerID, p.Size); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	f := &File{
		OwnerID:        p.OwnerID,
		Name:           p.Name,
		OriginalName:   p.Name,
		MIMEType:       p.MIMEType,
		Extension:      strings.ToLower(strings.TrimPrefix(filepath.Ext(p.Name), ".")),
		Size:           p.Size,
		BackendID:      p.BackendID,
		StorageKey:     p.StorageKey,
		Hash:           p.Hash,
		FolderID:       p.FolderID,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.repo.Create(ctx, f); err != nil {
		c.quota.Release(p.OwnerID, p.Size)
		return nil, err
	}

	if err := c.registry.RecordUsage(ctx, p.BackendID, 1, p.Size); err != nil {
		c.logger.Error("failed to record backend usage",
			zap.String("backend_id", p.BackendID),
			zap.Error(err),
		)
	}

	c.logger.Info("file created",
		zap.String("file_id", f.ID),
		zap.String("owner_id", f.OwnerID),
		zap.Int64("size", f.Size),
	)
	return f, nil
}

// VersionParams describes a committed upload that replaces a file's content
type VersionParams struct {
	Size       int64
	StorageKey string
	Hash       string
	UploadedBy string
}

// AddVersion appends the next version to a live file. Version numbers are
// strictly increasing and never reused; the file's mirror fields move to the
// new version. Prior version bytes stay reserved until the file is purged.
func (c *FileCatalog) AddVersion(ctx context.Context, fileID string, p VersionParams) (*File, error) {
	if p.Size <= 0 {
		return nil, apperrors.NewValidationError("version size must be positive")
	}
	if p.StorageKey == "" {
		return nil, apperrors.NewValidationError("storage key is required")
	}

	f, err := c.getLive(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if err := c.quota.Reserve(ctx, f.OwnerID, p.Size); err != nil {
		return nil, err
	}

	v := &FileVersion{
		FileID:        f.ID,
		VersionNumber: f.CurrentVersion + 1,
		Size:          p.Size,
		StorageKey:    p.StorageKey,
		Hash:          p.Hash,
		UploadedBy:    p.UploadedBy,
		CreatedAt:     time.Now().UTC(),
	}

	f.CurrentVersion = v.VersionNumber
	f.Size = p.Size
	f.StorageKey = p.StorageKey
	f.Hash = p.Hash
	f.UpdatedAt = v.CreatedAt

	if err := c.repo.AppendVersion(ctx, f, v); err != nil {
		c.quota.Release(f.OwnerID, p.Size)
		return nil, err
	}
	f.Versions = append(f.Versions, v)

	if err := c.registry.RecordUsage(ctx, f.BackendID, 0, p.Size); err != nil {
		c.logger.Error("failed to record backend usage",
			zap.String("backend_id", f.BackendID),
			zap.Error(err),
		)
	}

	c.logger.Info("file version added",
		zap.String("file_id", f.ID),
		zap.Int("version", v.VersionNumber),
		zap.Int64("size", v.Size),
	)
	return f, nil
}

// Get returns a file with its version chain
func (c *FileCatalog) Get(ctx context.Context, id string) (*File, error) {
	f, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperrors.New(apperrors.ErrFileNotFound, id)
	}
	return f, nil
}

// SoftDelete tombstones a file. Deleting an already-deleted file is a no-op.
// The file's bytes stay counted against the owner's quota until purged.
func (c *FileCatalog) SoftDelete(ctx context.Context, id, actor string) error {
	f, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if f.IsDeleted {
		return nil
	}
	return c.repo.SetDeleted(ctx, []string{id}, true, actor, time.Now().UTC())
}

// Restore clears a file's tombstone. Restoring a live file is a no-op.
func (c *FileCatalog) Restore(ctx context.Context, id string) error {
	f, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if !f.IsDeleted {
		return nil
	}
	return c.repo.SetDeleted(ctx, []string{id}, false, "", time.Now().UTC())
}

// Purge permanently removes a file and all its versions, releasing the
// owner's quota and the backend's usage counters. Callers delete the stored
// bytes afterwards using the returned file's version storage keys.
func (c *FileCatalog) Purge(ctx context.Context, id string) (*File, error) {
	f, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	total := f.TotalBytes()
	if err := c.repo.Delete(ctx, id); err != nil {
		return nil, err
	}

	c.quota.Release(f.OwnerID, total)
	if err := c.registry.RecordUsage(ctx, f.BackendID, -1, -total); err != nil {
		c.logger.Error("failed to record backend usage",
			zap.String("backend_id", f.BackendID),
			zap.Error(err),
		)
	}

	c.logger.Info("file purged",
		zap.String("file_id", id),
		zap.Int64("released_bytes", total),
	)
	return f, nil
}

// FindByHash returns the live file with the given content hash on the given
// backend, or nil when there is no dedup candidate.
func (c *FileCatalog) FindByHash(ctx context.Context, backendID, hash string) (*File, error) {
	if hash == "" {
		return nil, nil
	}
	return c.repo.FindLiveByHash(ctx, backendID, hash)
}

// CountStorageKeyRefs reports how many versions still reference a storage key
func (c *FileCatalog) CountStorageKeyRefs(ctx context.Context, key string) (int64, error) {
	return c.repo.CountByStorageKey(ctx, key)
}

// RecordView bumps the view counter and access time
func (c *FileCatalog) RecordView(ctx context.Context, id string) error {
	return c.repo.RecordAccess(ctx, id, false)
}

// RecordDownload bumps the download counter and access time
func (c *FileCatalog) RecordDownload(ctx context.Context, id string) error {
	return c.repo.RecordAccess(ctx, id, true)
}

func (c *FileCatalog) getLive(ctx context.Context, id string) (*File, error) {
	f, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.IsDeleted {
		return nil, apperrors.New(apperrors.ErrFileNotFound, id)
	}
	return f, nil
}
