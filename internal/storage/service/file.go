package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault-backend/internal/auth/middleware"
	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/response"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
	"github.com/cloudvault/cloudvault-backend/internal/storage/data"
)

// FileService exposes file upload, versioning, lifecycle and quota over HTTP
type FileService struct {
	admission *biz.AdmissionController
	catalog   *biz.FileCatalog
	registry  *biz.BackendRegistry
	quota     *biz.QuotaLedger
	advisor   *biz.CleanupAdvisor
	store     data.ObjectStore
	logger    *logger.Logger
}

// NewFileService creates the file service
func NewFileService(
	admission *biz.AdmissionController,
	catalog *biz.FileCatalog,
	registry *biz.BackendRegistry,
	quota *biz.QuotaLedger,
	advisor *biz.CleanupAdvisor,
	store data.ObjectStore,
	log *logger.Logger,
) *FileService {
	return &FileService{
		admission: admission,
		catalog:   catalog,
		registry:  registry,
		quota:     quota,
		advisor:   advisor,
		store:     store,
		logger:    log,
	}
}

// AdmitRequest asks whether an upload would be accepted
type AdmitRequest struct {
	FileName string `json:"file_name" binding:"required"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size" binding:"required"`
	Hash     string `json:"hash"`
}

// Admit handles POST /files/admit. It is a dry run: no state changes, the
// client learns where the upload would land and whether it fits.
func (s *FileService) Admit(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "missing identity")
		return
	}

	var req AdmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	decision, err := s.admission.AdmitUpload(c.Request.Context(), userID, biz.UploadMeta{
		FileName: req.FileName,
		MIMEType: req.MIMEType,
		Size:     req.Size,
		Hash:     req.Hash,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toDecisionView(decision))
}

// Upload handles POST /files: admission, byte transfer, catalog commit
func (s *FileService) Upload(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "missing identity")
		return
	}
	ctx := c.Request.Context()

	header, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}

	meta := biz.UploadMeta{
		FileName: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Hash:     c.PostForm("hash"),
	}

	decision, err := s.admission.AdmitUpload(ctx, userID, meta)
	if err != nil {
		response.Error(c, err)
		return
	}

	backend, err := s.registry.Get(ctx, decision.BackendID)
	if err != nil {
		response.Error(c, err)
		return
	}

	var folderID *string
	if fid := c.PostForm("folder_id"); fid != "" {
		folderID = &fid
	}

	storageKey, hash, err := s.transfer(c, backend, decision, header.Filename, meta)
	if err != nil {
		response.Error(c, err)
		return
	}

	f, err := s.catalog.CreateFile(ctx, biz.CreateFileParams{
		OwnerID:    userID,
		Name:       header.Filename,
		MIMEType:   meta.MIMEType,
		Size:       meta.Size,
		BackendID:  backend.ID,
		StorageKey: storageKey,
		Hash:       hash,
		FolderID:   folderID,
		UploadedBy: userID,
	})
	if err != nil {
		if storageKey != decision.DedupCandidateKey {
			if delErr := s.store.Delete(ctx, backend, storageKey); delErr != nil {
				s.logger.Error("failed to clean up orphaned object",
					zap.String("key", storageKey), zap.Error(delErr))
			}
		}
		response.Error(c, err)
		return
	}
	response.Created(c, toFileView(f))
}

// transfer moves the upload's bytes to the chosen backend, or reuses the
// dedup candidate when the content already exists there. Returns the storage
// key and the server-computed hash.
func (s *FileService) transfer(c *gin.Context, backend *biz.Backend, decision *biz.Decision, filename string, meta biz.UploadMeta) (string, string, error) {
	if decision.DedupCandidateKey != "" {
		return decision.DedupCandidateKey, meta.Hash, nil
	}

	header, err := c.FormFile("file")
	if err != nil {
		return "", "", apperrors.NewValidationError("file is required")
	}
	src, err := header.Open()
	if err != nil {
		return "", "", apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to open upload")
	}
	defer src.Close()

	storageKey := buildStorageKey(filename)
	hasher := sha256.New()
	reader := io.TeeReader(src, hasher)

	if err := s.store.Put(c.Request.Context(), backend, storageKey, reader, meta.Size, meta.MIMEType); err != nil {
		return "", "", apperrors.Wrap(err, apperrors.ErrInternalServer, "byte transfer failed")
	}
	return storageKey, hex.EncodeToString(hasher.Sum(nil)), nil
}

// buildStorageKey generates a collision-free object key preserving the extension
func buildStorageKey(filename string) string {
	return fmt.Sprintf("objects/%s%s", uuid.New().String(), filepath.Ext(filename))
}

// Get handles GET /files/:id
func (s *FileService) Get(c *gin.Context) {
	f, err := s.ownedFile(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := s.catalog.RecordView(c.Request.Context(), f.ID); err != nil {
		s.logger.Warn("failed to record view", zap.String("file_id", f.ID), zap.Error(err))
	}
	response.Success(c, toFileView(f))
}

// Download handles GET /files/:id/download, streaming the current version
func (s *FileService) Download(c *gin.Context) {
	ctx := c.Request.Context()
	f, err := s.ownedFile(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if f.IsDeleted {
		response.Error(c, apperrors.New(apperrors.ErrFileNotFound, f.ID))
		return
	}

	backend, err := s.registry.Get(ctx, f.BackendID)
	if err != nil {
		response.Error(c, err)
		return
	}

	rc, err := s.store.Get(ctx, backend, f.StorageKey)
	if err != nil {
		response.Error(c, apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to read object"))
		return
	}
	defer rc.Close()

	if err := s.catalog.RecordDownload(ctx, f.ID); err != nil {
		s.logger.Warn("failed to record download", zap.String("file_id", f.ID), zap.Error(err))
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	c.DataFromReader(200, f.Size, f.MIMEType, rc, nil)
}

// UploadVersion handles POST /files/:id/versions. The new content lands on
// the same backend as the file; quota is enforced at the catalog commit.
func (s *FileService) UploadVersion(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	ctx := c.Request.Context()

	f, err := s.ownedFile(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	src, err := header.Open()
	if err != nil {
		response.Error(c, apperrors.Wrap(err, apperrors.ErrInternalServer, "failed to open upload"))
		return
	}
	defer src.Close()

	backend, err := s.registry.Get(ctx, f.BackendID)
	if err != nil {
		response.Error(c, err)
		return
	}

	storageKey := buildStorageKey(header.Filename)
	hasher := sha256.New()
	reader := io.TeeReader(src, hasher)
	if err := s.store.Put(ctx, backend, storageKey, reader, header.Size, f.MIMEType); err != nil {
		response.Error(c, apperrors.Wrap(err, apperrors.ErrInternalServer, "byte transfer failed"))
		return
	}

	updated, err := s.catalog.AddVersion(ctx, f.ID, biz.VersionParams{
		Size:       header.Size,
		StorageKey: storageKey,
		Hash:       hex.EncodeToString(hasher.Sum(nil)),
		UploadedBy: userID,
	})
	if err != nil {
		if delErr := s.store.Delete(ctx, backend, storageKey); delErr != nil {
			s.logger.Error("failed to clean up orphaned object",
				zap.String("key", storageKey), zap.Error(delErr))
		}
		response.Error(c, err)
		return
	}
	response.Created(c, toFileView(updated))
}

// Delete handles DELETE /files/:id (soft delete)
func (s *FileService) Delete(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	f, err := s.ownedFile(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := s.catalog.SoftDelete(c.Request.Context(), f.ID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Restore handles POST /files/:id/restore
func (s *FileService) Restore(c *gin.Context) {
	f, err := s.ownedFile(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := s.catalog.Restore(c.Request.Context(), f.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Purge handles DELETE /files/:id/purge: the record, its versions and their
// quota footprint go away; stored bytes are removed unless another file still
// references the same object.
func (s *FileService) Purge(c *gin.Context) {
	ctx := c.Request.Context()
	f, err := s.ownedFile(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	purged, err := s.catalog.Purge(ctx, f.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	backend, err := s.registry.Get(ctx, purged.BackendID)
	if err != nil {
		s.logger.Error("purged file's backend not found",
			zap.String("backend_id", purged.BackendID), zap.Error(err))
		response.Success(c, nil)
		return
	}

	for _, v := range purged.Versions {
		refs, err := s.catalog.CountStorageKeyRefs(ctx, v.StorageKey)
		if err != nil {
			s.logger.Error("reference check failed", zap.String("key", v.StorageKey), zap.Error(err))
			continue
		}
		if refs > 0 {
			continue
		}
		if err := s.store.Delete(ctx, backend, v.StorageKey); err != nil {
			s.logger.Error("failed to delete object",
				zap.String("key", v.StorageKey), zap.Error(err))
		}
	}
	response.Success(c, nil)
}

// Quota handles GET /quota for the current user
func (s *FileService) Quota(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "missing identity")
		return
	}
	if err := s.quota.Prime(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}
	used, limit, _ := s.quota.Snapshot(userID)
	response.Success(c, quotaView(used, limit))
}

// CleanupSuggestions handles GET /cleanup/suggestions
func (s *FileService) CleanupSuggestions(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "missing identity")
		return
	}

	target := parseInt64Query(c, "target_bytes")
	suggestions, err := s.advisor.Suggest(c.Request.Context(), userID, target)
	if err != nil {
		response.Error(c, err)
		return
	}

	views := make([]SuggestionView, 0, len(suggestions))
	for _, sg := range suggestions {
		views = append(views, SuggestionView{
			FileID: sg.FileID,
			Name:   sg.Name,
			Size:   sg.Size,
			Score:  sg.Score,
			Reason: sg.Reason,
		})
	}
	response.Success(c, views)
}

// ownedFile loads the path file and enforces ownership (admins bypass)
func (s *FileService) ownedFile(c *gin.Context) (*biz.File, error) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return nil, apperrors.New(apperrors.ErrUnauthorized)
	}
	f, err := s.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if f.OwnerID != userID {
		if isAdmin, exists := c.Get("is_admin"); !exists || !isAdmin.(bool) {
			return nil, apperrors.New(apperrors.ErrFileNotFound, f.ID)
		}
	}
	return f, nil
}
