package biz

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
)

// UploadMeta describes an upload request before any bytes are transferred
type UploadMeta struct {
	FileName string
	MIMEType string
	Size     int64
	Hash     string // optional client-computed SHA256, enables dedup
}

// UploadPolicy bounds what uploads are admitted
type UploadPolicy struct {
	MaxFileSize      int64
	AllowedMIMETypes []string // empty allows every type
}

// Decision is the admission verdict. The controller never mutates state; the
// caller transfers bytes and commits to the catalog only when Allowed is true.
type Decision struct {
	Allowed bool

	BackendID   string
	BackendName string

	// DedupCandidateKey is the storage key of an existing live file with the
	// same hash on the chosen backend, empty when there is none
	DedupCandidateKey string

	AvailableBytes    int64
	ShortfallBytes    int64
	UnhealthyBackends []string
}

// AdmissionController answers "may this upload proceed, and where" by
// consulting quota, backend health and the dedup index. It performs reads
// only.
type AdmissionController struct {
	quota    *QuotaLedger
	registry *BackendRegistry
	catalog  *FileCatalog
	policy   UploadPolicy
	logger   *logger.Logger
}

// NewAdmissionController creates an admission controller
func NewAdmissionController(quota *QuotaLedger, registry *BackendRegistry, catalog *FileCatalog, policy UploadPolicy, log *logger.Logger) *AdmissionController {
	return &AdmissionController{
		quota:    quota,
		registry: registry,
		catalog:  catalog,
		policy:   policy,
		logger:   log,
	}
}

// AdmitUpload validates the upload, checks quota and picks the target
// backend. A non-nil error always comes with a Decision describing why the
// upload was rejected.
func (a *AdmissionController) AdmitUpload(ctx context.Context, ownerID string, meta UploadMeta) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return &Decision{}, apperrors.Wrap(err, apperrors.ErrInvalidOperation, "request cancelled")
	}

	if err := ValidateName(meta.FileName); err != nil {
		return &Decision{}, err
	}
	if meta.Size <= 0 {
		return &Decision{}, apperrors.NewValidationError("upload size must be positive")
	}
	if a.policy.MaxFileSize > 0 && meta.Size > a.policy.MaxFileSize {
		return &Decision{}, apperrors.Newf(apperrors.ErrFileTooLarge,
			"size %d exceeds limit %d", meta.Size, a.policy.MaxFileSize)
	}
	if !a.mimeAllowed(meta.MIMEType) {
		return &Decision{}, apperrors.New(apperrors.ErrInvalidFileType, meta.MIMEType)
	}

	if err := a.quota.Prime(ctx, ownerID); err != nil {
		return &Decision{}, err
	}
	allowed, available := a.quota.CheckCapacity(ownerID, meta.Size)
	if !allowed {
		shortfall := meta.Size - available
		a.logger.Info("upload rejected over quota",
			zap.String("owner_id", ownerID),
			zap.Int64("size", meta.Size),
			zap.Int64("available", available),
		)
		return &Decision{
			AvailableBytes: available,
			ShortfallBytes: shortfall,
		}, apperrors.NewQuotaExceededError(shortfall, available)
	}

	backend, err := a.registry.GetDefault(ctx)
	if err != nil {
		d := &Decision{AvailableBytes: available}
		d.UnhealthyBackends = unhealthyFromError(err)
		return d, err
	}

	d := &Decision{
		Allowed:        true,
		BackendID:      backend.ID,
		BackendName:    backend.Name,
		AvailableBytes: available,
	}

	if backend.Settings.Deduplication && meta.Hash != "" {
		existing, err := a.catalog.FindByHash(ctx, backend.ID, meta.Hash)
		if err != nil {
			// Dedup is an optimization; a lookup failure never blocks the upload
			a.logger.Warn("dedup lookup failed", zap.Error(err))
		} else if existing != nil {
			d.DedupCandidateKey = existing.StorageKey
		}
	}
	return d, nil
}

func (a *AdmissionController) mimeAllowed(mime string) bool {
	if len(a.policy.AllowedMIMETypes) == 0 {
		return true
	}
	for _, allowed := range a.policy.AllowedMIMETypes {
		if allowed == mime || allowed == "*/*" {
			return true
		}
	}
	return false
}

// unhealthyFromError pulls the unhealthy backend names off a
// NoBackendAvailable error
func unhealthyFromError(err error) []string {
	fields := apperrors.ExtractFields(err)
	if fields == nil {
		return nil
	}
	if names, ok := fields["unhealthy_backends"].([]string); ok {
		return names
	}
	return nil
}
