package service

import (
	"time"

	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
	"github.com/cloudvault/cloudvault-backend/internal/storage/types"
)

// RegisterBackendRequest creates a storage backend
type RegisterBackendRequest struct {
	Name         string                 `json:"name" binding:"required"`
	Kind         string                 `json:"kind" binding:"required"`
	Credentials  types.CredentialBundle `json:"credentials" binding:"required"`
	Capabilities types.Capabilities     `json:"capabilities"`
	Settings     types.Settings         `json:"settings"`
	IsDefault    bool                   `json:"is_default"`
}

// BackendView is the API shape of a backend. Credentials are never included.
type BackendView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`

	Capabilities types.Capabilities `json:"capabilities"`
	Settings     types.Settings     `json:"settings"`

	IsActive  bool `json:"is_active"`
	IsDefault bool `json:"is_default"`

	HealthState    string     `json:"health_state"`
	LastProbeAt    *time.Time `json:"last_probe_at,omitempty"`
	LastProbeError string     `json:"last_probe_error,omitempty"`
	LastLatencyMS  int64      `json:"last_latency_ms"`

	FileCount  int64      `json:"file_count"`
	BytesUsed  int64      `json:"bytes_used"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func toBackendView(b *biz.Backend) *BackendView {
	return &BackendView{
		ID:             b.ID,
		Name:           b.Name,
		Kind:           string(b.Kind),
		Capabilities:   b.Capabilities,
		Settings:       b.Settings,
		IsActive:       b.IsActive,
		IsDefault:      b.IsDefault,
		HealthState:    string(b.HealthState),
		LastProbeAt:    b.LastProbeAt,
		LastProbeError: b.LastProbeError,
		LastLatencyMS:  b.LastLatencyMS,
		FileCount:      b.FileCount,
		BytesUsed:      b.BytesUsed,
		LastUsedAt:     b.LastUsedAt,
		CreatedAt:      b.CreatedAt,
	}
}

func toBackendViews(backends []*biz.Backend) []*BackendView {
	out := make([]*BackendView, 0, len(backends))
	for _, b := range backends {
		out = append(out, toBackendView(b))
	}
	return out
}

// FileView is the API shape of a catalog entry
type FileView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	MIMEType       string     `json:"mime_type"`
	Size           int64      `json:"size"`
	Hash           string     `json:"hash"`
	FolderID       *string    `json:"folder_id,omitempty"`
	CurrentVersion int        `json:"current_version"`
	ViewCount      int64      `json:"view_count"`
	DownloadCount  int64      `json:"download_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	IsDeleted      bool       `json:"is_deleted"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Versions []FileVersionView `json:"versions,omitempty"`
}

// FileVersionView is one version chain entry
type FileVersionView struct {
	VersionNumber int       `json:"version_number"`
	Size          int64     `json:"size"`
	Hash          string    `json:"hash"`
	CreatedAt     time.Time `json:"created_at"`
}

func toFileView(f *biz.File) *FileView {
	v := &FileView{
		ID:             f.ID,
		Name:           f.Name,
		MIMEType:       f.MIMEType,
		Size:           f.Size,
		Hash:           f.Hash,
		FolderID:       f.FolderID,
		CurrentVersion: f.CurrentVersion,
		ViewCount:      f.ViewCount,
		DownloadCount:  f.DownloadCount,
		LastAccessedAt: f.LastAccessedAt,
		IsDeleted:      f.IsDeleted,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
	for _, ver := range f.Versions {
		v.Versions = append(v.Versions, FileVersionView{
			VersionNumber: ver.VersionNumber,
			Size:          ver.Size,
			Hash:          ver.Hash,
			CreatedAt:     ver.CreatedAt,
		})
	}
	return v
}

// DecisionView is the admission verdict returned to clients
type DecisionView struct {
	Allowed           bool     `json:"allowed"`
	BackendID         string   `json:"backend_id,omitempty"`
	BackendName       string   `json:"backend_name,omitempty"`
	DedupCandidateKey string   `json:"dedup_candidate_key,omitempty"`
	AvailableBytes    int64    `json:"available_bytes"`
	ShortfallBytes    int64    `json:"shortfall_bytes,omitempty"`
	UnhealthyBackends []string `json:"unhealthy_backends,omitempty"`
}

func toDecisionView(d *biz.Decision) *DecisionView {
	return &DecisionView{
		Allowed:           d.Allowed,
		BackendID:         d.BackendID,
		BackendName:       d.BackendName,
		DedupCandidateKey: d.DedupCandidateKey,
		AvailableBytes:    d.AvailableBytes,
		ShortfallBytes:    d.ShortfallBytes,
		UnhealthyBackends: d.UnhealthyBackends,
	}
}

// FolderView is the API shape of a folder node
type FolderView struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toFolderView(f *biz.Folder) *FolderView {
	return &FolderView{
		ID:        f.ID,
		ParentID:  f.ParentID,
		Name:      f.Name,
		Path:      f.Path,
		IsDeleted: f.IsDeleted,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func toFolderViews(folders []*biz.Folder) []*FolderView {
	out := make([]*FolderView, 0, len(folders))
	for _, f := range folders {
		out = append(out, toFolderView(f))
	}
	return out
}

// QuotaView is an owner's usage snapshot
type QuotaView struct {
	UsedBytes      int64   `json:"used_bytes"`
	LimitBytes     int64   `json:"limit_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	UsedFraction   float64 `json:"used_fraction"`
}

// SuggestionView is one cleanup candidate
type SuggestionView struct {
	FileID string  `json:"file_id"`
	Name   string  `json:"name"`
	Size   int64   `json:"size"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}
