package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
	"github.com/cloudvault/cloudvault-backend/internal/storage/types"
)

type admissionFixture struct {
	controller *AdmissionController
	registry   *BackendRegistry
	repo       *fakeBackendRepo
	ledger     *QuotaLedger
	catalog    *FileCatalog
	backend    *Backend
}

func newAdmissionFixture(t *testing.T, quotaLimit int64, policy UploadPolicy) *admissionFixture {
	t.Helper()
	ctx := context.Background()
	log := newTestLogger()

	repo := newFakeBackendRepo()
	registry := NewBackendRegistry(repo, DefaultRegistryConfig(), log)
	backend, err := registry.Register(ctx, s3Backend("primary"))
	require.NoError(t, err)
	markHealth(t, repo, backend.ID, types.HealthHealthy)

	ledger := NewQuotaLedger(newFakeQuotaStore(), QuotaConfig{
		DefaultLimit:  quotaLimit,
		WarnThreshold: 0.9,
	}, log)
	catalog := NewFileCatalog(newFakeFileRepo(), ledger, registry, log)

	return &admissionFixture{
		controller: NewAdmissionController(ledger, registry, catalog, policy, log),
		registry:   registry,
		repo:       repo,
		ledger:     ledger,
		catalog:    catalog,
		backend:    backend,
	}
}

func validMeta() UploadMeta {
	return UploadMeta{
		FileName: "report.pdf",
		MIMEType: "application/pdf",
		Size:     1024,
	}
}

func TestAdmitUploadHappyPath(t *testing.T) {
	fx := newAdmissionFixture(t, 1<<20, UploadPolicy{})

	d, err := fx.controller.AdmitUpload(context.Background(), "alice", validMeta())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, fx.backend.ID, d.BackendID)
	assert.Equal(t, "primary", d.BackendName)
	assert.Empty(t, d.DedupCandidateKey)
}

func TestAdmitUploadValidation(t *testing.T) {
	fx := newAdmissionFixture(t, 1<<20, UploadPolicy{
		MaxFileSize:      2048,
		AllowedMIMETypes: []string{"application/pdf", "image/png"},
	})
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(*UploadMeta)
		wantCode int
	}{
		{"empty name", func(m *UploadMeta) { m.FileName = "" }, apperrors.ErrValidation},
		{"forbidden chars", func(m *UploadMeta) { m.FileName = "a<b>.txt" }, apperrors.ErrValidation},
		{"zero size", func(m *UploadMeta) { m.Size = 0 }, apperrors.ErrValidation},
		{"negative size", func(m *UploadMeta) { m.Size = -5 }, apperrors.ErrValidation},
		{"over max size", func(m *UploadMeta) { m.Size = 4096 }, apperrors.ErrFileTooLarge},
		{"disallowed type", func(m *UploadMeta) { m.MIMEType = "application/zip" }, apperrors.ErrInvalidFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := validMeta()
			tt.mutate(&meta)
			d, err := fx.controller.AdmitUpload(ctx, "alice", meta)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.ExtractCode(err))
			assert.False(t, d.Allowed)
		})
	}
}

func TestAdmitUploadQuotaShortfall(t *testing.T) {
	fx := newAdmissionFixture(t, 1000, UploadPolicy{})
	ctx := context.Background()

	require.NoError(t, fx.ledger.Reserve(ctx, "alice", 800))

	meta := validMeta()
	meta.Size = 500
	d, err := fx.controller.AdmitUpload(ctx, "alice", meta)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrQuotaExceeded, apperrors.ExtractCode(err))
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(200), d.AvailableBytes)
	assert.Equal(t, int64(300), d.ShortfallBytes)

	fields := apperrors.ExtractFields(err)
	require.NotNil(t, fields)
	assert.Equal(t, int64(300), fields["shortfall_bytes"])
}

func TestAdmitUploadNoHealthyBackend(t *testing.T) {
	fx := newAdmissionFixture(t, 1<<20, UploadPolicy{})
	ctx := context.Background()

	markHealth(t, fx.repo, fx.backend.ID, types.HealthUnhealthy)

	d, err := fx.controller.AdmitUpload(ctx, "alice", validMeta())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNoBackendAvailable, apperrors.ExtractCode(err))
	assert.False(t, d.Allowed)
	assert.Equal(t, []string{"primary"}, d.UnhealthyBackends)
}

func TestAdmitUploadDedupCandidate(t *testing.T) {
	fx := newAdmissionFixture(t, 1<<20, UploadPolicy{})
	ctx := context.Background()

	// Dedup only engages when the backend enables it
	b, err := fx.registry.Get(ctx, fx.backend.ID)
	require.NoError(t, err)
	b.Settings.Deduplication = true
	require.NoError(t, fx.repo.Update(ctx, b))

	_, err = fx.catalog.CreateFile(ctx, CreateFileParams{
		OwnerID:    "bob",
		Name:       "shared.bin",
		Size:       100,
		BackendID:  fx.backend.ID,
		StorageKey: "objects/shared",
		Hash:       "deadbeef",
		UploadedBy: "bob",
	})
	require.NoError(t, err)

	meta := validMeta()
	meta.Hash = "deadbeef"
	d, err := fx.controller.AdmitUpload(ctx, "alice", meta)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "objects/shared", d.DedupCandidateKey)

	// No hash, no dedup
	d, err = fx.controller.AdmitUpload(ctx, "alice", validMeta())
	require.NoError(t, err)
	assert.Empty(t, d.DedupCandidateKey)
}

func TestAdmitUploadCancelledContext(t *testing.T) {
	fx := newAdmissionFixture(t, 1<<20, UploadPolicy{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.controller.AdmitUpload(ctx, "alice", validMeta())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidOperation, apperrors.ExtractCode(err))
}

func TestAdmitUploadNeverMutates(t *testing.T) {
	fx := newAdmissionFixture(t, 1000, UploadPolicy{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		meta := validMeta()
		meta.Size = 900
		d, err := fx.controller.AdmitUpload(ctx, "alice", meta)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	// Five admissions of 900 bytes against a 1000-byte quota all pass
	// because admission reserves nothing; only the catalog commit does.
	used, _, _ := fx.ledger.Snapshot("alice")
	assert.Equal(t, int64(0), used)
}
