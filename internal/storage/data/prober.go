package data

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
)

type backendProber struct {
	db     *database.DB
	logger *logger.Logger
}

// NewBackendProber creates the transport-level health checker
func NewBackendProber(db *database.DB, log *logger.Logger) biz.BackendProber {
	return &backendProber{db: db, logger: log}
}

// Probe checks that the backend's bucket is reachable with the stored
// credentials. The embedded kind pings the platform database instead.
func (p *backendProber) Probe(ctx context.Context, b *biz.Backend) error {
	if !b.Kind.IsObjectStore() {
		return p.db.HealthCheck(ctx)
	}

	creds := b.Credentials.S3
	if creds == nil {
		return fmt.Errorf("backend %s has no s3 credentials", b.Name)
	}

	// A fresh client each probe so credential rotation takes effect
	client, err := minio.New(creds.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, ""),
		Secure: creds.UseSSL,
		Region: creds.Region,
	})
	if err != nil {
		return fmt.Errorf("failed to create probe client: %w", err)
	}

	exists, err := client.BucketExists(ctx, creds.Bucket)
	if err != nil {
		return fmt.Errorf("bucket check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", creds.Bucket)
	}
	return nil
}
