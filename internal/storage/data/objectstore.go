package data

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
	"github.com/cloudvault/cloudvault-backend/internal/storage/models"
)

// ObjectStore moves file bytes to and from a backend. The s3, wasabi and r2
// kinds speak the S3 API; the embedded kind stores blobs in the platform
// database.
type ObjectStore interface {
	Put(ctx context.Context, b *biz.Backend, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, b *biz.Backend, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, b *biz.Backend, key string) error
}

type objectStore struct {
	db     *database.DB
	logger *logger.Logger

	mu      sync.Mutex
	clients map[string]*minio.Client // backend ID -> S3 client
}

// NewObjectStore creates the object store dispatcher
func NewObjectStore(db *database.DB, log *logger.Logger) ObjectStore {
	return &objectStore{
		db:      db,
		logger:  log,
		clients: make(map[string]*minio.Client),
	}
}

func (s *objectStore) Put(ctx context.Context, b *biz.Backend, key string, r io.Reader, size int64, contentType string) error {
	if b.Kind.IsObjectStore() {
		client, err := s.client(b)
		if err != nil {
			return err
		}
		_, err = client.PutObject(ctx, b.Credentials.S3.Bucket, key, r, size, minio.PutObjectOptions{
			ContentType: contentType,
		})
		if err != nil {
			return fmt.Errorf("failed to put object %s: %w", key, err)
		}
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	return s.db.GetDBFromContext(ctx).Create(&models.Blob{
		Key:  s.blobKey(b, key),
		Data: data,
		Size: int64(len(data)),
	}).Error
}

func (s *objectStore) Get(ctx context.Context, b *biz.Backend, key string) (io.ReadCloser, error) {
	if b.Kind.IsObjectStore() {
		client, err := s.client(b)
		if err != nil {
			return nil, err
		}
		obj, err := client.GetObject(ctx, b.Credentials.S3.Bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to get object %s: %w", key, err)
		}
		return obj, nil
	}

	var blob models.Blob
	err := s.db.GetDBFromContext(ctx).Where("key = ?", s.blobKey(b, key)).First(&blob).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("blob %s not found", key)
		}
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(blob.Data)), nil
}

func (s *objectStore) Delete(ctx context.Context, b *biz.Backend, key string) error {
	if b.Kind.IsObjectStore() {
		client, err := s.client(b)
		if err != nil {
			return err
		}
		err = client.RemoveObject(ctx, b.Credentials.S3.Bucket, key, minio.RemoveObjectOptions{})
		if err != nil {
			return fmt.Errorf("failed to delete object %s: %w", key, err)
		}
		return nil
	}

	return s.db.GetDBFromContext(ctx).
		Where("key = ?", s.blobKey(b, key)).
		Delete(&models.Blob{}).Error
}

// client returns the cached S3 client for a backend, creating it on first use
func (s *objectStore) client(b *biz.Backend) (*minio.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[b.ID]; ok {
		return client, nil
	}

	creds := b.Credentials.S3
	if creds == nil {
		return nil, fmt.Errorf("backend %s has no s3 credentials", b.Name)
	}

	client, err := minio.New(creds.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, ""),
		Secure: creds.UseSSL,
		Region: creds.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client for backend %s: %w", b.Name, err)
	}

	s.logger.Info("object store client created",
		zap.String("backend", b.Name),
		zap.String("endpoint", creds.Endpoint),
	)
	s.clients[b.ID] = client
	return client, nil
}

func (s *objectStore) blobKey(b *biz.Backend, key string) string {
	namespace := "default"
	if b.Credentials.Embedded != nil && b.Credentials.Embedded.Namespace != "" {
		namespace = b.Credentials.Embedded.Namespace
	}
	return namespace + "/" + key
}
