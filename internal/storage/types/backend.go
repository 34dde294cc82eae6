package types

import (
	"errors"
	"time"
)

// BackendKind identifies a physical storage target
type BackendKind string

const (
	KindS3       BackendKind = "s3"       // AWS S3 and generic S3-compatible endpoints
	KindWasabi   BackendKind = "wasabi"   // Wasabi hot cloud storage
	KindR2       BackendKind = "r2"       // Cloudflare R2
	KindEmbedded BackendKind = "embedded" // blobs stored in the platform database
)

// Valid reports whether the kind is one of the supported backends
func (k BackendKind) Valid() bool {
	switch k {
	case KindS3, KindWasabi, KindR2, KindEmbedded:
		return true
	}
	return false
}

// IsObjectStore reports whether the kind talks to an S3-compatible endpoint
func (k BackendKind) IsObjectStore() bool {
	return k == KindS3 || k == KindWasabi || k == KindR2
}

// HealthState is the probe-driven backend health
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// S3Credentials holds access to an S3-compatible endpoint
type S3Credentials struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region,omitempty"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

// EmbeddedCredentials holds settings for the database-backed store
type EmbeddedCredentials struct {
	Namespace string `json:"namespace"` // key prefix inside the blobs table
}

// CredentialBundle is a tagged union: exactly one member is set, matching the
// backend kind. It is persisted as an opaque column and never rendered to API
// clients.
type CredentialBundle struct {
	S3       *S3Credentials       `json:"s3,omitempty"`
	Embedded *EmbeddedCredentials `json:"embedded,omitempty"`
}

// Validate checks the bundle against the backend kind exhaustively
func (c *CredentialBundle) Validate(kind BackendKind) error {
	switch {
	case kind.IsObjectStore():
		if c.S3 == nil {
			return errors.New("s3 credentials are required for object-store backends")
		}
		if c.S3.Endpoint == "" {
			return errors.New("endpoint is required")
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return errors.New("access key and secret key are required")
		}
		if c.S3.Bucket == "" {
			return errors.New("bucket is required")
		}
		return nil
	case kind == KindEmbedded:
		if c.Embedded == nil {
			return errors.New("embedded credentials are required for the database store")
		}
		if c.Embedded.Namespace == "" {
			return errors.New("namespace is required")
		}
		return nil
	default:
		return errors.New("unknown backend kind")
	}
}

// Capabilities are the features a backend supports
type Capabilities struct {
	Multipart  bool `json:"multipart"`
	Versioning bool `json:"versioning"`
	Encryption bool `json:"encryption"`
	CDN        bool `json:"cdn"`
}

// Settings are the operational knobs of a backend
type Settings struct {
	UploadTimeout time.Duration `json:"upload_timeout"`
	RetryBudget   int           `json:"retry_budget"`
	ChunkSize     int64         `json:"chunk_size"`
	Compression   bool          `json:"compression"`
	Encryption    bool          `json:"encryption"`
	Deduplication bool          `json:"deduplication"`
	Versioning    bool          `json:"versioning"`
	AutoCleanup   string        `json:"auto_cleanup,omitempty"` // cleanup policy name, empty = off
}

// ProbeDeadline returns the deadline budget for a health probe, derived from
// the backend's upload timeout and clamped to a sane range.
func (s Settings) ProbeDeadline() time.Duration {
	d := s.UploadTimeout
	if d <= 0 {
		d = 10 * time.Second
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
