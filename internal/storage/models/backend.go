package models

import (
	"time"

	"github.com/cloudvault/cloudvault-backend/internal/storage/types"
)

// StorageBackend is the persisted configuration and live state of a physical
// storage target. Records are deactivated rather than deleted.
type StorageBackend struct {
	ID   string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Kind string `gorm:"type:varchar(20);not null;index"`

	// Opaque credential bundle, never rendered to API clients
	Credentials types.CredentialBundle `gorm:"type:jsonb;serializer:json" json:"-"`

	Capabilities types.Capabilities `gorm:"type:jsonb;serializer:json"`
	Settings     types.Settings     `gorm:"type:jsonb;serializer:json"`

	IsActive  bool `gorm:"not null;default:true;index"`
	IsDefault bool `gorm:"not null;default:false"`

	// Health state machine
	HealthState    string     `gorm:"type:varchar(20);not null;default:'unknown'"`
	SuccessStreak  int        `gorm:"not null;default:0"`
	FailureStreak  int        `gorm:"not null;default:0"`
	LastProbeAt    *time.Time `gorm:""`
	LastProbeError string     `gorm:"type:text"`
	LastLatencyMS  int64      `gorm:"not null;default:0"`

	// Cumulative usage counters
	FileCount  int64      `gorm:"not null;default:0"`
	BytesUsed  int64      `gorm:"not null;default:0"`
	ErrorCount int64      `gorm:"not null;default:0"`
	LastUsedAt *time.Time `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name
func (StorageBackend) TableName() string {
	return "storage_backends"
}
