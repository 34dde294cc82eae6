package models

import (
	"time"
)

// Folder is a node in the path-addressed hierarchy. Path is a pure function of
// the name chain from root (root = /name, child = parent.path + "/" + name)
// and is recomputed for the whole subtree on rename/move.
type Folder struct {
	ID       string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerID  string  `gorm:"type:uuid;not null;index:idx_folder_sibling"`
	ParentID *string `gorm:"type:uuid;index:idx_folder_sibling"`
	Name     string  `gorm:"type:varchar(255);not null;index:idx_folder_sibling"`
	Path     string  `gorm:"type:varchar(4096);not null;index"`

	IsDeleted bool       `gorm:"not null;default:false;index"`
	DeletedAt *time.Time `gorm:""`
	DeletedBy string     `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name
func (Folder) TableName() string {
	return "folders"
}

// OwnerQuota is a per-owner storage limit override. Owners without a row fall
// back to the configured default limit.
type OwnerQuota struct {
	OwnerID    string    `gorm:"type:uuid;primaryKey"`
	LimitBytes int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name
func (OwnerQuota) TableName() string {
	return "owner_quotas"
}

// Blob backs the embedded-database storage kind: object bytes keyed by the
// backend-specific storage key.
type Blob struct {
	Key       string    `gorm:"type:varchar(600);primaryKey"`
	Data      []byte    `gorm:"not null"`
	Size      int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name
func (Blob) TableName() string {
	return "blobs"
}
