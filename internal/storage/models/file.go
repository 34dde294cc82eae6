package models

import (
	"time"
)

// File is the catalog record of an uploaded file. Its top-level Size and
// StorageKey always mirror the current version's values.
type File struct {
	ID      string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerID string `gorm:"type:uuid;not null;index"`

	Name         string `gorm:"type:varchar(255);not null"`
	OriginalName string `gorm:"type:varchar(255);not null"`
	MIMEType     string `gorm:"type:varchar(100);not null"`
	Extension    string `gorm:"type:varchar(20)"`
	Size         int64  `gorm:"not null"`

	BackendID  string `gorm:"type:uuid;not null;index"`
	StorageKey string `gorm:"type:varchar(500);not null"`
	Hash       string `gorm:"type:varchar(64);not null;index"` // SHA256

	FolderID *string `gorm:"type:uuid;index"`
	IsPublic bool    `gorm:"not null;default:false"`

	CurrentVersion int `gorm:"not null;default:1"`

	ViewCount      int64      `gorm:"not null;default:0"`
	DownloadCount  int64      `gorm:"not null;default:0"`
	LastAccessedAt *time.Time `gorm:""`

	IsDeleted bool       `gorm:"not null;default:false;index"`
	DeletedAt *time.Time `gorm:""`
	DeletedBy string     `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Versions []FileVersion `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name
func (File) TableName() string {
	return "files"
}

// FileVersion is one entry in a file's ordered version chain
type FileVersion struct {
	ID            string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FileID        string    `gorm:"type:uuid;not null;uniqueIndex:idx_file_version"`
	VersionNumber int       `gorm:"not null;uniqueIndex:idx_file_version"`
	Size          int64     `gorm:"not null"`
	StorageKey    string    `gorm:"type:varchar(500);not null"`
	Hash          string    `gorm:"type:varchar(64);not null"`
	UploadedBy    string    `gorm:"type:uuid;not null"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name
func (FileVersion) TableName() string {
	return "file_versions"
}
