package models

import (
	"context"
	"fmt"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
)

// AutoMigrate migrates all storage engine tables in dependency order
func AutoMigrate(ctx context.Context, db *database.DB) error {
	models := []interface{}{
		&StorageBackend{},
		&Folder{},
		&File{},
		&FileVersion{},
		&OwnerQuota{},
		&Blob{},
	}

	for _, model := range models {
		if err := db.WithContext(ctx).AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	if err := createIndexes(ctx, db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes creates composite indexes that AutoMigrate tags cannot express
func createIndexes(ctx context.Context, db *database.DB) error {
	// Live sibling lookups during folder create/rename
	if err := db.WithContext(ctx).Exec(`
		CREATE INDEX IF NOT EXISTS idx_folder_live_sibling
		ON folders(owner_id, parent_id, name)
		WHERE is_deleted = false
	`).Error; err != nil {
		return err
	}

	// Subtree walks by materialized path prefix
	if err := db.WithContext(ctx).Exec(`
		CREATE INDEX IF NOT EXISTS idx_folder_owner_path
		ON folders(owner_id, path)
	`).Error; err != nil {
		return err
	}

	// Dedup candidate lookups
	if err := db.WithContext(ctx).Exec(`
		CREATE INDEX IF NOT EXISTS idx_file_backend_hash
		ON files(backend_id, hash)
		WHERE is_deleted = false
	`).Error; err != nil {
		return err
	}

	// Cleanup advisor scans
	if err := db.WithContext(ctx).Exec(`
		CREATE INDEX IF NOT EXISTS idx_file_owner_live
		ON files(owner_id, created_at DESC)
		WHERE is_deleted = false
	`).Error; err != nil {
		return err
	}

	return nil
}

// DropTables drops all storage engine tables. Test use only.
func DropTables(ctx context.Context, db *database.DB) error {
	models := []interface{}{
		&Blob{},
		&OwnerQuota{},
		&FileVersion{},
		&File{},
		&Folder{},
		&StorageBackend{},
	}

	for _, model := range models {
		if err := db.WithContext(ctx).Migrator().DropTable(model); err != nil {
			return fmt.Errorf("failed to drop table %T: %w", model, err)
		}
	}

	return nil
}
