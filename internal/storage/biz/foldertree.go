package biz

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
)

// Folder is a node in the path-addressed hierarchy
type Folder struct {
	ID       string
	OwnerID  string
	ParentID *string
	Name     string
	Path     string

	IsDeleted bool
	DeletedAt *time.Time
	DeletedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PathUpdate rewrites one folder's materialized path
type PathUpdate struct {
	ID   string
	Path string
}

// FolderRepo is the persistence contract for the folder hierarchy
type FolderRepo interface {
	Create(ctx context.Context, f *Folder) error
	GetByID(ctx context.Context, id string) (*Folder, error)
	// HasLiveSibling reports whether a live folder with the given name exists
	// under the same parent, excluding excludeID
	HasLiveSibling(ctx context.Context, ownerID string, parentID *string, name, excludeID string) (bool, error)
	// ListSubtree returns every folder whose path equals prefix or starts
	// with prefix + "/", deleted nodes included, ordered by path
	ListSubtree(ctx context.Context, ownerID, prefix string) ([]*Folder, error)
	Update(ctx context.Context, f *Folder) error
	UpdatePaths(ctx context.Context, updates []PathUpdate) error
	SetDeleted(ctx context.Context, ids []string, deleted bool, by string, at time.Time) error
}

// TxManager runs a function inside one database transaction. Repo calls made
// with the ctx it provides join that transaction.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// FolderTree owns the folder hierarchy. Subtree path rewrites and cascade
// deletes run inside one transaction so readers never observe a half-moved
// tree.
type FolderTree struct {
	repo   FolderRepo
	files  FileRepo
	tx     TxManager
	logger *logger.Logger
}

// NewFolderTree creates a folder tree
func NewFolderTree(repo FolderRepo, files FileRepo, tx TxManager, log *logger.Logger) *FolderTree {
	return &FolderTree{
		repo:   repo,
		files:  files,
		tx:     tx,
		logger: log,
	}
}

// childPath derives a folder's materialized path from its parent
func childPath(parent *Folder, name string) string {
	if parent == nil {
		return "/" + name
	}
	return parent.Path + "/" + name
}

// Create adds a folder under the given parent (nil parent means root level).
// Sibling names must be unique among live folders.
func (t *FolderTree) Create(ctx context.Context, ownerID string, parentID *string, name string) (*Folder, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	var parent *Folder
	if parentID != nil {
		var err error
		parent, err = t.getLive(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.OwnerID != ownerID {
			return nil, apperrors.New(apperrors.ErrFolderNotFound, *parentID)
		}
	}

	taken, err := t.repo.HasLiveSibling(ctx, ownerID, parentID, name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.New(apperrors.ErrFolderNameTaken, name)
	}

	now := time.Now().UTC()
	f := &Folder{
		OwnerID:   ownerID,
		ParentID:  parentID,
		Name:      name,
		Path:      childPath(parent, name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.repo.Create(ctx, f); err != nil {
		return nil, err
	}

	t.logger.Info("folder created",
		zap.String("folder_id", f.ID),
		zap.String("path", f.Path),
	)
	return f, nil
}

// Get returns a folder by id
func (t *FolderTree) Get(ctx context.Context, id string) (*Folder, error) {
	f, err := t.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperrors.New(apperrors.ErrFolderNotFound, id)
	}
	return f, nil
}

// ListSubtree returns a folder's subtree including itself, ordered by path
func (t *FolderTree) ListSubtree(ctx context.Context, id string) ([]*Folder, error) {
	f, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.repo.ListSubtree(ctx, f.OwnerID, f.Path)
}

// Rename changes a folder's name and rewrites the materialized path of the
// whole subtree in one transaction.
func (t *FolderTree) Rename(ctx context.Context, id, newName string) (*Folder, error) {
	if err := ValidateName(newName); err != nil {
		return nil, err
	}

	f, err := t.getLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Name == newName {
		return f, nil
	}

	taken, err := t.repo.HasLiveSibling(ctx, f.OwnerID, f.ParentID, newName, f.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.New(apperrors.ErrFolderNameTaken, newName)
	}

	oldPath := f.Path
	var parent *Folder
	if f.ParentID != nil {
		parent, err = t.Get(ctx, *f.ParentID)
		if err != nil {
			return nil, err
		}
	}
	newPath := childPath(parent, newName)

	err = t.tx.WithinTx(ctx, func(ctx context.Context) error {
		f.Name = newName
		f.Path = newPath
		f.UpdatedAt = time.Now().UTC()
		if err := t.repo.Update(ctx, f); err != nil {
			return err
		}
		return t.rewriteSubtree(ctx, f.OwnerID, f.ID, oldPath, newPath)
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("folder renamed",
		zap.String("folder_id", f.ID),
		zap.String("old_path", oldPath),
		zap.String("new_path", newPath),
	)
	return f, nil
}

// Move reparents a folder. Moving a folder into itself or any of its
// descendants is rejected; the subtree's paths are rewritten in one
// transaction.
func (t *FolderTree) Move(ctx context.Context, id string, newParentID *string) (*Folder, error) {
	f, err := t.getLive(ctx, id)
	if err != nil {
		return nil, err
	}

	var newParent *Folder
	if newParentID != nil {
		if *newParentID == f.ID {
			return nil, apperrors.New(apperrors.ErrCyclicFolderMove, f.Name)
		}
		newParent, err = t.getLive(ctx, *newParentID)
		if err != nil {
			return nil, err
		}
		if newParent.OwnerID != f.OwnerID {
			return nil, apperrors.New(apperrors.ErrFolderNotFound, *newParentID)
		}
		if newParent.Path == f.Path || strings.HasPrefix(newParent.Path, f.Path+"/") {
			return nil, apperrors.New(apperrors.ErrCyclicFolderMove, f.Name)
		}
	}

	taken, err := t.repo.HasLiveSibling(ctx, f.OwnerID, newParentID, f.Name, f.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.New(apperrors.ErrFolderNameTaken, f.Name)
	}

	oldPath := f.Path
	newPath := childPath(newParent, f.Name)
	if oldPath == newPath && equalParent(f.ParentID, newParentID) {
		return f, nil
	}

	err = t.tx.WithinTx(ctx, func(ctx context.Context) error {
		f.ParentID = newParentID
		f.Path = newPath
		f.UpdatedAt = time.Now().UTC()
		if err := t.repo.Update(ctx, f); err != nil {
			return err
		}
		return t.rewriteSubtree(ctx, f.OwnerID, f.ID, oldPath, newPath)
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("folder moved",
		zap.String("folder_id", f.ID),
		zap.String("old_path", oldPath),
		zap.String("new_path", newPath),
	)
	return f, nil
}

// SoftDelete tombstones a folder, every live descendant folder and every live
// file inside them, atomically. Deleting an already-deleted folder is a no-op.
func (t *FolderTree) SoftDelete(ctx context.Context, id, actor string) error {
	f, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if f.IsDeleted {
		return nil
	}

	subtree, err := t.repo.ListSubtree(ctx, f.OwnerID, f.Path)
	if err != nil {
		return err
	}

	var folderIDs []string
	for _, node := range subtree {
		if !node.IsDeleted {
			folderIDs = append(folderIDs, node.ID)
		}
	}

	now := time.Now().UTC()
	err = t.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := t.repo.SetDeleted(ctx, folderIDs, true, actor, now); err != nil {
			return err
		}
		return t.files.MarkDeletedInFolders(ctx, folderIDs, actor, now)
	})
	if err != nil {
		return err
	}

	t.logger.Info("folder subtree deleted",
		zap.String("folder_id", f.ID),
		zap.String("path", f.Path),
		zap.Int("folders", len(folderIDs)),
	)
	return nil
}

// Restore clears a folder's tombstone. Descendants stay deleted and are
// restored explicitly; restoring a live folder is a no-op.
func (t *FolderTree) Restore(ctx context.Context, id string) error {
	f, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if !f.IsDeleted {
		return nil
	}
	if f.ParentID != nil {
		parent, err := t.Get(ctx, *f.ParentID)
		if err != nil {
			return err
		}
		if parent.IsDeleted {
			return apperrors.New(apperrors.ErrInvalidOperation, "parent folder is deleted")
		}
	}

	taken, err := t.repo.HasLiveSibling(ctx, f.OwnerID, f.ParentID, f.Name, f.ID)
	if err != nil {
		return err
	}
	if taken {
		return apperrors.New(apperrors.ErrFolderNameTaken, f.Name)
	}

	return t.repo.SetDeleted(ctx, []string{id}, false, "", time.Now().UTC())
}

// rewriteSubtree replaces oldPrefix with newPrefix on every descendant of the
// moved folder, deleted nodes included so later restores see current paths.
func (t *FolderTree) rewriteSubtree(ctx context.Context, ownerID, rootID, oldPrefix, newPrefix string) error {
	subtree, err := t.repo.ListSubtree(ctx, ownerID, oldPrefix)
	if err != nil {
		return err
	}

	var updates []PathUpdate
	for _, node := range subtree {
		if node.ID == rootID {
			continue
		}
		updates = append(updates, PathUpdate{
			ID:   node.ID,
			Path: newPrefix + strings.TrimPrefix(node.Path, oldPrefix),
		})
	}
	if len(updates) == 0 {
		return nil
	}
	return t.repo.UpdatePaths(ctx, updates)
}

func (t *FolderTree) getLive(ctx context.Context, id string) (*Folder, error) {
	f, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.IsDeleted {
		return nil, apperrors.New(apperrors.ErrFolderNotFound, id)
	}
	return f, nil
}

func equalParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
