package biz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
)

type treeFixture struct {
	tree    *FolderTree
	folders *fakeFolderRepo
	files   *fakeFileRepo
}

func newTreeFixture(t *testing.T) *treeFixture {
	t.Helper()
	folders := newFakeFolderRepo()
	files := newFakeFileRepo()
	tree := NewFolderTree(folders, files, fakeTxManager{}, newTestLogger())
	return &treeFixture{tree: tree, folders: folders, files: files}
}

func (fx *treeFixture) mustCreate(t *testing.T, owner string, parent *Folder, name string) *Folder {
	t.Helper()
	var parentID *string
	if parent != nil {
		parentID = &parent.ID
	}
	f, err := fx.tree.Create(context.Background(), owner, parentID, name)
	require.NoError(t, err)
	return f
}

func (fx *treeFixture) addFile(owner, folderID string) *File {
	f := &File{
		OwnerID:    owner,
		Name:       "file.txt",
		Size:       10,
		BackendID:  "b1",
		StorageKey: "k",
		FolderID:   &folderID,
		CreatedAt:  time.Now().UTC(),
	}
	_ = fx.files.Create(context.Background(), f)
	return f
}

func TestFolderPathDerivation(t *testing.T) {
	fx := newTreeFixture(t)

	docs := fx.mustCreate(t, "alice", nil, "docs")
	assert.Equal(t, "/docs", docs.Path)

	work := fx.mustCreate(t, "alice", docs, "work")
	assert.Equal(t, "/docs/work", work.Path)

	deep := fx.mustCreate(t, "alice", work, "2026")
	assert.Equal(t, "/docs/work/2026", deep.Path)
}

func TestFolderSiblingNameUniqueness(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	fx.mustCreate(t, "alice", docs, "work")

	_, err := fx.tree.Create(ctx, "alice", &docs.ID, "work")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrFolderNameTaken, apperrors.ExtractCode(err))

	// Same name under a different parent is fine
	other := fx.mustCreate(t, "alice", nil, "other")
	_, err = fx.tree.Create(ctx, "alice", &other.ID, "work")
	assert.NoError(t, err)

	// A deleted sibling does not block the name
	work2 := fx.mustCreate(t, "alice", docs, "drafts")
	require.NoError(t, fx.tree.SoftDelete(ctx, work2.ID, "alice"))
	_, err = fx.tree.Create(ctx, "alice", &docs.ID, "drafts")
	assert.NoError(t, err)
}

func TestFolderRenameRewritesSubtreePaths(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	work := fx.mustCreate(t, "alice", docs, "work")
	deep := fx.mustCreate(t, "alice", work, "2026")

	renamed, err := fx.tree.Rename(ctx, docs.ID, "archive")
	require.NoError(t, err)
	assert.Equal(t, "/archive", renamed.Path)

	gotWork, err := fx.tree.Get(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, "/archive/work", gotWork.Path)

	gotDeep, err := fx.tree.Get(ctx, deep.ID)
	require.NoError(t, err)
	assert.Equal(t, "/archive/work/2026", gotDeep.Path)
}

func TestFolderRenameDoesNotTouchSimilarPrefix(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	docs2 := fx.mustCreate(t, "alice", nil, "docs2")
	inner := fx.mustCreate(t, "alice", docs2, "inner")

	_, err := fx.tree.Rename(ctx, docs.ID, "archive")
	require.NoError(t, err)

	gotDocs2, err := fx.tree.Get(ctx, docs2.ID)
	require.NoError(t, err)
	assert.Equal(t, "/docs2", gotDocs2.Path)

	gotInner, err := fx.tree.Get(ctx, inner.ID)
	require.NoError(t, err)
	assert.Equal(t, "/docs2/inner", gotInner.Path)
}

func TestFolderMove(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	work := fx.mustCreate(t, "alice", docs, "work")
	deep := fx.mustCreate(t, "alice", work, "2026")
	archive := fx.mustCreate(t, "alice", nil, "archive")

	moved, err := fx.tree.Move(ctx, work.ID, &archive.ID)
	require.NoError(t, err)
	assert.Equal(t, "/archive/work", moved.Path)

	gotDeep, err := fx.tree.Get(ctx, deep.ID)
	require.NoError(t, err)
	assert.Equal(t, "/archive/work/2026", gotDeep.Path)
	assert.True(t, strings.HasPrefix(gotDeep.Path, moved.Path+"/"))

	// Move to root level
	moved, err = fx.tree.Move(ctx, work.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "/work", moved.Path)
}

func TestFolderMoveRejectsCycles(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	work := fx.mustCreate(t, "alice", docs, "work")
	deep := fx.mustCreate(t, "alice", work, "2026")

	// Into itself
	_, err := fx.tree.Move(ctx, docs.ID, &docs.ID)
	assert.Equal(t, apperrors.ErrCyclicFolderMove, apperrors.ExtractCode(err))

	// Into a direct child
	_, err = fx.tree.Move(ctx, docs.ID, &work.ID)
	assert.Equal(t, apperrors.ErrCyclicFolderMove, apperrors.ExtractCode(err))

	// Into a deeper descendant
	_, err = fx.tree.Move(ctx, docs.ID, &deep.ID)
	assert.Equal(t, apperrors.ErrCyclicFolderMove, apperrors.ExtractCode(err))
}

func TestFolderMoveSiblingConflict(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	archive := fx.mustCreate(t, "alice", nil, "archive")
	fx.mustCreate(t, "alice", archive, "work")
	work := fx.mustCreate(t, "alice", docs, "work")

	_, err := fx.tree.Move(ctx, work.ID, &archive.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrFolderNameTaken, apperrors.ExtractCode(err))
}

func TestFolderCascadeDelete(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	work := fx.mustCreate(t, "alice", docs, "work")
	deep := fx.mustCreate(t, "alice", work, "2026")
	fileInDocs := fx.addFile("alice", docs.ID)
	fileInDeep := fx.addFile("alice", deep.ID)

	require.NoError(t, fx.tree.SoftDelete(ctx, docs.ID, "alice"))

	for _, id := range []string{docs.ID, work.ID, deep.ID} {
		f, err := fx.tree.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, f.IsDeleted, "folder %s should be deleted", f.Path)
		assert.Equal(t, "alice", f.DeletedBy)
	}

	for _, id := range []string{fileInDocs.ID, fileInDeep.ID} {
		f, err := fx.files.GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, f.IsDeleted)
	}

	// Idempotent
	require.NoError(t, fx.tree.SoftDelete(ctx, docs.ID, "alice"))
}

func TestFolderRestoreIsShallow(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	work := fx.mustCreate(t, "alice", docs, "work")

	require.NoError(t, fx.tree.SoftDelete(ctx, docs.ID, "alice"))
	require.NoError(t, fx.tree.Restore(ctx, docs.ID))

	gotDocs, err := fx.tree.Get(ctx, docs.ID)
	require.NoError(t, err)
	assert.False(t, gotDocs.IsDeleted)

	// Descendants stay deleted until restored explicitly
	gotWork, err := fx.tree.Get(ctx, work.ID)
	require.NoError(t, err)
	assert.True(t, gotWork.IsDeleted)

	require.NoError(t, fx.tree.Restore(ctx, work.ID))
	gotWork, err = fx.tree.Get(ctx, work.ID)
	require.NoError(t, err)
	assert.False(t, gotWork.IsDeleted)
}

func TestFolderRestoreUnderDeletedParentFails(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	work := fx.mustCreate(t, "alice", docs, "work")

	require.NoError(t, fx.tree.SoftDelete(ctx, docs.ID, "alice"))

	err := fx.tree.Restore(ctx, work.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidOperation, apperrors.ExtractCode(err))
}

func TestFolderRestoreNameConflict(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	docs := fx.mustCreate(t, "alice", nil, "docs")
	require.NoError(t, fx.tree.SoftDelete(ctx, docs.ID, "alice"))

	// A new live folder took the name while docs was deleted
	fx.mustCreate(t, "alice", nil, "docs")

	err := fx.tree.Restore(ctx, docs.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrFolderNameTaken, apperrors.ExtractCode(err))
}

func TestFolderOwnershipIsolation(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	aliceDocs := fx.mustCreate(t, "alice", nil, "docs")

	// Bob can reuse the name at his own root
	_, err := fx.tree.Create(ctx, "bob", nil, "docs")
	assert.NoError(t, err)

	// Bob cannot create under Alice's folder
	_, err = fx.tree.Create(ctx, "bob", &aliceDocs.ID, "stuff")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrFolderNotFound, apperrors.ExtractCode(err))
}

// Rename during an active subtree mirrors the documented move/rename
// scenario: every descendant path must start with the new parent path.
func TestFolderSubtreePathInvariant(t *testing.T) {
	fx := newTreeFixture(t)
	ctx := context.Background()

	root := fx.mustCreate(t, "alice", nil, "projects")
	var parent *Folder = root
	created := []*Folder{root}
	for _, name := range []string{"a", "b", "c", "d"} {
		parent = fx.mustCreate(t, "alice", parent, name)
		created = append(created, parent)
	}

	moved, err := fx.tree.Rename(ctx, root.ID, "archive")
	require.NoError(t, err)

	subtree, err := fx.tree.ListSubtree(ctx, moved.ID)
	require.NoError(t, err)
	require.Len(t, subtree, len(created))
	for _, node := range subtree {
		assert.True(t, node.Path == moved.Path || strings.HasPrefix(node.Path, moved.Path+"/"),
			"path %s must be under %s", node.Path, moved.Path)
	}
}
