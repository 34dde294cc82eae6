package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
)

func newTestLogger() *logger.Logger {
	log, err := logger.New(&logger.Config{
		Level:  "error",
		Format: "console",
		Output: "console",
	})
	if err != nil {
		panic(err)
	}
	return log
}

// fakeBackendRepo is an in-memory BackendRepo
type fakeBackendRepo struct {
	mu       sync.Mutex
	backends map[string]*Backend
	nextID   int
}

func newFakeBackendRepo() *fakeBackendRepo {
	return &fakeBackendRepo{backends: make(map[string]*Backend)}
}

func (r *fakeBackendRepo) genID() string {
	r.nextID++
	return fmt.Sprintf("backend-%d", r.nextID)
}

func copyBackend(b *Backend) *Backend {
	cp := *b
	return &cp
}

func (r *fakeBackendRepo) Create(_ context.Context, b *Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == "" {
		b.ID = r.genID()
	}
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	r.backends[b.ID] = copyBackend(b)
	return nil
}

func (r *fakeBackendRepo) GetByID(_ context.Context, id string) (*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.backends[id]
	if !ok {
		return nil, nil
	}
	return copyBackend(b), nil
}

func (r *fakeBackendRepo) GetByName(_ context.Context, name string) (*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.backends {
		if b.Name == name {
			return copyBackend(b), nil
		}
	}
	return nil, nil
}

func (r *fakeBackendRepo) List(_ context.Context) ([]*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, copyBackend(b))
	}
	return out, nil
}

func (r *fakeBackendRepo) ListActive(_ context.Context) ([]*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Backend
	for _, b := range r.backends {
		if b.IsActive {
			out = append(out, copyBackend(b))
		}
	}
	return out, nil
}

func (r *fakeBackendRepo) Update(_ context.Context, b *Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.ID] = copyBackend(b)
	return nil
}

func (r *fakeBackendRepo) SetDefault(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[id]; !ok {
		return fmt.Errorf("backend %s not found", id)
	}
	for _, b := range r.backends {
		b.IsDefault = b.ID == id
	}
	return nil
}

func (r *fakeBackendRepo) RecordUsage(_ context.Context, id string, deltaFiles, deltaBytes int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.backends[id]
	if !ok {
		return fmt.Errorf("backend %s not found", id)
	}
	b.FileCount += deltaFiles
	b.BytesUsed += deltaBytes
	now := time.Now().UTC()
	b.LastUsedAt = &now
	return nil
}

func (r *fakeBackendRepo) UpdateHealth(_ context.Context, b *Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.backends[b.ID]
	if !ok {
		return fmt.Errorf("backend %s not found", b.ID)
	}
	stored.HealthState = b.HealthState
	stored.SuccessStreak = b.SuccessStreak
	stored.FailureStreak = b.FailureStreak
	stored.LastProbeAt = b.LastProbeAt
	stored.LastProbeError = b.LastProbeError
	stored.LastLatencyMS = b.LastLatencyMS
	stored.ErrorCount = b.ErrorCount
	return nil
}

func (r *fakeBackendRepo) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.backends[id]
	if !ok {
		return fmt.Errorf("backend %s not found", id)
	}
	b.IsActive = false
	b.IsDefault = false
	return nil
}

// fakeFileRepo is an in-memory FileRepo
type fakeFileRepo struct {
	mu     sync.Mutex
	files  map[string]*File
	nextID int
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: make(map[string]*File)}
}

func (r *fakeFileRepo) genID() string {
	r.nextID++
	return fmt.Sprintf("file-%d", r.nextID)
}

func copyFile(f *File) *File {
	cp := *f
	cp.Versions = make([]*FileVersion, len(f.Versions))
	for i, v := range f.Versions {
		vc := *v
		cp.Versions[i] = &vc
	}
	return &cp
}

func (r *fakeFileRepo) Create(_ context.Context, f *File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.ID == "" {
		f.ID = r.genID()
	}
	f.Versions = []*FileVersion{{
		ID:            f.ID + "-v1",
		FileID:        f.ID,
		VersionNumber: 1,
		Size:          f.Size,
		StorageKey:    f.StorageKey,
		Hash:          f.Hash,
		UploadedBy:    f.OwnerID,
		CreatedAt:     f.CreatedAt,
	}}
	r.files[f.ID] = copyFile(f)
	return nil
}

func (r *fakeFileRepo) GetByID(_ context.Context, id string) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, nil
	}
	return copyFile(f), nil
}

func (r *fakeFileRepo) AppendVersion(_ context.Context, f *File, v *FileVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.files[f.ID]
	if !ok {
		return fmt.Errorf("file %s not found", f.ID)
	}
	for _, existing := range stored.Versions {
		if existing.VersionNumber == v.VersionNumber {
			return fmt.Errorf("duplicate version %d", v.VersionNumber)
		}
	}
	vc := *v
	stored.Versions = append(stored.Versions, &vc)
	stored.CurrentVersion = f.CurrentVersion
	stored.Size = f.Size
	stored.StorageKey = f.StorageKey
	stored.Hash = f.Hash
	stored.UpdatedAt = f.UpdatedAt
	return nil
}

func (r *fakeFileRepo) SetDeleted(_ context.Context, ids []string, deleted bool, by string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		f, ok := r.files[id]
		if !ok {
			continue
		}
		f.IsDeleted = deleted
		if deleted {
			f.DeletedAt = &at
			f.DeletedBy = by
		} else {
			f.DeletedAt = nil
			f.DeletedBy = ""
		}
	}
	return nil
}

func (r *fakeFileRepo) MarkDeletedInFolders(_ context.Context, folderIDs []string, by string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[string]bool, len(folderIDs))
	for _, id := range folderIDs {
		set[id] = true
	}
	for _, f := range r.files {
		if f.IsDeleted || f.FolderID == nil {
			continue
		}
		if set[*f.FolderID] {
			f.IsDeleted = true
			f.DeletedAt = &at
			f.DeletedBy = by
		}
	}
	return nil
}

func (r *fakeFileRepo) FindLiveByHash(_ context.Context, backendID, hash string) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if !f.IsDeleted && f.BackendID == backendID && f.Hash == hash {
			return copyFile(f), nil
		}
	}
	return nil, nil
}

func (r *fakeFileRepo) ListLiveByOwner(_ context.Context, ownerID string) ([]*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*File
	for _, f := range r.files {
		if !f.IsDeleted && f.OwnerID == ownerID {
			out = append(out, copyFile(f))
		}
	}
	return out, nil
}

func (r *fakeFileRepo) RecordAccess(_ context.Context, id string, download bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return fmt.Errorf("file %s not found", id)
	}
	now := time.Now().UTC()
	f.LastAccessedAt = &now
	if download {
		f.DownloadCount++
	} else {
		f.ViewCount++
	}
	return nil
}

func (r *fakeFileRepo) CountByStorageKey(_ context.Context, key string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, f := range r.files {
		for _, v := range f.Versions {
			if v.StorageKey == key {
				count++
			}
		}
	}
	return count, nil
}

func (r *fakeFileRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
	return nil
}

// fakeFolderRepo is an in-memory FolderRepo
type fakeFolderRepo struct {
	mu      sync.Mutex
	folders map[string]*Folder
	nextID  int
}

func newFakeFolderRepo() *fakeFolderRepo {
	return &fakeFolderRepo{folders: make(map[string]*Folder)}
}

func (r *fakeFolderRepo) genID() string {
	r.nextID++
	return fmt.Sprintf("folder-%d", r.nextID)
}

func copyFolder(f *Folder) *Folder {
	cp := *f
	return &cp
}

func (r *fakeFolderRepo) Create(_ context.Context, f *Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.ID == "" {
		f.ID = r.genID()
	}
	r.folders[f.ID] = copyFolder(f)
	return nil
}

func (r *fakeFolderRepo) GetByID(_ context.Context, id string) (*Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok {
		return nil, nil
	}
	return copyFolder(f), nil
}

func (r *fakeFolderRepo) HasLiveSibling(_ context.Context, ownerID string, parentID *string, name, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.folders {
		if f.IsDeleted || f.OwnerID != ownerID || f.Name != name || f.ID == excludeID {
			continue
		}
		if equalParent(f.ParentID, parentID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeFolderRepo) ListSubtree(_ context.Context, ownerID, prefix string) ([]*Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Folder
	for _, f := range r.folders {
		if f.OwnerID != ownerID {
			continue
		}
		if f.Path == prefix || strings.HasPrefix(f.Path, prefix+"/") {
			out = append(out, copyFolder(f))
		}
	}
	return out, nil
}

func (r *fakeFolderRepo) Update(_ context.Context, f *Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.folders[f.ID]
	if !ok {
		return fmt.Errorf("folder %s not found", f.ID)
	}
	stored.ParentID = f.ParentID
	stored.Name = f.Name
	stored.Path = f.Path
	stored.UpdatedAt = f.UpdatedAt
	return nil
}

func (r *fakeFolderRepo) UpdatePaths(_ context.Context, updates []PathUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range updates {
		f, ok := r.folders[u.ID]
		if !ok {
			return fmt.Errorf("folder %s not found", u.ID)
		}
		f.Path = u.Path
	}
	return nil
}

func (r *fakeFolderRepo) SetDeleted(_ context.Context, ids []string, deleted bool, by string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		f, ok := r.folders[id]
		if !ok {
			continue
		}
		f.IsDeleted = deleted
		if deleted {
			f.DeletedAt = &at
			f.DeletedBy = by
		} else {
			f.DeletedAt = nil
			f.DeletedBy = ""
		}
	}
	return nil
}

// fakeQuotaStore is an in-memory QuotaStore
type fakeQuotaStore struct {
	mu     sync.Mutex
	used   map[string]int64
	limits map[string]int64
}

func newFakeQuotaStore() *fakeQuotaStore {
	return &fakeQuotaStore{
		used:   make(map[string]int64),
		limits: make(map[string]int64),
	}
}

func (s *fakeQuotaStore) UsedBytes(_ context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[ownerID], nil
}

func (s *fakeQuotaStore) LimitBytes(_ context.Context, ownerID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit, ok := s.limits[ownerID]
	return limit, ok, nil
}

func (s *fakeQuotaStore) SetLimitBytes(_ context.Context, ownerID string, limit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[ownerID] = limit
	return nil
}

// fakeTxManager runs the function directly; the fakes are already atomic
// enough for unit tests
type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeProber returns scripted results per backend id
type fakeProber struct {
	mu   sync.Mutex
	errs map[string]error
}

func newFakeProber() *fakeProber {
	return &fakeProber{errs: make(map[string]error)}
}

func (p *fakeProber) set(backendID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[backendID] = err
}

func (p *fakeProber) Probe(_ context.Context, b *Backend) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs[b.ID]
}
