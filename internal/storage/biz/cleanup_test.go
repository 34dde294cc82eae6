package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFile(t *testing.T, repo *fakeFileRepo, owner string, size int64, lastAccess *time.Time, downloads int64) *File {
	t.Helper()
	f := &File{
		OwnerID:        owner,
		Name:           "f",
		Size:           size,
		BackendID:      "b1",
		StorageKey:     "k",
		LastAccessedAt: lastAccess,
		DownloadCount:  downloads,
		CreatedAt:      time.Now().UTC().Add(-60 * 24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), f))
	return f
}

func daysAgo(d int) *time.Time {
	t := time.Now().UTC().Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

func TestSuggestRanksNeverAccessedFirst(t *testing.T) {
	repo := newFakeFileRepo()
	advisor := NewCleanupAdvisor(repo, newTestLogger())

	recent := seedFile(t, repo, "alice", 1<<20, daysAgo(1), 20)
	stale := seedFile(t, repo, "alice", 1<<20, daysAgo(90), 20)
	never := seedFile(t, repo, "alice", 1<<20, nil, 0)

	suggestions, err := advisor.Suggest(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, suggestions, 3)

	assert.Equal(t, never.ID, suggestions[0].FileID)
	assert.Equal(t, "never accessed", suggestions[0].Reason)
	assert.Equal(t, stale.ID, suggestions[1].FileID)
	assert.Equal(t, recent.ID, suggestions[2].FileID)
}

func TestSuggestAgeFactorIsCapped(t *testing.T) {
	repo := newFakeFileRepo()
	advisor := NewCleanupAdvisor(repo, newTestLogger())

	old := seedFile(t, repo, "alice", 0, daysAgo(365), 20)
	older := seedFile(t, repo, "alice", 0, daysAgo(3650), 20)

	suggestions, err := advisor.Suggest(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)

	var oldScore, olderScore float64
	for _, s := range suggestions {
		if s.FileID == old.ID {
			oldScore = s.Score
		}
		if s.FileID == older.ID {
			olderScore = s.Score
		}
	}
	assert.InDelta(t, oldScore, olderScore, 0.01)
	assert.InDelta(t, float64(ageFactorCapDays), oldScore, 0.01)
}

func TestSuggestSizeDominatesForLargeFiles(t *testing.T) {
	repo := newFakeFileRepo()
	advisor := NewCleanupAdvisor(repo, newTestLogger())

	small := seedFile(t, repo, "alice", 1<<20, daysAgo(5), 20)
	big := seedFile(t, repo, "alice", 500<<20, daysAgo(5), 20)

	suggestions, err := advisor.Suggest(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, big.ID, suggestions[0].FileID)
	assert.Equal(t, small.ID, suggestions[1].FileID)
	assert.Greater(t, suggestions[0].Score, suggestions[1].Score)
}

func TestSuggestRarelyDownloadedBoost(t *testing.T) {
	repo := newFakeFileRepo()
	advisor := NewCleanupAdvisor(repo, newTestLogger())

	popular := seedFile(t, repo, "alice", 1<<20, daysAgo(5), 50)
	unpopular := seedFile(t, repo, "alice", 1<<20, daysAgo(5), 0)

	suggestions, err := advisor.Suggest(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, unpopular.ID, suggestions[0].FileID)
	assert.Equal(t, popular.ID, suggestions[1].FileID)
}

func TestSuggestStopsAtTargetBytes(t *testing.T) {
	repo := newFakeFileRepo()
	advisor := NewCleanupAdvisor(repo, newTestLogger())

	for i := 0; i < 5; i++ {
		seedFile(t, repo, "alice", 100<<20, nil, 0)
	}

	suggestions, err := advisor.Suggest(context.Background(), "alice", 250<<20)
	require.NoError(t, err)
	// 3 files of 100 MB cover a 250 MB target
	assert.Len(t, suggestions, 3)
}

func TestSuggestIgnoresDeletedAndOtherOwners(t *testing.T) {
	repo := newFakeFileRepo()
	advisor := NewCleanupAdvisor(repo, newTestLogger())
	ctx := context.Background()

	mine := seedFile(t, repo, "alice", 1<<20, nil, 0)
	deleted := seedFile(t, repo, "alice", 1<<20, nil, 0)
	seedFile(t, repo, "bob", 1<<20, nil, 0)
	require.NoError(t, repo.SetDeleted(ctx, []string{deleted.ID}, true, "alice", time.Now().UTC()))

	suggestions, err := advisor.Suggest(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, mine.ID, suggestions[0].FileID)
}
