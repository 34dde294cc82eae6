package biz

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cloudvault/cloudvault-backend/internal/pkg/errors"
)

func newTestLedger(t *testing.T, store *fakeQuotaStore, defaultLimit int64) *QuotaLedger {
	t.Helper()
	return NewQuotaLedger(store, QuotaConfig{
		DefaultLimit:  defaultLimit,
		WarnThreshold: 0.9,
	}, newTestLogger())
}

func TestQuotaLedgerCheckCapacity(t *testing.T) {
	ctx := context.Background()
	store := newFakeQuotaStore()
	store.used["alice"] = 400

	ledger := newTestLedger(t, store, 1000)
	require.NoError(t, ledger.Prime(ctx, "alice"))

	allowed, available := ledger.CheckCapacity("alice", 600)
	assert.True(t, allowed)
	assert.Equal(t, int64(600), available)

	allowed, available = ledger.CheckCapacity("alice", 601)
	assert.False(t, allowed)
	assert.Equal(t, int64(600), available)
}

func TestQuotaLedgerCheckCapacityUnprimed(t *testing.T) {
	ledger := newTestLedger(t, newFakeQuotaStore(), 1000)

	allowed, available := ledger.CheckCapacity("nobody", 1)
	assert.False(t, allowed)
	assert.Equal(t, int64(0), available)
}

func TestQuotaLedgerLimitOverride(t *testing.T) {
	ctx := context.Background()
	store := newFakeQuotaStore()
	store.limits["bob"] = 50

	ledger := newTestLedger(t, store, 1000)
	require.NoError(t, ledger.Prime(ctx, "bob"))

	_, limit, ok := ledger.Snapshot("bob")
	require.True(t, ok)
	assert.Equal(t, int64(50), limit)
}

func TestQuotaLedgerReserveRejectsOverLimit(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, newFakeQuotaStore(), 100)

	require.NoError(t, ledger.Reserve(ctx, "alice", 80))

	err := ledger.Reserve(ctx, "alice", 30)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrQuotaExceeded, apperrors.ExtractCode(err))

	fields := apperrors.ExtractFields(err)
	require.NotNil(t, fields)
	assert.Equal(t, int64(10), fields["shortfall_bytes"])
	assert.Equal(t, int64(20), fields["available_bytes"])

	used, _, _ := ledger.Snapshot("alice")
	assert.Equal(t, int64(80), used)
}

func TestQuotaLedgerConcurrentReserveNeverOvershoots(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, newFakeQuotaStore(), 1000)
	require.NoError(t, ledger.Prime(ctx, "alice"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 50 goroutines racing for 1000 bytes in 100-byte chunks;
			// at most 10 can win
			_ = ledger.Reserve(ctx, "alice", 100)
		}()
	}
	wg.Wait()

	used, limit, ok := ledger.Snapshot("alice")
	require.True(t, ok)
	assert.Equal(t, limit, used)
	assert.LessOrEqual(t, used, limit)
}

func TestQuotaLedgerRelease(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, newFakeQuotaStore(), 100)

	require.NoError(t, ledger.Reserve(ctx, "alice", 100))
	ledger.Release("alice", 40)

	used, _, _ := ledger.Snapshot("alice")
	assert.Equal(t, int64(60), used)

	// Releasing more than used floors at zero
	ledger.Release("alice", 1000)
	used, _, _ = ledger.Snapshot("alice")
	assert.Equal(t, int64(0), used)
}

type recordingSink struct {
	mu       sync.Mutex
	warnings []QuotaWarning
}

func (s *recordingSink) QuotaWarning(w QuotaWarning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, w)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.warnings)
}

func TestQuotaLedgerWarnsOnceAtThreshold(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t, newFakeQuotaStore(), 100)
	sink := &recordingSink{}
	ledger.SetWarningSink(sink)

	require.NoError(t, ledger.Reserve(ctx, "alice", 85))
	assert.Equal(t, 0, sink.count())

	require.NoError(t, ledger.Reserve(ctx, "alice", 5))
	assert.Equal(t, 1, sink.count())

	// Still above threshold, no duplicate warning
	require.NoError(t, ledger.Reserve(ctx, "alice", 5))
	assert.Equal(t, 1, sink.count())

	// Dropping below the threshold re-arms the warning
	ledger.Release("alice", 50)
	require.NoError(t, ledger.Reserve(ctx, "alice", 50))
	assert.Equal(t, 2, sink.count())
}

func TestQuotaLedgerSetLimit(t *testing.T) {
	ctx := context.Background()
	store := newFakeQuotaStore()
	ledger := newTestLedger(t, store, 100)
	require.NoError(t, ledger.Prime(ctx, "alice"))

	require.NoError(t, ledger.SetLimit(ctx, "alice", 500))

	_, limit, _ := ledger.Snapshot("alice")
	assert.Equal(t, int64(500), limit)
	assert.Equal(t, int64(500), store.limits["alice"])

	err := ledger.SetLimit(ctx, "alice", 0)
	assert.Error(t, err)
}
