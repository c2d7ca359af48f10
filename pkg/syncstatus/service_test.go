package syncstatus

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonearmapp/tonearm/pkg/errcodes"
	"github.com/tonearmapp/tonearm/pkg/migrations"
	"github.com/tonearmapp/tonearm/pkg/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestRetrieve_NotFound(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	_, err := svc.Retrieve(ctx, "deadbeef0000")
	require.Error(t, err)
	assert.ErrorIs(t, err, errcodes.NotFound("Sync status"))
}

func TestBeginSync_CreatesRow(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	err := svc.BeginSync(ctx, "deadbeef0000", "user-1")
	require.NoError(t, err)

	status, err := svc.Retrieve(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSyncing, status.Status)
	require.NotNil(t, status.StartedAt)
	assert.Nil(t, status.LastSyncedAt)
	assert.Zero(t, status.SyncedCount)
	assert.Zero(t, status.TotalCount)
	require.NotNil(t, status.OwnerHint)
	assert.Equal(t, "user-1", *status.OwnerHint)
}

func TestBeginSync_RefusesWhileSyncing(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.BeginSync(ctx, "deadbeef0000", "user-1"))

	err := svc.BeginSync(ctx, "deadbeef0000", "user-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadySyncing)

	// The second claim must not have touched the row.
	status, err := svc.Retrieve(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.Equal(t, "user-1", *status.OwnerHint)
}

func TestBeginSync_OverwritesAfterError(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.BeginSync(ctx, "deadbeef0000", "user-1"))
	require.NoError(t, svc.AdvanceProgress(ctx, "deadbeef0000", 250))
	require.NoError(t, svc.FailSync(ctx, "deadbeef0000", "connection refused"))

	// A new run starts cleanly from any terminal state.
	require.NoError(t, svc.BeginSync(ctx, "deadbeef0000", "user-2"))

	status, err := svc.Retrieve(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSyncing, status.Status)
	assert.Zero(t, status.SyncedCount)
	assert.Zero(t, status.TotalCount)
	assert.Nil(t, status.ErrorMessage)
	assert.Equal(t, "user-2", *status.OwnerHint)
}

func TestAdvanceProgress_TracksBothCounters(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.BeginSync(ctx, "deadbeef0000", "user-1"))
	require.NoError(t, svc.AdvanceProgress(ctx, "deadbeef0000", 500))
	require.NoError(t, svc.AdvanceProgress(ctx, "deadbeef0000", 1000))

	status, err := svc.Retrieve(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.Equal(t, 1000, status.SyncedCount)
	assert.Equal(t, 1000, status.TotalCount)
}

func TestCompleteSync(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.BeginSync(ctx, "deadbeef0000", "user-1"))
	require.NoError(t, svc.CompleteSync(ctx, "deadbeef0000", 1230))

	status, err := svc.Retrieve(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusDone, status.Status)
	require.NotNil(t, status.LastSyncedAt)
	assert.Equal(t, 1230, status.SyncedCount)
	assert.Equal(t, 1230, status.TotalCount)
	assert.Nil(t, status.ErrorMessage)
}

func TestFailSync_PreservesLastSyncedAt(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.BeginSync(ctx, "deadbeef0000", "user-1"))
	require.NoError(t, svc.CompleteSync(ctx, "deadbeef0000", 100))

	first, err := svc.Retrieve(ctx, "deadbeef0000")
	require.NoError(t, err)
	require.NotNil(t, first.LastSyncedAt)

	require.NoError(t, svc.BeginSync(ctx, "deadbeef0000", "user-1"))
	require.NoError(t, svc.FailSync(ctx, "deadbeef0000", "listing sections: connection refused"))

	status, err := svc.Retrieve(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, status.Status)
	require.NotNil(t, status.ErrorMessage)
	assert.Contains(t, *status.ErrorMessage, "connection refused")
	require.NotNil(t, status.LastSyncedAt)
	assert.WithinDuration(t, *first.LastSyncedAt, *status.LastSyncedAt, time.Second)
}

func TestHasCompletedSync(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	completed, err := svc.HasCompletedSync(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.False(t, completed)

	require.NoError(t, svc.BeginSync(ctx, "deadbeef0000", "user-1"))

	// Still false while the first run is in flight.
	completed, err = svc.HasCompletedSync(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.False(t, completed)

	require.NoError(t, svc.CompleteSync(ctx, "deadbeef0000", 10))

	completed, err = svc.HasCompletedSync(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.True(t, completed)

	// True even while a re-sync is running: the mirror keeps serving the
	// last good snapshot.
	require.NoError(t, svc.BeginSync(ctx, "deadbeef0000", "user-1"))
	completed, err = svc.HasCompletedSync(ctx, "deadbeef0000")
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestResetAbandoned(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, svc.BeginSync(ctx, "key-orphaned", "crashed-process"))
	require.NoError(t, svc.BeginSync(ctx, "key-done", "sweep"))
	require.NoError(t, svc.CompleteSync(ctx, "key-done", 5))

	reset, err := svc.ResetAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	status, err := svc.Retrieve(ctx, "key-orphaned")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, status.Status)
	require.NotNil(t, status.ErrorMessage)
	assert.Contains(t, *status.ErrorMessage, "interrupted")

	// The key can be claimed again.
	require.NoError(t, svc.BeginSync(ctx, "key-orphaned", "sweep"))

	status, err = svc.Retrieve(ctx, "key-done")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusDone, status.Status)
}

func TestListStale(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	// Never synced: stale.
	require.NoError(t, svc.BeginSync(ctx, "key-never-done", "sweep"))
	require.NoError(t, svc.FailSync(ctx, "key-never-done", "boom"))

	// Freshly synced: not stale.
	require.NoError(t, svc.BeginSync(ctx, "key-fresh", "sweep"))
	require.NoError(t, svc.CompleteSync(ctx, "key-fresh", 5))

	// Currently syncing: excluded regardless of age.
	require.NoError(t, svc.BeginSync(ctx, "key-running", "sweep"))

	stale, err := svc.ListStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "key-never-done", stale[0].SourceKey)

	// With a zero-length window even the fresh row ages out.
	stale, err = svc.ListStale(ctx, -time.Second)
	require.NoError(t, err)
	require.Len(t, stale, 2)
}
