package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonearmapp/tonearm/pkg/config"
	"github.com/tonearmapp/tonearm/pkg/migrations"
	"github.com/tonearmapp/tonearm/pkg/models"
	"github.com/tonearmapp/tonearm/pkg/remote"
	"github.com/tonearmapp/tonearm/pkg/syncer"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const testKey = "deadbeef0000"

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

// fakeClient serves a small fixed catalog. Triggers run on their own
// goroutines, so call counting is guarded.
type fakeClient struct {
	mu      sync.Mutex
	fetches int
}

func (c *fakeClient) ListSections(ctx context.Context) ([]remote.Section, error) {
	return []remote.Section{{ID: "3", Kind: remote.KindMusic, Title: "Music"}}, nil
}

func (c *fakeClient) FetchPage(ctx context.Context, sectionID string, offset, limit int) ([]remote.Album, error) {
	c.mu.Lock()
	c.fetches++
	c.mu.Unlock()

	if offset > 0 {
		return []remote.Album{}, nil
	}
	albums := make([]remote.Album, 3)
	for i := range albums {
		albums[i] = remote.Album{
			RatingKey:   fmt.Sprintf("rk-%d", i),
			Title:       fmt.Sprintf("Album %d", i),
			ParentTitle: "Artist",
		}
	}
	return albums, nil
}

func (c *fakeClient) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func newTestScheduler(t *testing.T, client remote.Client) (*Scheduler, *bun.DB) {
	t.Helper()

	cfg := &config.Config{
		FreshnessWindow:       24 * time.Hour,
		SyncPageSize:          500,
		SyncSweepInitialDelay: time.Millisecond,
		SyncSweepInterval:     time.Hour,
	}
	registry := remote.NewRegistry()
	registry.Add(testKey, "Test Server", "http://music.local:32400", client)

	db := newTestDB(t)
	sync := syncer.New(cfg, db, registry)
	return New(cfg, db, registry, sync), db
}

func waitForStatus(t *testing.T, s *Scheduler, key, want string) *models.SyncStatus {
	t.Helper()

	var status *models.SyncStatus
	require.Eventually(t, func() bool {
		st, err := s.statusService.Retrieve(context.Background(), key)
		if err != nil {
			return false
		}
		status = st
		return st.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return status
}

func TestTriggerIfNeeded_SyncsColdSource(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestScheduler(t, client)

	s.TriggerIfNeeded(testKey, "test")

	status := waitForStatus(t, s, testKey, models.SyncStatusDone)
	assert.Equal(t, 3, status.SyncedCount)
	require.NotNil(t, status.OwnerHint)
	assert.Equal(t, "test", *status.OwnerHint)
}

func TestTriggerIfNeeded_SkipsFreshMirror(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestScheduler(t, client)

	s.TriggerIfNeeded(testKey, "test")
	waitForStatus(t, s, testKey, models.SyncStatusDone)
	fetches := client.fetchCount()

	// Inside the freshness window the trigger must not reach the remote.
	s.TriggerIfNeeded(testKey, "test")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, fetches, client.fetchCount())
}

func TestTriggerForced_IgnoresFreshness(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestScheduler(t, client)

	s.TriggerIfNeeded(testKey, "test")
	waitForStatus(t, s, testKey, models.SyncStatusDone)
	fetches := client.fetchCount()

	s.TriggerForced(testKey, "test")
	require.Eventually(t, func() bool {
		return client.fetchCount() > fetches
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSweep_TriggersNeverSyncedSources(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestScheduler(t, client)

	// No status row exists yet; the sweep must still pick the source up.
	s.sweep()

	waitForStatus(t, s, testKey, models.SyncStatusDone)
}

func TestSweep_TriggersStaleSources(t *testing.T) {
	client := &fakeClient{}
	s, db := newTestScheduler(t, client)
	ctx := context.Background()

	require.NoError(t, s.statusService.BeginSync(ctx, testKey, "old-run"))
	require.NoError(t, s.statusService.CompleteSync(ctx, testKey, 3))

	// Age the last success past the freshness window.
	old := time.Now().Add(-48 * time.Hour)
	_, err := db.NewUpdate().
		Model((*models.SyncStatus)(nil)).
		Set("last_synced_at = ?", old).
		Where("source_key = ?", testKey).
		Exec(ctx)
	require.NoError(t, err)

	s.sweep()

	require.Eventually(t, func() bool {
		st, err := s.statusService.Retrieve(ctx, testKey)
		return err == nil && st.Status == models.SyncStatusDone && st.LastSyncedAt.After(old)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSweep_LeavesFreshSourcesAlone(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestScheduler(t, client)
	ctx := context.Background()

	require.NoError(t, s.statusService.BeginSync(ctx, testKey, "old-run"))
	require.NoError(t, s.statusService.CompleteSync(ctx, testKey, 3))

	s.sweep()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, client.fetchCount())
}

func TestStartShutdown(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestScheduler(t, client)

	s.Start()

	// The initial delay is a millisecond, so the first sweep lands almost
	// immediately after Start.
	waitForStatus(t, s, testKey, models.SyncStatusDone)

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}
}
