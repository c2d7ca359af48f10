// Package syncstatus is the durable record of each mirror's
// synchronization state and progress counters.
package syncstatus

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/tonearmapp/tonearm/pkg/errcodes"
	"github.com/tonearmapp/tonearm/pkg/models"
	"github.com/uptrace/bun"
)

// ErrAlreadySyncing is returned by BeginSync when another run currently
// holds the syncing state for the same source key.
var ErrAlreadySyncing = errors.New("a sync is already in progress for this source")

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) Retrieve(ctx context.Context, key string) (*models.SyncStatus, error) {
	status := &models.SyncStatus{}

	err := svc.db.
		NewSelect().
		Model(status).
		Where("ss.source_key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Sync status")
		}
		return nil, errors.WithStack(err)
	}

	return status, nil
}

// BeginSync claims the right to run a sync for the given key. It upserts
// the status row to syncing, resetting both counters and clearing any
// previous error, but refuses atomically if a run is already in flight.
// The conditional conflict update is what makes concurrent claims safe at
// the storage layer rather than by a read-then-write check.
func (svc *Service) BeginSync(ctx context.Context, key, owner string) error {
	now := time.Now()
	status := &models.SyncStatus{
		SourceKey: key,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    models.SyncStatusSyncing,
		StartedAt: &now,
		OwnerHint: &owner,
	}

	res, err := svc.db.
		NewInsert().
		Model(status).
		On("CONFLICT (source_key) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("started_at = EXCLUDED.started_at").
		Set("synced_count = 0").
		Set("total_count = 0").
		Set("error_message = NULL").
		Set("owner_hint = EXCLUDED.owner_hint").
		Set("updated_at = EXCLUDED.updated_at").
		Where("ss.status != ?", models.SyncStatusSyncing).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if affected == 0 {
		return ErrAlreadySyncing
	}

	return nil
}

// AdvanceProgress records how many records the current run has written so
// far. The upstream catalog never reports a true total, so the total
// column deliberately tracks the synced column.
func (svc *Service) AdvanceProgress(ctx context.Context, key string, count int) error {
	_, err := svc.db.
		NewUpdate().
		Model((*models.SyncStatus)(nil)).
		Set("synced_count = ?", count).
		Set("total_count = ?", count).
		Set("updated_at = ?", time.Now()).
		Where("source_key = ?", key).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) CompleteSync(ctx context.Context, key string, finalCount int) error {
	now := time.Now()
	_, err := svc.db.
		NewUpdate().
		Model((*models.SyncStatus)(nil)).
		Set("status = ?", models.SyncStatusDone).
		Set("last_synced_at = ?", now).
		Set("synced_count = ?", finalCount).
		Set("total_count = ?", finalCount).
		Set("error_message = NULL").
		Set("updated_at = ?", now).
		Where("source_key = ?", key).
		Exec(ctx)
	return errors.WithStack(err)
}

// FailSync marks the run as failed. last_synced_at is left alone: a prior
// successful sync is not erased by a later failure, and the mirror keeps
// serving the last good snapshot.
func (svc *Service) FailSync(ctx context.Context, key, message string) error {
	_, err := svc.db.
		NewUpdate().
		Model((*models.SyncStatus)(nil)).
		Set("status = ?", models.SyncStatusError).
		Set("error_message = ?", message).
		Set("updated_at = ?", time.Now()).
		Where("source_key = ?", key).
		Exec(ctx)
	return errors.WithStack(err)
}

// HasCompletedSync reports whether any sync has ever fully succeeded for
// the key. It stays true while a later re-sync is running, so reads keep
// hitting the mirror's last good snapshot mid-resync.
func (svc *Service) HasCompletedSync(ctx context.Context, key string) (bool, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.SyncStatus)(nil)).
		Where("source_key = ?", key).
		Where("last_synced_at IS NOT NULL").
		Count(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

// ResetAbandoned flips any row still marked syncing back to error. Runs
// execute in-process, so after a restart a syncing row can only be a
// leftover from a crashed run and would otherwise block the key forever.
func (svc *Service) ResetAbandoned(ctx context.Context) (int, error) {
	res, err := svc.db.
		NewUpdate().
		Model((*models.SyncStatus)(nil)).
		Set("status = ?", models.SyncStatusError).
		Set("error_message = ?", "sync interrupted by restart").
		Set("updated_at = ?", time.Now()).
		Where("status = ?", models.SyncStatusSyncing).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int(affected), nil
}

// ListStale returns statuses that are not currently syncing and whose
// last success is missing or older than the freshness window.
func (svc *Service) ListStale(ctx context.Context, window time.Duration) ([]*models.SyncStatus, error) {
	statuses := []*models.SyncStatus{}

	err := svc.db.
		NewSelect().
		Model(&statuses).
		Where("ss.status != ?", models.SyncStatusSyncing).
		WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("ss.last_synced_at IS NULL").
				WhereOr("ss.last_synced_at < ?", time.Now().Add(-window))
		}).
		Order("ss.source_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return statuses, nil
}
