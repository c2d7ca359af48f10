// Package syncer drives one full synchronization pass for one mirrored
// source: it pages through every music section of the remote catalog and
// writes the records through the mirror, updating the sync status row as
// it goes.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tonearmapp/tonearm/pkg/config"
	"github.com/tonearmapp/tonearm/pkg/errcodes"
	"github.com/tonearmapp/tonearm/pkg/mirror"
	"github.com/tonearmapp/tonearm/pkg/models"
	"github.com/tonearmapp/tonearm/pkg/remote"
	"github.com/tonearmapp/tonearm/pkg/syncstatus"
	"github.com/uptrace/bun"
)

var (
	// ErrSyncInProgress means another run already holds the key. Callers
	// treat it as a no-op, not a failure.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrRecentlySynced means the mirror is inside its freshness window
	// and the trigger wasn't forced. Also a no-op.
	ErrRecentlySynced = errors.New("mirror is still fresh")
)

type Syncer struct {
	config *config.Config
	log    logger.Logger

	statusService *syncstatus.Service
	mirrorService *mirror.Service
	registry      *remote.Registry

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(cfg *config.Config, db *bun.DB, registry *remote.Registry) *Syncer {
	return &Syncer{
		config:        cfg,
		log:           logger.New(),
		statusService: syncstatus.NewService(db),
		mirrorService: mirror.NewService(db),
		registry:      registry,
		inflight:      map[string]struct{}{},
	}
}

// Run executes one full sync pass for the key. Each pass is a complete
// re-sync from offset zero; a failed run is never resumed, only replaced
// by the next full run. Records written before a mid-run failure stay in
// the mirror.
func (s *Syncer) Run(ctx context.Context, key, owner string, forced bool) error {
	entry, ok := s.registry.Lookup(key)
	if !ok {
		return errcodes.NotFound("Source")
	}

	// The in-process guard closes the window between reading the status
	// row and claiming it, so two concurrent triggers for the same key
	// can't both begin a run.
	if !s.claim(key) {
		return ErrSyncInProgress
	}
	defer s.release(key)

	status, err := s.statusService.Retrieve(ctx, key)
	if err != nil && !errors.Is(err, errcodes.NotFound("Sync status")) {
		return errors.WithStack(err)
	}
	if status != nil {
		if status.Status == models.SyncStatusSyncing {
			return ErrSyncInProgress
		}
		if !forced && status.LastSyncedAt != nil && time.Since(*status.LastSyncedAt) < s.config.FreshnessWindow {
			return ErrRecentlySynced
		}
	}

	if err := s.statusService.BeginSync(ctx, key, owner); err != nil {
		if errors.Is(err, syncstatus.ErrAlreadySyncing) {
			return ErrSyncInProgress
		}
		return errors.WithStack(err)
	}

	log := s.log.Root(logger.Data{"source_key": key, "owner": owner, "forced": forced})
	log.Info("starting sync run")

	total, err := s.syncAllSections(ctx, entry, key)
	if err != nil {
		log.Err(err).Error("sync run failed", logger.Data{"synced": total})
		if failErr := s.statusService.FailSync(ctx, key, err.Error()); failErr != nil {
			log.Err(failErr).Error("fail sync status update error")
		}
		return errors.WithStack(err)
	}

	if err := s.statusService.CompleteSync(ctx, key, total); err != nil {
		return errors.WithStack(err)
	}
	log.Info("finished sync run", logger.Data{"synced": total})

	return nil
}

func (s *Syncer) syncAllSections(ctx context.Context, entry *remote.Entry, key string) (int, error) {
	sections, err := entry.Client.ListSections(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "listing sections")
	}

	musicSections := make([]remote.Section, 0, len(sections))
	for _, section := range sections {
		if section.Kind == remote.KindMusic {
			musicSections = append(musicSections, section)
		}
	}
	if len(musicSections) == 0 {
		return 0, errors.Errorf("no music sections found on %q", entry.Name)
	}

	total := 0
	for _, section := range musicSections {
		sectionTotal, err := s.syncSection(ctx, entry, key, section, &total)
		if err != nil {
			return total, errors.Wrapf(err, "syncing section %s", section.ID)
		}
		s.log.Info("section synced", logger.Data{"source_key": key, "section_id": section.ID, "count": sectionTotal})
	}

	return total, nil
}

func (s *Syncer) syncSection(ctx context.Context, entry *remote.Entry, key string, section remote.Section, runningTotal *int) (int, error) {
	pageSize := s.config.SyncPageSize
	sectionTotal := 0

	for offset := 0; ; offset += pageSize {
		page, err := entry.Client.FetchPage(ctx, section.ID, offset, pageSize)
		if err != nil {
			return sectionTotal, errors.Wrapf(err, "fetching page at offset %d", offset)
		}
		if len(page) == 0 {
			break
		}

		if err := s.mirrorService.UpsertAlbums(ctx, key, section.ID, page); err != nil {
			return sectionTotal, errors.Wrap(err, "writing batch to mirror")
		}

		sectionTotal += len(page)
		*runningTotal += len(page)
		if err := s.statusService.AdvanceProgress(ctx, key, *runningTotal); err != nil {
			return sectionTotal, errors.Wrap(err, "advancing progress")
		}

		// A short page is the end of the section. A section whose size is
		// an exact multiple of the page size costs one extra empty fetch.
		if len(page) < pageSize {
			break
		}
	}

	return sectionTotal, nil
}

func (s *Syncer) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[key]; ok {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Syncer) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}
