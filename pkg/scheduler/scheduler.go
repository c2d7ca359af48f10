// Package scheduler keeps mirrors fresh. It exposes fire-and-forget
// trigger functions for the read path and runs a periodic sweep that
// re-syncs any source whose mirror has gone stale.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tonearmapp/tonearm/pkg/config"
	"github.com/tonearmapp/tonearm/pkg/errcodes"
	"github.com/tonearmapp/tonearm/pkg/remote"
	"github.com/tonearmapp/tonearm/pkg/syncer"
	"github.com/tonearmapp/tonearm/pkg/syncstatus"
	"github.com/uptrace/bun"
)

type Scheduler struct {
	config *config.Config
	log    logger.Logger

	registry      *remote.Registry
	statusService *syncstatus.Service
	syncer        *syncer.Syncer

	shutdown chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config, db *bun.DB, registry *remote.Registry, sync *syncer.Syncer) *Scheduler {
	return &Scheduler{
		config:        cfg,
		log:           logger.New(),
		registry:      registry,
		statusService: syncstatus.NewService(db),
		syncer:        sync,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// TriggerIfNeeded starts a background sync for the key unless the mirror
// is still fresh or a run is already in flight. It returns immediately;
// the caller never waits on or hears about the run's outcome.
func (s *Scheduler) TriggerIfNeeded(key, owner string) {
	go s.run(key, owner, false)
}

// TriggerForced starts a background sync regardless of freshness. A run
// already in flight still wins.
func (s *Scheduler) TriggerForced(key, owner string) {
	go s.run(key, owner, true)
}

func (s *Scheduler) run(key, owner string, forced bool) {
	id, err := uuid.NewRandom()
	if err != nil {
		s.log.Err(err).Error("new uuid error")
		return
	}
	log := s.log.ID(id.String()).Root(logger.Data{"source_key": key, "owner": owner, "forced": forced})
	ctx := log.WithContext(context.Background())

	err = s.syncer.Run(ctx, key, owner, forced)
	switch {
	case err == nil:
	case errors.Is(err, syncer.ErrSyncInProgress), errors.Is(err, syncer.ErrRecentlySynced):
		log.Info("sync trigger skipped", logger.Data{"reason": err.Error()})
	default:
		log.Err(err).Error("background sync error")
	}
}

func (s *Scheduler) Start() {
	go s.sweepLoop()
}

func (s *Scheduler) sweepLoop() {
	timer := time.NewTimer(s.config.SyncSweepInitialDelay)

	for {
		select {
		case <-s.shutdown:
			timer.Stop()
			s.done <- struct{}{}
			return
		case <-timer.C:
			s.sweep()
			timer.Reset(s.config.SyncSweepInterval)
		}
	}
}

// sweep triggers a sync for every configured source that has gone stale
// or has never been synced at all.
func (s *Scheduler) sweep() {
	ctx := context.Background()

	stale := map[string]bool{}
	statuses, err := s.statusService.ListStale(ctx, s.config.FreshnessWindow)
	if err != nil {
		s.log.Err(err).Error("list stale sync statuses error")
		return
	}
	for _, status := range statuses {
		stale[status.SourceKey] = true
	}

	for _, key := range s.registry.Keys() {
		if stale[key] {
			s.TriggerIfNeeded(key, "sweep")
			continue
		}
		// A source with no status row yet has never been synced.
		_, err := s.statusService.Retrieve(ctx, key)
		if err != nil {
			if errors.Is(err, errcodes.NotFound("Sync status")) {
				s.TriggerIfNeeded(key, "sweep")
				continue
			}
			s.log.Err(err).Error("retrieve sync status error", logger.Data{"source_key": key})
		}
	}
}

// Shutdown stops the sweep loop. Trigger goroutines already in flight are
// not waited on; an abandoned run is replaced by the next full sweep.
func (s *Scheduler) Shutdown() {
	close(s.shutdown)
	<-s.done
}
