package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/tonearmapp/tonearm/pkg/config"
	"github.com/tonearmapp/tonearm/pkg/database"
	"github.com/tonearmapp/tonearm/pkg/memcache"
	"github.com/tonearmapp/tonearm/pkg/migrations"
	"github.com/tonearmapp/tonearm/pkg/remote"
	"github.com/tonearmapp/tonearm/pkg/scheduler"
	"github.com/tonearmapp/tonearm/pkg/server"
	"github.com/tonearmapp/tonearm/pkg/sourceid"
	"github.com/tonearmapp/tonearm/pkg/syncer"
	"github.com/tonearmapp/tonearm/pkg/syncstatus"
	"github.com/tonearmapp/tonearm/pkg/version"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting tonearm", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := initDataDir(cfg.DatabaseFilePath); err != nil {
		log.Err(err).Fatal("data directory error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	sources, err := config.LoadSources()
	if err != nil {
		log.Err(err).Fatal("sources config error")
	}
	registry := buildRegistry(cfg, sources, log)
	if len(registry.Keys()) == 0 {
		log.Warn("no sources configured; the API will serve an empty catalog")
	}

	sync := syncer.New(cfg, db, registry)
	sched := scheduler.New(cfg, db, registry, sync)
	cache := memcache.New(cfg)

	// Any row still claiming to sync belongs to a run that died with the
	// previous process.
	reset, err := syncstatus.NewService(db).ResetAbandoned(ctx)
	if err != nil {
		log.Err(err).Fatal("reset abandoned syncs error")
	}
	if reset > 0 {
		log.Info("reset abandoned sync statuses", logger.Data{"count": reset})
	}

	srv, err := server.New(cfg, db, cache, registry, sched)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	cache.StartSweeping()
	sched.Start()
	log.Info("scheduler started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	sched.Shutdown()
	log.Info("scheduler shutdown")

	cache.Shutdown()
	log.Info("cache shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// buildRegistry derives a key for every configured source. Two sources
// that normalize to the same address share one mirror entry.
func buildRegistry(cfg *config.Config, sources []config.Source, log logger.Logger) *remote.Registry {
	registry := remote.NewRegistry()
	for _, source := range sources {
		url := config.NormalizeSourceURL(source.URL)
		key := sourceid.DeriveKey(url)
		client := remote.NewHTTPClient(cfg, url, source.Token)
		registry.Add(key, source.Name, url, client)
		log.Info("registered source", logger.Data{"name": source.Name, "source_key": key})
	}
	return registry
}

// initDataDir makes sure the directory holding the SQLite file exists.
func initDataDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create data directory: %s", dir)
	}
	return nil
}
