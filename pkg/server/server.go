package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/tonearmapp/tonearm/pkg/binder"
	"github.com/tonearmapp/tonearm/pkg/catalog"
	"github.com/tonearmapp/tonearm/pkg/config"
	"github.com/tonearmapp/tonearm/pkg/errcodes"
	"github.com/tonearmapp/tonearm/pkg/memcache"
	"github.com/tonearmapp/tonearm/pkg/remote"
	"github.com/tonearmapp/tonearm/pkg/scheduler"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, cache *memcache.Cache, registry *remote.Registry, sched *scheduler.Scheduler) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	catalogService := catalog.NewService(cfg, db, cache, registry, sched)
	catalog.RegisterRoutes(e, catalogService)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
