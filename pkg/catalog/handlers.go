package catalog

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/tonearmapp/tonearm/pkg/models"
	"github.com/tonearmapp/tonearm/pkg/remote"
)

type handler struct {
	service *Service
}

func (h *handler) listSources(c echo.Context) error {
	resp := struct {
		Sources []*remote.Entry `json:"sources"`
	}{h.service.Sources()}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) listSections(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	sections, err := h.service.ListSections(ctx, key)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Sections []remote.Section `json:"sections"`
	}{sections}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) listAlbums(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")
	sectionID := c.Param("sectionID")

	// Bind params.
	params := ListAlbumsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ReadSectionOptions{
		OrderBy: &params.OrderBy,
		Limit:   &params.Limit,
		Offset:  &params.Offset,
	}
	if params.Genre != "" {
		opts.Genre = &params.Genre
	}
	if params.Year != 0 {
		opts.Year = pointerutil.Int(params.Year)
	}
	if params.Studio != "" {
		opts.Studio = &params.Studio
	}

	page, err := h.service.ReadSection(ctx, key, sectionID, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (h *handler) retrieveSyncStatus(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	status, err := h.service.SyncStatus(ctx, key)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, status))
}

func (h *handler) triggerSync(c echo.Context) error {
	key := c.Param("key")

	if err := h.service.TriggerSync(key, c.RealIP()); err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{models.SyncStatusSyncing}

	return errors.WithStack(c.JSON(http.StatusAccepted, resp))
}

func (h *handler) invalidateCache(c echo.Context) error {
	scope := c.Param("scope")

	invalidated := h.service.InvalidateCache(scope)

	resp := struct {
		Invalidated int `json:"invalidated"`
	}{invalidated}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
