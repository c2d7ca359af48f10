package catalog

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, svc *Service) {
	h := &handler{
		service: svc,
	}

	e.GET("/sources", h.listSources)
	e.GET("/sources/:key/sections", h.listSections)
	e.GET("/sources/:key/sections/:sectionID/albums", h.listAlbums)
	e.GET("/sources/:key/sync", h.retrieveSyncStatus)
	e.POST("/sources/:key/sync", h.triggerSync)
	e.DELETE("/cache/:scope", h.invalidateCache)
}
