package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonearmapp/tonearm/pkg/binder"
	"github.com/tonearmapp/tonearm/pkg/models"
	"github.com/tonearmapp/tonearm/pkg/remote"
)

func setupTestHandler(t *testing.T) (*handler, *echo.Echo, *Service) {
	t.Helper()

	svc, _, _, db := newTestService(t)
	warmMirror(t, db)

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b

	return &handler{service: svc}, e, svc
}

func TestHandler_ListSources(t *testing.T) {
	h, e, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/sources", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.listSources(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sources []*remote.Entry `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, testKey, resp.Sources[0].Key)
	assert.Equal(t, "Test Server", resp.Sources[0].Name)
}

func TestHandler_ListAlbums(t *testing.T) {
	h, e, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/sources/"+testKey+"/sections/3/albums?order_by=artist&genre=Electronic", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/sources/:key/sections/:sectionID/albums")
	c.SetParamNames("key", "sectionID")
	c.SetParamValues(testKey, "3")

	require.NoError(t, h.listAlbums(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var page SectionPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, TierMirror, page.Tier)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Albums, 2)
	assert.Equal(t, "Massive Attack", page.Albums[0].Artist)
}

func TestHandler_ListAlbums_BadOrderBy(t *testing.T) {
	h, e, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/sources/"+testKey+"/sections/3/albums?order_by=loudness", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/sources/:key/sections/:sectionID/albums")
	c.SetParamNames("key", "sectionID")
	c.SetParamValues(testKey, "3")

	err := h.listAlbums(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"order_by" must be one of the following`)
}

func TestHandler_RetrieveSyncStatus(t *testing.T) {
	h, e, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/sources/"+testKey+"/sync", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/sources/:key/sync")
	c.SetParamNames("key")
	c.SetParamValues(testKey)

	require.NoError(t, h.retrieveSyncStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var status models.SyncStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.SyncStatusDone, status.Status)
}

func TestHandler_TriggerSync(t *testing.T) {
	h, e, svc := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/sources/"+testKey+"/sync", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/sources/:key/sync")
	c.SetParamNames("key")
	c.SetParamValues(testKey)

	require.NoError(t, h.triggerSync(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	trigger := svc.scheduler.(*recordingTrigger)
	assert.Equal(t, []string{testKey}, trigger.forced)
}

func TestHandler_TriggerSync_UnknownSource(t *testing.T) {
	h, e, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/sources/000000000000/sync", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/sources/:key/sync")
	c.SetParamNames("key")
	c.SetParamValues("000000000000")

	err := h.triggerSync(c)
	require.Error(t, err)
}

func TestHandler_InvalidateCache(t *testing.T) {
	h, e, svc := setupTestHandler(t)

	// Seed a cached section list for the scope.
	_, err := svc.ListSections(context.Background(), testKey)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/cache/"+testKey, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/cache/:scope")
	c.SetParamNames("scope")
	c.SetParamValues(testKey)

	require.NoError(t, h.invalidateCache(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Invalidated int `json:"invalidated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Invalidated)
}
