// Package catalog is the read path. A section read resolves through three
// tiers: the durable mirror once a sync has completed, the in-process
// cache for repeated cold reads, and a live upstream fetch as the floor.
// Every read also nudges the scheduler so cold sources warm themselves up.
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/tonearmapp/tonearm/pkg/config"
	"github.com/tonearmapp/tonearm/pkg/errcodes"
	"github.com/tonearmapp/tonearm/pkg/memcache"
	"github.com/tonearmapp/tonearm/pkg/mirror"
	"github.com/tonearmapp/tonearm/pkg/models"
	"github.com/tonearmapp/tonearm/pkg/remote"
	"github.com/tonearmapp/tonearm/pkg/syncstatus"
	"github.com/uptrace/bun"
)

const (
	TierMirror = "mirror"
	TierCache  = "cache"
	TierLive   = "live"
)

type ReadSectionOptions struct {
	OrderBy *string
	Genre   *string
	Year    *int
	Studio  *string
	Limit   *int
	Offset  *int
}

// SectionPage is one page of a section listing, from whichever tier
// answered.
type SectionPage struct {
	Albums []*models.Album `json:"albums"`
	Total  int             `json:"total"`
	Tier   string          `json:"tier"`
}

// readParams is the cache fingerprint for a section read. Pointers are
// flattened to values so equivalent requests share an entry.
type readParams struct {
	SectionID string `json:"section_id"`
	OrderBy   string `json:"order_by"`
	Genre     string `json:"genre"`
	Year      int    `json:"year"`
	Studio    string `json:"studio"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

// Trigger is the scheduler surface the read path needs: fire-and-forget
// sync nudges. Satisfied by *scheduler.Scheduler.
type Trigger interface {
	TriggerIfNeeded(key, owner string)
	TriggerForced(key, owner string)
}

type Service struct {
	config *config.Config

	cache     *memcache.Cache
	registry  *remote.Registry
	scheduler Trigger

	statusService *syncstatus.Service
	mirrorService *mirror.Service
}

func NewService(cfg *config.Config, db *bun.DB, cache *memcache.Cache, registry *remote.Registry, sched Trigger) *Service {
	return &Service{
		config:        cfg,
		cache:         cache,
		registry:      registry,
		scheduler:     sched,
		statusService: syncstatus.NewService(db),
		mirrorService: mirror.NewService(db),
	}
}

// Sources returns the configured upstreams with their derived keys.
func (svc *Service) Sources() []*remote.Entry {
	return svc.registry.Entries()
}

// SyncStatus returns the stored sync status for the key.
func (svc *Service) SyncStatus(ctx context.Context, key string) (*models.SyncStatus, error) {
	if _, ok := svc.registry.Lookup(key); !ok {
		return nil, errcodes.NotFound("Source")
	}
	return svc.statusService.Retrieve(ctx, key)
}

// TriggerSync forces a background re-sync for the key. It returns as soon
// as the run is handed to the scheduler.
func (svc *Service) TriggerSync(key, owner string) error {
	if _, ok := svc.registry.Lookup(key); !ok {
		return errcodes.NotFound("Source")
	}
	svc.scheduler.TriggerForced(key, owner)
	return nil
}

// InvalidateCache drops every cached entry for the scope. Used when a
// source's upstream credentials or address change.
func (svc *Service) InvalidateCache(scope string) int {
	return svc.cache.InvalidateScope(scope)
}

// ListSections returns the remote section list, served from cache when
// possible. Sections are never mirrored; the mirror only holds albums.
func (svc *Service) ListSections(ctx context.Context, key string) ([]remote.Section, error) {
	entry, ok := svc.registry.Lookup(key)
	if !ok {
		return nil, errcodes.NotFound("Source")
	}

	sections := []remote.Section{}
	if svc.cache.Get(key, memcache.OpListSections, nil, &sections) {
		return sections, nil
	}

	sections, err := entry.Client.ListSections(ctx)
	if err != nil {
		return nil, errcodes.UpstreamUnavailable("Couldn't list sections from the remote server.")
	}

	svc.cache.Set(key, memcache.OpListSections, nil, sections)
	return sections, nil
}

// ReadSection resolves one page of a section listing. Once a full sync has
// completed the mirror answers every read; before that, repeated reads are
// served from the cache; a cold cache falls through to a live upstream
// fetch. Any cache trouble is treated as a miss, never an error. Every
// tier also fires an opportunistic sync trigger so the cold path retires
// itself.
func (svc *Service) ReadSection(ctx context.Context, key, sectionID string, opts ReadSectionOptions) (*SectionPage, error) {
	entry, ok := svc.registry.Lookup(key)
	if !ok {
		return nil, errcodes.NotFound("Source")
	}

	completed, err := svc.statusService.HasCompletedSync(ctx, key)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if completed {
		svc.scheduler.TriggerIfNeeded(key, "read")

		albums, total, err := svc.mirrorService.ListAlbumsWithTotal(ctx, mirror.ListAlbumsOptions{
			SourceKey: key,
			SectionID: sectionID,
			OrderBy:   opts.OrderBy,
			Genre:     opts.Genre,
			Year:      opts.Year,
			Studio:    opts.Studio,
			Limit:     opts.Limit,
			Offset:    opts.Offset,
		})
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return &SectionPage{Albums: albums, Total: total, Tier: TierMirror}, nil
	}

	params := newReadParams(sectionID, opts)

	page := &SectionPage{}
	if svc.cache.Get(key, memcache.OpReadSection, params, page) {
		svc.scheduler.TriggerIfNeeded(key, "read")
		page.Tier = TierCache
		return page, nil
	}

	page, err = svc.readLive(ctx, entry, key, sectionID, opts)
	if err != nil {
		return nil, err
	}

	svc.cache.Set(key, memcache.OpReadSection, params, page)
	svc.scheduler.TriggerIfNeeded(key, "read")
	return page, nil
}

// readLive fetches the whole section from the upstream and applies the
// same filter, sort, and pagination contract the mirror query honors,
// just in memory.
func (svc *Service) readLive(ctx context.Context, entry *remote.Entry, key, sectionID string, opts ReadSectionOptions) (*SectionPage, error) {
	now := time.Now()
	rows := []*models.Album{}

	pageSize := svc.config.SyncPageSize
	for offset := 0; ; offset += pageSize {
		fetched, err := entry.Client.FetchPage(ctx, sectionID, offset, pageSize)
		if err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				return nil, errcodes.NotFound("Section")
			}
			return nil, errcodes.UpstreamUnavailable("Couldn't fetch the section from the remote server.")
		}
		if len(fetched) == 0 {
			break
		}
		for i := range fetched {
			row, err := mirror.NewAlbumRow(key, sectionID, &fetched[i], now)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		if len(fetched) < pageSize {
			break
		}
	}

	rows = filterAlbums(rows, opts)
	sortAlbums(rows, opts.OrderBy)
	total := len(rows)
	rows = paginateAlbums(rows, opts.Limit, opts.Offset)

	return &SectionPage{Albums: rows, Total: total, Tier: TierLive}, nil
}

func newReadParams(sectionID string, opts ReadSectionOptions) readParams {
	params := readParams{SectionID: sectionID}
	if opts.OrderBy != nil {
		params.OrderBy = *opts.OrderBy
	}
	if opts.Genre != nil {
		params.Genre = *opts.Genre
	}
	if opts.Year != nil {
		params.Year = *opts.Year
	}
	if opts.Studio != nil {
		params.Studio = *opts.Studio
	}
	if opts.Limit != nil {
		params.Limit = *opts.Limit
	}
	if opts.Offset != nil {
		params.Offset = *opts.Offset
	}
	return params
}

func filterAlbums(albums []*models.Album, opts ReadSectionOptions) []*models.Album {
	filtered := make([]*models.Album, 0, len(albums))
	for _, album := range albums {
		if opts.Genre != nil && !containsGenre(album.GenresParsed, *opts.Genre) {
			continue
		}
		if opts.Year != nil && (album.Year == nil || *album.Year != *opts.Year) {
			continue
		}
		if opts.Studio != nil && (album.Studio == nil || *album.Studio != *opts.Studio) {
			continue
		}
		filtered = append(filtered, album)
	}
	return filtered
}

func containsGenre(genres []string, genre string) bool {
	for _, g := range genres {
		if g == genre {
			return true
		}
	}
	return false
}

func sortAlbums(albums []*models.Album, orderBy *string) {
	byArtist := orderBy != nil && *orderBy == mirror.OrderByArtist
	sort.SliceStable(albums, func(i, j int) bool {
		if byArtist {
			if albums[i].ArtistSort != albums[j].ArtistSort {
				return albums[i].ArtistSort < albums[j].ArtistSort
			}
		}
		return albums[i].TitleSort < albums[j].TitleSort
	})
}

func paginateAlbums(albums []*models.Album, limit, offset *int) []*models.Album {
	start := 0
	if offset != nil {
		start = *offset
	}
	if start >= len(albums) {
		return []*models.Album{}
	}
	end := len(albums)
	if limit != nil && start+*limit < end {
		end = start + *limit
	}
	return albums[start:end]
}
