// Package mirror owns the durable local copy of remote catalog records:
// idempotent batch upserts during a sync pass and filterable, sortable
// reads for the request path.
package mirror

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tonearmapp/tonearm/pkg/models"
	"github.com/tonearmapp/tonearm/pkg/remote"
	"github.com/uptrace/bun"
)

const (
	OrderByTitle  = "title"
	OrderByArtist = "artist"
)

type ListAlbumsOptions struct {
	SourceKey string
	SectionID string
	OrderBy   *string
	Genre     *string
	Year      *int
	Studio    *string
	Limit     *int
	Offset    *int

	includeTotal bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// NewAlbumRow denormalizes one fetched record into a mirror row. The same
// projection is used by the live read path so both tiers honor the same
// read contract.
func NewAlbumRow(key, sectionID string, album *remote.Album, now time.Time) (*models.Album, error) {
	row := &models.Album{
		CreatedAt:    now,
		UpdatedAt:    now,
		SourceKey:    key,
		SectionID:    sectionID,
		ExternalID:   album.RatingKey,
		Title:        album.Title,
		TitleSort:    album.SortTitle(),
		Artist:       album.ParentTitle,
		ArtistSort:   album.SortArtist(),
		GenresParsed: album.GenreTags(),
		Payload:      string(album.Raw),
		PayloadRaw:   album.Raw,
	}
	if album.Year != 0 {
		year := album.Year
		row.Year = &year
	}
	if album.Studio != "" {
		studio := album.Studio
		row.Studio = &studio
	}
	if err := row.MarshalGenres(); err != nil {
		return nil, errors.WithStack(err)
	}
	return row, nil
}

// UpsertAlbums writes one fetched page into the mirror. Every denormalized
// column and the payload are overwritten on conflict, so re-applying the
// same batch is a no-op and a re-sync never leaves a partially updated
// row behind.
func (svc *Service) UpsertAlbums(ctx context.Context, key, sectionID string, albums []remote.Album) error {
	if len(albums) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]*models.Album, 0, len(albums))
	for i := range albums {
		row, err := NewAlbumRow(key, sectionID, &albums[i], now)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	_, err := svc.db.
		NewInsert().
		Model(&rows).
		On("CONFLICT (source_key, section_id, external_id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Set("title = EXCLUDED.title").
		Set("title_sort = EXCLUDED.title_sort").
		Set("artist = EXCLUDED.artist").
		Set("artist_sort = EXCLUDED.artist_sort").
		Set("year = EXCLUDED.year").
		Set("studio = EXCLUDED.studio").
		Set("genres = EXCLUDED.genres").
		Set("payload = EXCLUDED.payload").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) ListAlbums(ctx context.Context, opts ListAlbumsOptions) ([]*models.Album, error) {
	albums, _, err := svc.listAlbumsWithTotal(ctx, opts)
	return albums, errors.WithStack(err)
}

func (svc *Service) ListAlbumsWithTotal(ctx context.Context, opts ListAlbumsOptions) ([]*models.Album, int, error) {
	opts.includeTotal = true
	return svc.listAlbumsWithTotal(ctx, opts)
}

func (svc *Service) listAlbumsWithTotal(ctx context.Context, opts ListAlbumsOptions) ([]*models.Album, int, error) {
	albums := []*models.Album{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&albums).
		Where("a.source_key = ?", opts.SourceKey).
		Where("a.section_id = ?", opts.SectionID)

	orderBy := OrderByTitle
	if opts.OrderBy != nil {
		orderBy = *opts.OrderBy
	}
	switch orderBy {
	case OrderByArtist:
		q = q.Order("a.artist_sort ASC", "a.title_sort ASC")
	default:
		q = q.Order("a.title_sort ASC")
	}

	if opts.Genre != nil {
		// Genres are stored as a flat JSON array of tag strings, so
		// membership is a json_each scan.
		q = q.Where("EXISTS (SELECT 1 FROM json_each(a.genres) WHERE json_each.value = ?)", *opts.Genre)
	}
	if opts.Year != nil {
		q = q.Where("a.year = ?", *opts.Year)
	}
	if opts.Studio != nil {
		q = q.Where("a.studio = ?", *opts.Studio)
	}

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	for _, album := range albums {
		if err := album.UnmarshalGenres(); err != nil {
			return nil, 0, errors.WithStack(err)
		}
	}

	return albums, total, nil
}

func (svc *Service) CountAlbums(ctx context.Context, key, sectionID string) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.Album)(nil)).
		Where("source_key = ?", key).
		Where("section_id = ?", sectionID).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
