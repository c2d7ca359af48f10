package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

// Album is one mirrored catalog record, unique per
// (source_key, section_id, external_id). The denormalized columns exist so
// listings can be filtered and sorted without touching the payload; the
// payload carries the full upstream record verbatim.
type Album struct {
	bun.BaseModel `bun:"table:mirrored_albums,alias:a"`

	ID           int64     `bun:",pk,autoincrement" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	SourceKey    string    `bun:",nullzero" json:"source_key"`
	SectionID    string    `bun:",nullzero" json:"section_id"`
	ExternalID   string    `bun:",nullzero" json:"external_id"`
	Title        string    `bun:",nullzero" json:"title"`
	TitleSort    string    `bun:",nullzero" json:"title_sort"`
	Artist       string    `json:"artist"`
	ArtistSort   string    `json:"artist_sort"`
	Year         *int      `json:"year"`
	Studio       *string   `json:"studio"`
	Genres       string    `json:"-"`
	GenresParsed []string  `bun:"-" json:"genres"`
	Payload      string    `json:"-"`
	PayloadRaw   json.RawMessage `bun:"-" json:"payload,omitempty"`
}

// MarshalGenres serializes GenresParsed into the Genres column.
func (a *Album) MarshalGenres() error {
	if a.GenresParsed == nil {
		a.GenresParsed = []string{}
	}
	data, err := json.Marshal(a.GenresParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	a.Genres = string(data)
	return nil
}

// UnmarshalGenres populates GenresParsed and PayloadRaw from the stored
// columns after a row is scanned.
func (a *Album) UnmarshalGenres() error {
	a.GenresParsed = []string{}
	if a.Genres != "" {
		if err := json.Unmarshal([]byte(a.Genres), &a.GenresParsed); err != nil {
			return errors.WithStack(err)
		}
	}
	if a.Payload != "" {
		a.PayloadRaw = json.RawMessage(a.Payload)
	}
	return nil
}
