package remote

import (
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// ErrNotFound is returned when the remote server reports that a resource
// doesn't exist, as opposed to being temporarily unreachable.
var ErrNotFound = errors.New("not found on remote server")

// Section is one top-level grouping in the remote catalog.
type Section struct {
	ID    string `json:"key"`
	Kind  string `json:"type"`
	Title string `json:"title"`
}

// KindMusic is the section kind for music libraries. Plex-style servers
// report music sections as "artist".
const KindMusic = "artist"

// Tag is one entry in the remote server's nested tag arrays
// (genres, styles, moods all share this shape).
type Tag struct {
	Tag string `json:"tag"`
}

// Album is one album record as fetched from the remote catalog. Raw holds
// the record exactly as the server sent it, so the mirror can pass it
// through to clients that need more than the denormalized fields.
type Album struct {
	RatingKey       string `json:"ratingKey"`
	Title           string `json:"title"`
	TitleSort       string `json:"titleSort"`
	ParentTitle     string `json:"parentTitle"`
	ParentTitleSort string `json:"parentTitleSort"`
	Year            int    `json:"year"`
	Studio          string `json:"studio"`
	Genres          []Tag  `json:"Genre"`

	Raw json.RawMessage `json:"-"`
}

// GenreTags flattens the nested genre objects into plain strings.
func (a *Album) GenreTags() []string {
	tags := make([]string, 0, len(a.Genres))
	for _, g := range a.Genres {
		if g.Tag != "" {
			tags = append(tags, g.Tag)
		}
	}
	return tags
}

// SortTitle returns the explicit sort title, falling back to the display
// title when the server doesn't provide one.
func (a *Album) SortTitle() string {
	if a.TitleSort != "" {
		return a.TitleSort
	}
	return a.Title
}

// SortArtist returns the explicit artist sort name, falling back to the
// display name.
func (a *Album) SortArtist() string {
	if a.ParentTitleSort != "" {
		return a.ParentTitleSort
	}
	return a.ParentTitle
}
