// Package remote talks to Plex-style media servers: listing library
// sections and fetching album pages. It is the only package that performs
// upstream I/O; everything else consumes the Client interface.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/tonearmapp/tonearm/pkg/config"
	"golang.org/x/time/rate"
)

// typeAlbum is the record type id for albums in section listing requests.
const typeAlbum = 9

// Client fetches one section of the remote catalog, one page at a time.
type Client interface {
	ListSections(ctx context.Context) ([]Section, error)
	FetchPage(ctx context.Context, sectionID string, offset, limit int) ([]Album, error)
}

// HTTPClient is the production Client backed by a Plex-style HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPClient(cfg *config.Config, baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: cfg.RemoteTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RemoteRequestsPerSecond), 1),
	}
}

type mediaContainer struct {
	MediaContainer struct {
		Directory []Section         `json:"Directory"`
		Metadata  []json.RawMessage `json:"Metadata"`
	} `json:"MediaContainer"`
}

func (c *HTTPClient) ListSections(ctx context.Context) ([]Section, error) {
	container, err := c.get(ctx, "/library/sections", nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return container.MediaContainer.Directory, nil
}

func (c *HTTPClient) FetchPage(ctx context.Context, sectionID string, offset, limit int) ([]Album, error) {
	params := url.Values{}
	params.Set("type", strconv.Itoa(typeAlbum))
	params.Set("X-Plex-Container-Start", strconv.Itoa(offset))
	params.Set("X-Plex-Container-Size", strconv.Itoa(limit))

	container, err := c.get(ctx, fmt.Sprintf("/library/sections/%s/all", url.PathEscape(sectionID)), params)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	albums := make([]Album, 0, len(container.MediaContainer.Metadata))
	for _, raw := range container.MediaContainer.Metadata {
		album := Album{}
		if err := json.Unmarshal(raw, &album); err != nil {
			return nil, errors.Wrap(err, "failed to decode album record")
		}
		album.Raw = raw
		albums = append(albums, album)
	}

	return albums, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) (*mediaContainer, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Plex-Token", c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "%s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("remote server returned status %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	container := &mediaContainer{}
	if err := json.Unmarshal(body, container); err != nil {
		return nil, errors.Wrap(err, "failed to decode remote response")
	}

	return container, nil
}
