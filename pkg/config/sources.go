package config

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Source is one upstream media server that should be mirrored locally.
type Source struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Token string `json:"token"`
}

func sourcesFilePath() string {
	configDir := os.Getenv("CONFIG_DIRECTORY")
	if configDir == "" {
		configDir = "/config"
	}

	return filepath.Join(configDir, "sources.json")
}

// LoadSources reads the configured upstream sources from the config
// directory. A missing file is not an error; it just means no sources are
// configured yet.
func LoadSources() ([]Source, error) {
	return loadSourcesFile(sourcesFilePath())
}

func loadSourcesFile(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Source{}, nil
		}
		return nil, errors.WithStack(err)
	}

	sources := []Source{}
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, errors.WithStack(err)
	}

	for i := range sources {
		if sources[i].URL == "" {
			return nil, errors.Errorf("source %q has no url", sources[i].Name)
		}
		// Mirror keys are derived from the exact URL string, so normalize
		// here to keep "host:port" and "host:port/" from producing two
		// separate mirrors.
		sources[i].URL = NormalizeSourceURL(sources[i].URL)
	}

	return sources, nil
}

// NormalizeSourceURL canonicalizes a source base URL before key derivation.
// Key derivation itself hashes the exact bytes it is given.
func NormalizeSourceURL(rawURL string) string {
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}
