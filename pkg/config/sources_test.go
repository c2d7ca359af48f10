package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSourcesFile_Missing(t *testing.T) {
	sources, err := loadSourcesFile(filepath.Join(t.TempDir(), "sources.json"))
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestLoadSourcesFile_NormalizesURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	data := `[
		{"name": "living room", "url": "http://10.0.0.5:32400/", "token": "abc"},
		{"name": "office", "url": "http://10.0.0.6:32400", "token": "def"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	sources, err := loadSourcesFile(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "http://10.0.0.5:32400", sources[0].URL)
	assert.Equal(t, "http://10.0.0.6:32400", sources[1].URL)
}

func TestLoadSourcesFile_MissingURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "broken"}]`), 0644))

	_, err := loadSourcesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestNormalizeSourceURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.5:32400", NormalizeSourceURL("http://10.0.0.5:32400/"))
	assert.Equal(t, "http://10.0.0.5:32400", NormalizeSourceURL(" http://10.0.0.5:32400 "))
	assert.Equal(t, "http://10.0.0.5:32400", NormalizeSourceURL("http://10.0.0.5:32400"))
}
