package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Port    int    `yaml:"port"`
	Root    string `yaml:"root"`
	Enabled bool   `yaml:"enabled"`
}

func TestUnmarshalKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root: /data\n"), 0644))

	cfg := sampleConfig{Port: 8080}
	require.NoError(t, Unmarshal(&cfg, path))
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/data", cfg.Root)
}

func TestUnmarshalRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bogus: 1\n"), 0644))

	cfg := sampleConfig{}
	assert.Error(t, Unmarshal(&cfg, path))
}

func TestUnmarshalEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	cfg := sampleConfig{Port: 1}
	require.NoError(t, Unmarshal(&cfg, path))
	assert.Equal(t, 1, cfg.Port)
}

func TestIsHTTP(t *testing.T) {
	assert.True(t, IsHTTP("http://example.com/a.png"))
	assert.True(t, IsHTTP("https://example.com/a.png"))
	assert.False(t, IsHTTP("/tmp/a.png"))
	assert.False(t, IsHTTP("ftp://example.com/a.png"))
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
}

func TestWriteFileAtomicAndMove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not linger")

	moved, err := MoveFile(path, filepath.Join(dir, "done"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "done", "a.bin"), moved)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	data, err := DownloadFile(context.Background(), srv.URL+"/ok", 100)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = DownloadFile(context.Background(), srv.URL+"/big", 5)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = DownloadFile(context.Background(), srv.URL+"/missing", 100)
	assert.Error(t, err)
}
