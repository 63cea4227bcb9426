package filestorage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcut-studio/studio-server/internal/config"
)

func localStorage(t *testing.T) (*LocalFileStorage, string) {
	t.Helper()

	root := t.TempDir()
	storage, err := NewLocalFileStorage(&config.Config{
		AssetsDir: filepath.Join(root, "assets"),
		TempDir:   filepath.Join(root, "temp"),
		ServerURL: "http://localhost:8787/",
	})
	require.NoError(t, err)
	return storage, root
}

func TestLocalUploadReturnsFileURL(t *testing.T) {
	storage, root := localStorage(t)

	url, err := storage.Upload(NewFileInfo("abc123", ".png", []byte("image-bytes"), false))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8787/file/abc123.png", url)

	data, err := os.ReadFile(filepath.Join(root, "assets", "abc123.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestLocalUploadTempGoesToTempDir(t *testing.T) {
	storage, root := localStorage(t)

	_, err := storage.Upload(NewFileInfo("scratch", ".png", []byte("x"), true))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "temp", "scratch.png"))
	require.NoError(t, err)
}

func TestLocalGetFile(t *testing.T) {
	storage, _ := localStorage(t)

	_, err := storage.Upload(NewFileInfo("abc123", ".png", []byte("image-bytes"), false))
	require.NoError(t, err)

	info, err := storage.GetFile("abc123.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), info.Content)
	assert.Equal(t, ".png", info.Extension)
}

func TestLocalResolveFile(t *testing.T) {
	storage, root := localStorage(t)

	_, err := storage.Upload(NewFileInfo("abc123", ".png", []byte("x"), false))
	require.NoError(t, err)

	resolved, err := storage.ResolveFile("abc123.png", "", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "assets", "abc123.png"), resolved)

	_, err = storage.ResolveFile("missing.png", "", false)
	assert.Error(t, err)
}

func TestNewFileStorageDefaultsToLocal(t *testing.T) {
	storage, err := NewFileStorage(&config.Config{})
	require.NoError(t, err)
	assert.IsType(t, &LocalFileStorage{}, storage)

	_, err = NewFileStorage(&config.Config{Filesystem: "tape-drive"})
	assert.Error(t, err)
}
