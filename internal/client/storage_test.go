package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTokens is an in-memory TokenStore for tests.
type memTokens struct {
	mu    sync.Mutex
	token string
}

func (m *memTokens) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *memTokens) SetToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *memTokens) ClearToken(context.Context) error {
	return m.SetToken(context.Background(), "")
}

func TestCheckAuthWithValidToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/yandex/check", r.URL.Path)
		assert.Equal(t, "tok-1", r.URL.Query().Get("token"))
		fmt.Fprint(w, `{"authenticated": true}`)
	}))
	defer server.Close()

	tokens := &memTokens{token: "tok-1"}
	c := NewStorageClient(server.URL, nil, tokens)

	ok, err := c.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tokens.token, "valid token stays stored")
}

func TestCheckAuthClearsInvalidTokenAndFallsBack(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Query().Get("token"))
		if r.URL.Query().Get("token") != "" {
			fmt.Fprint(w, `{"authenticated": false}`)
			return
		}
		fmt.Fprint(w, `{"authenticated": true, "from_env": true}`)
	}))
	defer server.Close()

	tokens := &memTokens{token: "stale"}
	c := NewStorageClient(server.URL, nil, tokens)

	ok, err := c.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "server-side default still authenticates")
	assert.Empty(t, tokens.token, "stale token is dropped")
	assert.Equal(t, []string{"stale", ""}, calls)
}

func TestCheckAuthNoTokenNoFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"authenticated": false}`)
	}))
	defer server.Close()

	c := NewStorageClient(server.URL, nil, nil)
	ok, err := c.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDownloadFileEmptyBodyIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewStorageClient(server.URL, nil, nil)
	_, err := c.DownloadFile(context.Background(), "/Товары/a.jpg")

	var derr *DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "/Товары/a.jpg", derr.Path)
	assert.Contains(t, derr.Message, "empty")
}

func TestDownloadFileSurfacesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "resource not found"}`)
	}))
	defer server.Close()

	c := NewStorageClient(server.URL, nil, nil)
	_, err := c.DownloadFile(context.Background(), "/missing.jpg")

	var derr *DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Message, "resource not found")
}

func TestUploadFileSendsPathAndToken(t *testing.T) {
	var gotPath, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/yandex/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotPath = r.FormValue("path")
		gotToken = r.FormValue("token")

		_, _, err := r.FormFile("file")
		require.NoError(t, err)

		fmt.Fprint(w, `{"success": true, "path": "/dest/a.png"}`)
	}))
	defer server.Close()

	c := NewStorageClient(server.URL, nil, &memTokens{token: "tok"})
	result, err := c.UploadFile(context.Background(), "/dest/a.png", NewArtifact([]byte("bytes"), "image/png"))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "/dest/a.png", gotPath)
	assert.Equal(t, "tok", gotToken)
}

func TestCreateFolderReportsExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/yandex/create-folder", r.URL.Path)
		assert.Equal(t, "/Товары/Обработанные", r.URL.Query().Get("path"))
		fmt.Fprint(w, `{"success": true, "path": "/Товары/Обработанные", "exists": true}`)
	}))
	defer server.Close()

	c := NewStorageClient(server.URL, nil, nil)
	result, err := c.CreateFolder(context.Background(), "/Товары/Обработанные")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.Exists)
}

func TestCreateFolderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"detail": "disk unavailable"}`)
	}))
	defer server.Close()

	c := NewStorageClient(server.URL, nil, nil)
	_, err := c.CreateFolder(context.Background(), "/x")

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Contains(t, serr.Message, "disk unavailable")
}

func TestListStructureBuildsNodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/yandex/structure", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("lazy"))
		fmt.Fprint(w, `{"structure": [
			{"name": "Товары", "path": "/Товары", "type": "dir", "has_children": true},
			{"name": "a.jpg", "path": "/a.jpg", "type": "file", "mime_type": "image/jpeg", "size": 42}
		]}`)
	}))
	defer server.Close()

	c := NewStorageClient(server.URL, nil, nil)
	nodes, err := c.ListStructure(context.Background(), "/", true)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.True(t, nodes[0].IsDir)
	assert.True(t, nodes[0].HasChildren)
	assert.Equal(t, NodeUnloaded, nodes[0].State)

	assert.False(t, nodes[1].IsDir)
	assert.Equal(t, NodeLoaded, nodes[1].State, "files have nothing to load")
	assert.Equal(t, "image/jpeg", nodes[1].MIME)
	assert.EqualValues(t, 42, nodes[1].Size)
}
