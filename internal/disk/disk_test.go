package disk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcut-studio/studio-server/internal/config"
	"github.com/clearcut-studio/studio-server/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.InitLogger(&config.Config{Environment: "test"}); err != nil {
		panic(err)
	}
	m.Run()
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(server.Client())
	c.BaseURL = server.URL
	return c
}

func TestListSendsTokenAndLimit(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resources", r.URL.Path)
		assert.Equal(t, "OAuth tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/Товары", r.URL.Query().Get("path"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))

		fmt.Fprint(w, `{
			"name": "Товары", "path": "/Товары", "type": "dir",
			"_embedded": {"items": [
				{"name": "shoes", "path": "/Товары/shoes", "type": "dir"},
				{"name": "a.jpg", "path": "/Товары/a.jpg", "type": "file", "mime_type": "image/jpeg"}
			], "total": 2}
		}`)
	}))

	res, err := c.List(context.Background(), "tok", "/Товары", 1000)
	require.NoError(t, err)

	assert.True(t, res.IsDir())
	require.NotNil(t, res.Embedded)
	require.Len(t, res.Embedded.Items, 2)
	assert.True(t, res.Embedded.Items[0].IsDir())
	assert.Equal(t, "image/jpeg", res.Embedded.Items[1].MimeType)
}

func TestDownloadFollowsLink(t *testing.T) {
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/resources/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/a.jpg", r.URL.Query().Get("path"))
		fmt.Fprintf(w, `{"href": %q}`, base+"/content")
	})
	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OAuth tok", r.Header.Get("Authorization"))
		w.Write([]byte("file-bytes"))
	})

	c := testClient(t, mux)
	base = c.BaseURL

	body, err := c.Download(context.Background(), "tok", "/a.jpg")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("file-bytes"), data)
}

func TestUploadPutsToLink(t *testing.T) {
	var uploaded []byte
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/resources/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("overwrite"))
		fmt.Fprintf(w, `{"href": %q}`, base+"/put")
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var err error
		uploaded, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusCreated)
	})

	c := testClient(t, mux)
	base = c.BaseURL

	require.NoError(t, c.Upload(context.Background(), "tok", "/dest.png", strings.NewReader("payload")))
	assert.Equal(t, []byte("payload"), uploaded)
}

func TestCreateFolderConflictMeansExists(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error": "DiskPathPointsToExistentDirectoryError", "description": "folder exists"}`)
	}))

	exists, err := c.CreateFolder(context.Background(), "tok", "/Товары/Обработанные")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestErrorsCarryCodeAndStatus(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "UnauthorizedError", "description": "bad token"}`)
	}))

	_, err := c.AccountInfo(context.Background(), "bad")

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, http.StatusUnauthorized, derr.StatusCode)
	assert.Equal(t, "UnauthorizedError", derr.Code)
	assert.Contains(t, derr.Error(), "bad token")
	assert.False(t, derr.IsConflict())
}

func TestPublicListOmitsAuthorization(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/public/resources", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "https://disk.example.com/d/AbC123", r.URL.Query().Get("public_key"))
		fmt.Fprint(w, `{"name": "shared", "path": "/", "type": "dir"}`)
	}))

	res, err := c.PublicList(context.Background(), "https://disk.example.com/d/AbC123", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "shared", res.Name)
}
