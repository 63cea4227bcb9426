package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcut-studio/studio-server/internal/app"
	"github.com/clearcut-studio/studio-server/internal/config"
	"github.com/clearcut-studio/studio-server/internal/providers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type echoProvider struct {
	output []byte
	err    error
}

func (p echoProvider) Name() string { return "fake" }

func (p echoProvider) Remove(context.Context, []byte, string, string) ([]byte, error) {
	return p.output, p.err
}

func testApp(t *testing.T, registry *providers.Registry) *app.App {
	t.Helper()

	a, err := app.NewApp(&config.Config{Environment: "test"})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	a.Providers = registry
	return a
}

func testRouter(a *app.App, route string, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.POST(route, func(c *gin.Context) {
		c.Set("app", a)
		handler(c)
	})
	return r
}

type form struct {
	files  map[string][]byte
	fields map[string]string
}

func (f form) request(t *testing.T, target string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, data := range f.files {
		part, err := writer.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for name, value := range f.fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func smallPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for x := 0; x < 12; x++ {
		for y := 0; y < 12; y++ {
			img.Set(x, y, color.RGBA{G: 255, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func detailOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var payload struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload.Detail
}

func TestProcessImageReturnsCutout(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register(providers.Config{Name: "fake", KeyOptional: true}, echoProvider{output: []byte("cutout-bytes")})

	router := testRouter(testApp(t, registry), "/api/process", ProcessImage)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form{
		files:  map[string][]byte{"image": smallPNG(t)},
		fields: map[string]string{"model": "fake"},
	}.request(t, "/api/process"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte("cutout-bytes"), w.Body.Bytes())
}

func TestProcessImageValidation(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register(providers.Config{Name: "locked", EnvVar: "LOCKED_API_TEST_KEY"}, echoProvider{})

	a := testApp(t, registry)
	router := testRouter(a, "/api/process", ProcessImage)
	t.Setenv("LOCKED_API_TEST_KEY", "")

	cases := []struct {
		name   string
		form   form
		detail string
	}{
		{
			name:   "missing image",
			form:   form{fields: map[string]string{"model": "locked"}},
			detail: "image file is required",
		},
		{
			name:   "missing model",
			form:   form{files: map[string][]byte{"image": smallPNG(t)}},
			detail: "model is required",
		},
		{
			name: "unknown model",
			form: form{
				files:  map[string][]byte{"image": smallPNG(t)},
				fields: map[string]string{"model": "nope"},
			},
			detail: `unknown model "nope"`,
		},
		{
			name: "missing key",
			form: form{
				files:  map[string][]byte{"image": smallPNG(t)},
				fields: map[string]string{"model": "locked"},
			},
			detail: `apiKey is required for model "locked"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tc.form.request(t, "/api/process"))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.detail, detailOf(t, w))
		})
	}
}

func TestProcessImageProviderFailure(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register(providers.Config{Name: "fake", KeyOptional: true}, echoProvider{err: errors.New("vendor down")})

	router := testRouter(testApp(t, registry), "/api/process", ProcessImage)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form{
		files:  map[string][]byte{"image": smallPNG(t)},
		fields: map[string]string{"model": "fake"},
	}.request(t, "/api/process"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, detailOf(t, w), "vendor down")
}

func TestPlaceTemplateComposites(t *testing.T) {
	router := testRouter(testApp(t, providers.NewRegistry()), "/api/place-template", PlaceTemplate)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form{
		files:  map[string][]byte{"image": smallPNG(t)},
		fields: map[string]string{"width": "640", "height": "480"},
	}.request(t, "/api/place-template"))

	require.Equal(t, http.StatusOK, w.Code)

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())
}

func TestPlaceTemplateRejectsGarbage(t *testing.T) {
	router := testRouter(testApp(t, providers.NewRegistry()), "/api/place-template", PlaceTemplate)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form{
		files: map[string][]byte{"image": []byte("not an image")},
	}.request(t, "/api/place-template"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid image data", detailOf(t, w))
}

func TestPlaceTemplateIgnoresBrokenTemplate(t *testing.T) {
	router := testRouter(testApp(t, providers.NewRegistry()), "/api/place-template", PlaceTemplate)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form{
		files: map[string][]byte{
			"image":        smallPNG(t),
			"templateFile": []byte("garbage template"),
		},
		fields: map[string]string{"width": "200", "height": "200"},
	}.request(t, "/api/place-template"))

	require.Equal(t, http.StatusOK, w.Code, "a broken template falls back to the plain canvas")
}

func TestBatchProcessFoldersValidation(t *testing.T) {
	router := testRouter(testApp(t, providers.NewRegistry()), "/api/batch-process-folders", BatchProcessFolders)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form{fields: map[string]string{"model": "fake"}}.request(t, "/api/batch-process-folders"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "base_path is required", detailOf(t, w))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, form{fields: map[string]string{"base_path": "/Товары"}}.request(t, "/api/batch-process-folders"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "model is required", detailOf(t, w))
}
