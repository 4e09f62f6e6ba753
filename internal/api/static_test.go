package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/logger"
)

// TestIsHashedAsset verifies the helper identifies content hashed bundles.
func TestIsHashedAsset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "hashed JS bundle", path: "assets/index-abc123.js", want: true},
		{name: "hashed CSS bundle", path: "assets/style-def456.css", want: true},
		{name: "index page", path: "index.html", want: false},
		{name: "unhashed asset", path: "assets/logo.svg", want: false},
		{name: "trailing dash", path: "assets/index-.js", want: false},
		{name: "nested directory", path: "assets/fonts/inter-400.woff2", want: false},
		{name: "outside assets", path: "static/index-abc123.js", want: false},
		{name: "empty path", path: "", want: false},
		{name: "path traversal attempt", path: "assets/../secrets/key-abc.pem", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isHashedAsset(tt.path), "isHashedAsset(%q)", tt.path)
		})
	}
}

func newStaticEcho(t *testing.T) *echo.Echo {
	t.Helper()
	s := &Server{
		echo:     echo.New(),
		settings: testSettings(),
		logger:   logger.NewNop(),
		staticServer: newStaticFileServerFS(fstest.MapFS{
			"index.html":             &fstest.MapFile{Data: []byte(`<!doctype html><div id="root"></div>`)},
			"manifest.webmanifest":   &fstest.MapFile{Data: []byte(`{"name":"Velociti"}`)},
			"sw.js":                  &fstest.MapFile{Data: []byte(`self.addEventListener("fetch",()=>{})`)},
			"assets/index-abc123.js": &fstest.MapFile{Data: []byte(`console.log("app")`)},
		}),
	}
	s.echo.HTTPErrorHandler = s.httpErrorHandler
	s.registerStaticRoutes()
	return s.echo
}

// TestStaticRoutes verifies SPA fallback, PWA files and cache headers.
func TestStaticRoutes(t *testing.T) {
	t.Parallel()

	e := newStaticEcho(t)
	tests := []struct {
		name             string
		path             string
		wantStatus       int
		wantBody         string
		wantCacheControl string
	}{
		{
			name:             "root serves index",
			path:             "/",
			wantStatus:       http.StatusOK,
			wantBody:         `<div id="root">`,
			wantCacheControl: cacheNoCache,
		},
		{
			name:             "client route falls back to index",
			path:             "/alerts/42",
			wantStatus:       http.StatusOK,
			wantBody:         `<div id="root">`,
			wantCacheControl: cacheNoCache,
		},
		{
			name:             "hashed bundle is immutable",
			path:             "/assets/index-abc123.js",
			wantStatus:       http.StatusOK,
			wantBody:         `console.log`,
			wantCacheControl: cacheImmutable,
		},
		{
			name:       "missing hashed bundle is 404",
			path:       "/assets/index-ffffff.js",
			wantStatus: http.StatusNotFound,
		},
		{
			name:             "manifest is not cached",
			path:             "/manifest.webmanifest",
			wantStatus:       http.StatusOK,
			wantBody:         `Velociti`,
			wantCacheControl: "no-cache",
		},
		{
			name:       "api paths never fall back",
			path:       "/api/unknown",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			if tt.wantCacheControl != "" {
				assert.Equal(t, tt.wantCacheControl, rec.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestServiceWorkerScopeHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newStaticEcho(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sw.js", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Service-Worker-Allowed"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
}

func TestNewStaticFileServer_EmptyDirDisables(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewStaticFileServer(""))
}
