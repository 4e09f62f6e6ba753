package api

import (
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	cacheImmutable = "public, max-age=31536000, immutable"
	cacheNoCache   = "no-cache, must-revalidate"
	indexFile      = "index.html"
)

// StaticFileServer serves the built dashboard SPA. Paths that do not match
// a file fall back to index.html so client side routing works on reload.
type StaticFileServer struct {
	files fs.FS
}

// NewStaticFileServer serves files from dir. An empty dir disables the SPA.
func NewStaticFileServer(dir string) *StaticFileServer {
	if dir == "" {
		return nil
	}
	return &StaticFileServer{files: os.DirFS(dir)}
}

func newStaticFileServerFS(files fs.FS) *StaticFileServer {
	return &StaticFileServer{files: files}
}

// registerStaticRoutes mounts the SPA and its PWA files at the root. The
// manifest and service worker live at the root so the worker scope covers
// the whole application.
func (s *Server) registerStaticRoutes() {
	if s.staticServer == nil {
		return
	}

	s.echo.GET("/manifest.webmanifest", func(c echo.Context) error {
		return s.staticServer.handlePWAFile(c, "manifest.webmanifest")
	})
	s.echo.GET("/sw.js", func(c echo.Context) error {
		c.Response().Header().Set("Service-Worker-Allowed", "/")
		return s.staticServer.handlePWAFile(c, "sw.js")
	})
	s.echo.GET("/*", s.staticServer.handleSPA)
}

// handlePWAFile serves a fixed-name PWA file without long lived caching.
func (sfs *StaticFileServer) handlePWAFile(c echo.Context, name string) error {
	c.Response().Header().Set("Cache-Control", "no-cache")
	return sfs.serveFile(c, name)
}

func (sfs *StaticFileServer) handleSPA(c echo.Context) error {
	name := strings.TrimPrefix(path.Clean("/"+c.Param("*")), "/")
	if strings.HasPrefix(name, "api/") || name == "api" {
		return echo.ErrNotFound
	}
	if name == "" {
		name = indexFile
	}

	if info, err := fs.Stat(sfs.files, name); err != nil || info.IsDir() {
		// Missing hashed assets are real 404s; anything else is a client route.
		if isHashedAsset(name) {
			return echo.ErrNotFound
		}
		name = indexFile
	}
	return sfs.serveFile(c, name)
}

// serveFile writes name with a cache policy matching its kind. Content
// hashed bundles never change, everything else must be revalidated.
func (sfs *StaticFileServer) serveFile(c echo.Context, name string) error {
	f, err := sfs.files.Open(name)
	if err != nil {
		return echo.ErrNotFound
	}
	defer func() { _ = f.Close() }()

	h := c.Response().Header()
	if h.Get("Cache-Control") == "" {
		if isHashedAsset(name) {
			h.Set("Cache-Control", cacheImmutable)
		} else {
			h.Set("Cache-Control", cacheNoCache)
		}
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, contentType, f)
}

// isHashedAsset reports whether p is a bundler output under assets/ whose
// file name carries a content hash, e.g. assets/index-3f2a9c1b.js.
func isHashedAsset(p string) bool {
	if p == "" || strings.Contains(p, "..") {
		return false
	}
	dir, file := path.Split(p)
	if dir != "assets/" {
		return false
	}
	stem := strings.TrimSuffix(file, path.Ext(file))
	i := strings.LastIndexByte(stem, '-')
	return i > 0 && i < len(stem)-1
}
