package httpserver

import (
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// Files under assets/ carry a content hash in their name.
	hashedAssetsPrefix = "/assets/"
	immutableCache     = "public, max-age=31536000, immutable"
	revalidateCache    = "no-cache"
)

// registerFrontendHandlers serves the built admin console from distDir.
// Hashed assets are cached for a year; index.html and every client-side
// route are revalidated so a new deploy is picked up on the next load.
// Nothing is registered when distDir has no index.html.
func registerFrontendHandlers(mux *http.ServeMux, distDir string, log *slog.Logger) {
	distDir = strings.TrimSpace(distDir)
	if distDir == "" {
		return
	}
	indexPath := filepath.Join(distDir, "index.html")
	if _, err := os.Stat(indexPath); err != nil {
		log.Warn("frontend disabled", "dir", distDir, "error", err)
		return
	}

	files := http.FileServer(http.Dir(distDir))
	serveIndex := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", revalidateCache)
		http.ServeFile(w, r, indexPath)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		clean := path.Clean("/" + r.URL.Path)
		if clean == "/" || clean == "/index.html" {
			serveIndex(w, r)
			return
		}

		info, err := os.Stat(filepath.Join(distDir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))))
		exists := err == nil && !info.IsDir()
		if strings.HasPrefix(clean, hashedAssetsPrefix) {
			// A missing chunk from an older build must not be answered with HTML.
			if !exists {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Cache-Control", immutableCache)
			files.ServeHTTP(w, r)
			return
		}
		if exists {
			w.Header().Set("Cache-Control", revalidateCache)
			files.ServeHTTP(w, r)
			return
		}
		serveIndex(w, r)
	})
}
