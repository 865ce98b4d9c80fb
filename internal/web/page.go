package web

import (
	"net/http"
	"os"
	"path/filepath"
)

// IndexFile is the upload page inside the static directory
const IndexFile = "index.html"

// UploadPage serves the upload form from dir
func UploadPage(dir string) http.HandlerFunc {
	pagePath := filepath.Join(dir, IndexFile)

	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(pagePath); err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		http.ServeFile(w, r, pagePath)
	}
}
