package frontend

import (
	"net/http"
	"os"
	"path/filepath"
)

// FromDir serves the dashboard from dir, or returns nil when dir has no
// index.html.
func FromDir(dir string) http.Handler {
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		return nil
	}
	return http.FileServer(http.Dir(dir))
}
