package frontend

import (
	"embed"
	"net/http"
	"strings"
)

//go:embed web/*
var webFS embed.FS

// Handler serves the upload page mounted at basepath. Unknown paths fall back
// to index.html.
func Handler(basepath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := "web/" + strings.TrimPrefix(r.URL.Path, basepath)
		file, err := webFS.Open(path)
		if err != nil {
			http.ServeFileFS(w, r, webFS, "web/index.html")
			return
		}
		_ = file.Close()
		http.ServeFileFS(w, r, webFS, path)
	}
}
