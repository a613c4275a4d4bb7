// Package web embeds the chat page template and its static assets.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed templates static
var assets embed.FS

// Templates returns the page templates rooted at templates/.
func Templates() fs.FS {
	sub, err := fs.Sub(assets, "templates")
	if err != nil {
		panic("web: failed to create templates filesystem: " + err.Error())
	}
	return sub
}

// StaticHandler serves the embedded static/ directory. Mount it with the
// URL prefix stripped.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic("web: failed to create static filesystem: " + err.Error())
	}
	return http.FileServer(http.FS(sub))
}
