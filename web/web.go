// Package web embeds the playground page and its static files, so the
// server binary runs from any directory.
package web

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed templates/*.html
var templates embed.FS

//go:embed static
var static embed.FS

// Templates returns dir when it is set, else the embedded templates.
func Templates(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	sub, _ := fs.Sub(templates, "templates")
	return sub
}

// Static returns dir when it is set, else the embedded static files.
func Static(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	sub, _ := fs.Sub(static, "static")
	return sub
}
