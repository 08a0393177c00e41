// Package handler turns HTTP requests into service calls and service
// results into JSON.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (path params, query, JSON body)
//  2. Call the service
//  3. Write the response; errors go through writeError
//
// Handlers hold no rules of their own. "Only one program at a time" lives
// in service.RunService, "only the owner may edit" in SketchService.
package handler

import (
	"bytes"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

// PageInfo is what the playground template needs to know about the server.
type PageInfo struct {
	Title         string
	CanvasWidth   float64
	CanvasHeight  float64
	AuthEnabled   bool
	GitHubEnabled bool
}

// PlaygroundHandler renders the IDE page. Templates are parsed once.
type PlaygroundHandler struct {
	templates *template.Template
	info      PageInfo
	logger    *slog.Logger
}

// NewPlaygroundHandler parses base.html and playground.html from fsys.
// base.html has the page shell with a {{template "content" .}} slot;
// playground.html fills it.
func NewPlaygroundHandler(fsys fs.FS, info PageInfo, logger *slog.Logger) (*PlaygroundHandler, error) {
	tmpl, err := template.ParseFS(fsys, "base.html", "playground.html")
	if err != nil {
		return nil, err
	}
	return &PlaygroundHandler{templates: tmpl, info: info, logger: logger}, nil
}

// HandlePlayground serves GET /.
//
// The page is rendered into a buffer first so a template error becomes a
// clean 500 instead of half a page.
func (h *PlaygroundHandler) HandlePlayground(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "base", h.info); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
