package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/auth"
	"github.com/sakif/livecanvas/internal/canvas"
	"github.com/sakif/livecanvas/internal/compiler"
	"github.com/sakif/livecanvas/internal/service"
)

// maxWait caps GET /api/run/{id}?wait=1.
const maxWait = 30 * time.Second

// Checker compiles without running. *executor.Service implements it.
type Checker interface {
	Compile(src string) (*compiler.Result, error)
}

// SceneReader copies the canvas. *session.Session implements it.
type SceneReader interface {
	Snapshot() (canvas.Snapshot, error)
}

// RunHandler is the Run and Stop buttons plus what the page needs to show
// about runs.
type RunHandler struct {
	runs    *service.RunService
	checker Checker
	scene   SceneReader
	logger  *slog.Logger
}

func NewRunHandler(runs *service.RunService, checker Checker, scene SceneReader, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, checker: checker, scene: scene, logger: logger}
}

type runRequest struct {
	Code     string `json:"code"`
	SketchID string `json:"sketchId,omitempty"`
}

// HandleStart starts a program. The response only says it started; the
// outcome arrives over the websocket (or GET /api/run/{id}?wait=1).
//
// HTTP: POST /api/run  {"code": "...", "sketchId": "..."}  ->  202 {"runId": "..."}
func (h *RunHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	ctx := service.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
	id, err := h.runs.Start(ctx, service.StartRequest{Code: req.Code, SketchID: req.SketchID, UserID: userID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": id})
}

// HandleStop asks the running program to stop.
//
// HTTP: POST /api/stop  ->  202 {"runId": "..."}, or 409 when idle
func (h *RunHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	id, err := h.runs.Stop()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": id})
}

// HandleActive reports the running program, or {"state":"idle"}.
//
// HTTP: GET /api/run
func (h *RunHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	st, ok := h.runs.Active()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"state": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleStatus reports one run. With ?wait=1 it blocks until the run has
// finished, for scripts and tests that have no websocket.
//
// HTTP: GET /api/run/{id}[?wait=1]
func (h *RunHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), maxWait)
		defer cancel()
		st, err := h.runs.Wait(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				// Still running; report that instead of an error.
				st, err = h.runs.Status(id)
			}
			if err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, st)
		return
	}

	st, err := h.runs.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleHistory lists recorded runs, newest first. ?mine=1 narrows to the
// signed-in learner.
//
// HTTP: GET /api/runs?limit=20&offset=0&mine=1
func (h *RunHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	userID := ""
	if mine, _ := strconv.ParseBool(r.URL.Query().Get("mine")); mine {
		id, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "sign in to see your runs"})
			return
		}
		userID = id
	}

	runs, err := h.runs.Recent(r.Context(), limit, offset, userID)
	if err != nil {
		h.logger.Error("listing runs", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleCheck compiles without running and returns the diagnostics.
//
// HTTP: POST /api/check  {"code": "..."}  ->  {"ok": bool, "diagnostics": [...]}
func (h *RunHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Code) > service.MaxCodeLength {
		writeError(w, apperror.ValidationFailed("code", "code is too long"))
		return
	}

	res, err := h.checker.Compile(req.Code)
	if err != nil {
		h.logger.Error("compiling for check", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	diags := res.Diagnostics
	if diags == nil {
		diags = []compiler.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": res.Success, "diagnostics": diags})
}

// HandleSVG renders the current canvas.
//
// HTTP: GET /api/canvas.svg
func (h *RunHandler) HandleSVG(w http.ResponseWriter, r *http.Request) {
	snap, err := h.scene.Snapshot()
	if err != nil {
		h.logger.Error("reading scene", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := canvas.WriteSVG(&buf, snap); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
