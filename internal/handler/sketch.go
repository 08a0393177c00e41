package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/livecanvas/internal/auth"
	"github.com/sakif/livecanvas/internal/service"
)

// SketchHandler serves saved sketches. Reads are public; the router puts
// writes behind auth.RequireAuth.
type SketchHandler struct {
	sketches *service.SketchService
	logger   *slog.Logger
}

func NewSketchHandler(sketches *service.SketchService, logger *slog.Logger) *SketchHandler {
	return &SketchHandler{sketches: sketches, logger: logger}
}

type sketchRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// HandleList pages through sketches, newest first.
//
// HTTP: GET /api/sketches?limit=20&offset=0&mine=1
func (h *SketchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	userID := ""
	if mine, _ := strconv.ParseBool(r.URL.Query().Get("mine")); mine {
		userID, _ = auth.UserIDFromContext(r.Context())
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "sign in to see your sketches"})
			return
		}
	}

	sketches, err := h.sketches.List(r.Context(), limit, offset, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sketches)
}

// HandleGet loads one sketch into the editor.
//
// HTTP: GET /api/sketches/{id}
func (h *SketchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sketch, err := h.sketches.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sketch)
}

// HandleCreate saves a new sketch, owned by the signed-in learner.
//
// HTTP: POST /api/sketches  {"name", "code", "description"}  ->  201
func (h *SketchHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req sketchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	sketch, err := h.sketches.Create(r.Context(), req.Name, req.Code, req.Description, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/sketches/"+sketch.ID)
	writeJSON(w, http.StatusCreated, sketch)
}

// HandleUpdate replaces a sketch's code. Only the owner may.
//
// HTTP: PUT /api/sketches/{id}
func (h *SketchHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req sketchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	sketch, err := h.sketches.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Code, req.Description, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sketch)
}

// HandleDelete removes a sketch. Its run history stays.
//
// HTTP: DELETE /api/sketches/{id}  ->  204
func (h *SketchHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.sketches.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
