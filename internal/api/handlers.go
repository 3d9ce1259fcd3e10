package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/starford/ntoes/internal/apperr"
	"github.com/starford/ntoes/internal/noteservice"
	"github.com/starford/ntoes/internal/syncer"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	if f, ok := syncer.AsFailure(err); ok {
		writeJSON(w, http.StatusBadGateway, SyncFailureResponse{
			Error:    err.Error(),
			FailedOp: f.Op,
			Output:   f.Output,
		})
		return
	}
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("note already exists"))
	case errors.Is(err, apperr.ErrInvalidTitle),
		errors.Is(err, apperr.ErrInvalidBaseDir),
		errors.Is(err, apperr.ErrOutsideBaseDir),
		errors.Is(err, apperr.ErrLineOutOfRange):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ShowTodo handles GET /todo.
//
//	@Summary		Scan the note tree and return the aggregated TODO view
//	@Tags			todo
//	@Produce		json
//	@Success		200	{object}	TodoResponse
//	@Security		BearerAuth
//	@Router			/todo [get]
func (h *Handler) ShowTodo(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ShowTodo(r.Context())
	if err != nil {
		writeError(w, "show todo", err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(view))
		return
	}
	writeJSON(w, http.StatusOK, TodoResponse{View: view})
}

// Scan handles POST /scan.
//
//	@Summary		Wake the background scan loop
//	@Tags			todo
//	@Success		202	"Scan requested"
//	@Security		BearerAuth
//	@Router			/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, _ *http.Request) {
	h.svc.RequestScan()
	w.WriteHeader(http.StatusAccepted)
}

// Sync handles POST /sync.
//
//	@Summary		Run one git sync cycle
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		502	{object}	SyncFailureResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sync(r.Context())
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		CommittedLocal: res.CommittedLocal,
		CommittedMerge: res.CommittedMerge,
		Conflicts:      res.Conflicts,
		ConflictFiles:  res.ConflictFiles,
		Pushed:         res.Pushed,
		LocalOnly:      res.LocalOnly,
		Output:         res.Output,
	})
}

// SyncHistory handles GET /sync/history.
//
//	@Summary		List recent sync runs
//	@Tags			sync
//	@Produce		json
//	@Param			limit	query		int	false	"Max runs"
//	@Success		200		{object}	SyncHistoryResponse
//	@Security		BearerAuth
//	@Router			/sync/history [get]
func (h *Handler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.SyncHistory(limit)
	if err != nil {
		writeError(w, "sync history", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncHistoryResponse{Runs: runs})
}

// CreateNote handles POST /notes.
//
//	@Summary		Create a dated note containing its heading
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	false	"Note title"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Title)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// NoteSaved handles POST /notes/saved.
//
//	@Summary		Report that an editor saved a note
//	@Tags			notes
//	@Accept			json
//	@Param			body	body	PathRequest	true	"Saved note"
//	@Success		204		"Scanned and synced"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	SyncFailureResponse
//	@Security		BearerAuth
//	@Router			/notes/saved [post]
func (h *Handler) NoteSaved(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.NoteSaved(r.Context(), req.Path); err != nil {
		writeError(w, "note saved", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleItem handles POST /notes/toggle.
//
//	@Summary		Toggle the TODO marker on one line of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ToggleRequest	true	"Line to toggle"
//	@Success		200		{object}	Toggled
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/toggle [post]
func (h *Handler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" || req.Line == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("path and line are required"))
		return
	}
	res, err := h.svc.ToggleItem(r.Context(), req.Path, *req.Line)
	if err != nil {
		writeError(w, "toggle item", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// NoteDir handles GET /notes/dir.
//
//	@Summary		Directory a note with the given title belongs in
//	@Tags			notes
//	@Produce		json
//	@Param			title	query		string	true	"Note title starting with YYYY-MM"
//	@Success		200		{object}	NoteDirResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/dir [get]
func (h *Handler) NoteDir(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'title' is required"))
		return
	}
	dir, err := h.svc.NoteDir(title)
	if err != nil {
		writeError(w, "note dir", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteDirResponse{Title: title, Dir: dir})
}

// BaseDir handles GET /base-dir.
//
//	@Summary		Current note tree root
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	BaseDirResponse
//	@Security		BearerAuth
//	@Router			/base-dir [get]
func (h *Handler) BaseDir(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BaseDirResponse{BaseDir: h.svc.BaseDir()})
}

// SetBaseDir handles PUT /base-dir.
//
//	@Summary		Switch the note tree root
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BaseDirRequest	true	"New root; ~ is expanded"
//	@Success		200		{object}	BaseDirResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/base-dir [put]
func (h *Handler) SetBaseDir(w http.ResponseWriter, r *http.Request) {
	var req BaseDirRequest
	if !decode(w, r, &req) {
		return
	}
	dir, err := h.svc.SetBaseDir(req.BaseDir)
	if err != nil {
		writeError(w, "set base dir", err)
		return
	}
	writeJSON(w, http.StatusOK, BaseDirResponse{BaseDir: dir})
}
