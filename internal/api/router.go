package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ntoes/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Aggregated view and background work.
	r.Get("/todo", h.ShowTodo)
	r.Post("/scan", h.Scan)
	r.Post("/sync", h.Sync)
	r.Get("/sync/history", h.SyncHistory)

	// Note commands.
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/saved", h.NoteSaved)
	r.Post("/notes/toggle", h.ToggleItem)
	r.Get("/notes/dir", h.NoteDir)

	// Settings.
	r.Get("/base-dir", h.BaseDir)
	r.Put("/base-dir", h.SetBaseDir)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
