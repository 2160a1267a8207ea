package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Targets CRUD plus the live click test.
	r.Get("/targets", h.ListTargets)
	r.Post("/targets", h.CreateTarget)
	r.Delete("/targets", h.ClearTargets)
	r.Get("/targets/{id}", h.GetTarget)
	r.Put("/targets/{id}", h.UpdateTarget)
	r.Delete("/targets/{id}", h.DeleteTarget)
	r.Post("/targets/{id}/test", h.TestTarget)

	// Macros CRUD.
	r.Get("/macros", h.ListMacros)
	r.Post("/macros", h.CreateMacro)
	r.Get("/macros/{id}", h.GetMacro)
	r.Put("/macros/{id}", h.UpdateMacro)
	r.Delete("/macros/{id}", h.DeleteMacro)

	// Recording session.
	r.Post("/recording/start", h.StartRecording)
	r.Post("/recording/stop", h.StopRecording)
	r.Post("/recording/cancel", h.CancelRecording)
	r.Get("/recording/state", h.RecordingState)

	// Playback session.
	r.Post("/playback/play", h.Play)
	r.Post("/playback/pause", h.PausePlayback)
	r.Post("/playback/resume", h.ResumePlayback)
	r.Post("/playback/stop", h.StopPlayback)
	r.Put("/playback/speed", h.SetSpeed)
	r.Get("/playback/state", h.PlaybackState)

	// Monitor layout.
	r.Get("/displays", h.ListDisplays)

	// Playback run history.
	r.Get("/runs", h.ListRuns)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
