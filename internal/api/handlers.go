package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/verho/replayd/internal/history"
	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/player"
	"github.com/verho/replayd/internal/recorder"
	"github.com/verho/replayd/internal/registry"
)

// RunLister reads stored playback runs. *history.DB satisfies it.
type RunLister interface {
	ListRuns(limit, offset int, macroID string) ([]history.Run, int, error)
}

// Notifier receives collection and session change events for the SSE
// stream. *sse.Broker satisfies it; nil disables notifications.
type Notifier interface {
	PublishEngineEvent(kind string, data any)
}

// Handler holds API route handlers.
type Handler struct {
	targets  *registry.TargetService
	macros   *registry.MacroService
	rec      *recorder.Recorder
	pl       *player.Player
	runs     RunLister
	displays registry.DisplaysFunc
	events   Notifier
}

// NewHandler creates a new Handler.
func NewHandler(targets *registry.TargetService, macros *registry.MacroService, rec *recorder.Recorder, pl *player.Player, runs RunLister, displays registry.DisplaysFunc, events Notifier) *Handler {
	return &Handler{
		targets:  targets,
		macros:   macros,
		rec:      rec,
		pl:       pl,
		runs:     runs,
		displays: displays,
		events:   events,
	}
}

func (h *Handler) notify(kind string, data any) {
	if h.events != nil {
		h.events.PublishEngineEvent(kind, data)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// --- targets ---

// ListTargets handles GET /api/targets.
func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	items := h.targets.GetAll()
	writeJSON(w, http.StatusOK, TargetListResponse{Targets: items, Total: len(items)})
}

// CreateTarget handles POST /api/targets.
func (h *Handler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req CreateTargetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := h.targets.Create(req.Name, req.Coordinates, req.ClickType, req.ClickCount)
	if err != nil {
		writeError(w, err)
		return
	}
	h.notify("target.created", t)
	writeJSON(w, http.StatusCreated, t)
}

// GetTarget handles GET /api/targets/{id}.
func (h *Handler) GetTarget(w http.ResponseWriter, r *http.Request) {
	t, err := h.targets.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTarget handles PUT /api/targets/{id}.
func (h *Handler) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	var req UpdateTargetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := h.targets.Update(chi.URLParam(r, "id"), registry.TargetUpdate{
		Name:        req.Name,
		Coordinates: req.Coordinates,
		ClickType:   req.ClickType,
		ClickCount:  req.ClickCount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.notify("target.updated", t)
	writeJSON(w, http.StatusOK, t)
}

// DeleteTarget handles DELETE /api/targets/{id}.
func (h *Handler) DeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.targets.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	h.notify("target.deleted", map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// ClearTargets handles DELETE /api/targets.
func (h *Handler) ClearTargets(w http.ResponseWriter, r *http.Request) {
	if err := h.targets.ClearAll(); err != nil {
		writeError(w, err)
		return
	}
	h.notify("target.cleared", map[string]string{})
	w.WriteHeader(http.StatusNoContent)
}

// TestTarget handles POST /api/targets/{id}/test. It issues the
// target's configured click at its resolved desktop position.
func (h *Handler) TestTarget(w http.ResponseWriter, r *http.Request) {
	if err := h.targets.Test(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- macros ---

// ListMacros handles GET /api/macros.
func (h *Handler) ListMacros(w http.ResponseWriter, r *http.Request) {
	items := h.macros.GetAll()
	writeJSON(w, http.StatusOK, MacroListResponse{Macros: items, Total: len(items)})
}

// CreateMacro handles POST /api/macros.
func (h *Handler) CreateMacro(w http.ResponseWriter, r *http.Request) {
	var req CreateMacroRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.macros.Create(req.Name, req.Description, req.Steps)
	if err != nil {
		writeError(w, err)
		return
	}
	h.notify("macro.created", m)
	writeJSON(w, http.StatusCreated, m)
}

// GetMacro handles GET /api/macros/{id}.
func (h *Handler) GetMacro(w http.ResponseWriter, r *http.Request) {
	m, err := h.macros.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateMacro handles PUT /api/macros/{id}.
func (h *Handler) UpdateMacro(w http.ResponseWriter, r *http.Request) {
	var req UpdateMacroRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.macros.Update(chi.URLParam(r, "id"), registry.MacroUpdate{
		Name:        req.Name,
		Description: req.Description,
		Steps:       req.Steps,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.notify("macro.updated", m)
	writeJSON(w, http.StatusOK, m)
}

// DeleteMacro handles DELETE /api/macros/{id}.
func (h *Handler) DeleteMacro(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.macros.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	h.notify("macro.deleted", map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- recording ---

// StartRecording handles POST /api/recording/start.
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req StartRecordingRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	state, err := h.rec.Start(recorder.StartOptions{
		Name:       req.Name,
		ExistingID: req.MacroID,
		ClearSteps: req.ClearSteps,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.notify("recording.started", state)
	writeJSON(w, http.StatusOK, state)
}

// StopRecording handles POST /api/recording/stop. The finished macro is
// returned; empty recordings are flagged rather than rejected.
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	res, err := h.rec.Stop()
	if err != nil {
		writeError(w, err)
		return
	}
	h.notify("recording.stopped", map[string]any{
		"macro_id": res.Macro.ID,
		"steps":    len(res.Macro.Steps),
		"empty":    res.Empty,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"macro": res.Macro,
		"empty": res.Empty,
	})
}

// CancelRecording handles POST /api/recording/cancel.
func (h *Handler) CancelRecording(w http.ResponseWriter, r *http.Request) {
	if err := h.rec.Cancel(); err != nil {
		writeError(w, err)
		return
	}
	h.notify("recording.cancelled", map[string]string{})
	w.WriteHeader(http.StatusNoContent)
}

// RecordingState handles GET /api/recording/state.
func (h *Handler) RecordingState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rec.State())
}

// --- playback ---

// Play handles POST /api/playback/play. Playback runs in the
// background; progress is delivered over the SSE stream and the final
// record lands in the run history.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.macros.Get(req.MacroID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(m.Steps) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("macro has no steps"))
		return
	}
	if h.pl.State().Active {
		writeJSON(w, http.StatusConflict, errorBody("engine is busy"))
		return
	}

	opts := player.Options{
		Speed:          req.Speed,
		Repeat:         req.Repeat,
		RepeatCount:    req.RepeatCount,
		SuppressErrors: req.SuppressErrors,
	}
	go func(m models.Macro, opts player.Options) {
		if _, err := h.pl.Play(context.Background(), m, opts); err != nil {
			slog.Error("playback failed to start",
				slog.String("macro_id", m.ID),
				slog.String("error", err.Error()))
		}
	}(m, opts)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"macro_id": m.ID,
		"speed":    player.ClampSpeed(opts.Speed),
	})
}

// PausePlayback handles POST /api/playback/pause.
func (h *Handler) PausePlayback(w http.ResponseWriter, r *http.Request) {
	if err := h.pl.Pause(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.pl.State())
}

// ResumePlayback handles POST /api/playback/resume.
func (h *Handler) ResumePlayback(w http.ResponseWriter, r *http.Request) {
	if err := h.pl.Resume(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.pl.State())
}

// StopPlayback handles POST /api/playback/stop. The stop is
// cooperative; the current step finishes before the player halts.
func (h *Handler) StopPlayback(w http.ResponseWriter, r *http.Request) {
	if err := h.pl.Stop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.pl.State())
}

// SetSpeed handles PUT /api/playback/speed.
func (h *Handler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	speed, err := h.pl.SetSpeed(req.Speed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"speed": speed})
}

// PlaybackState handles GET /api/playback/state.
func (h *Handler) PlaybackState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pl.State())
}

// --- displays ---

// ListDisplays handles GET /api/displays.
func (h *Handler) ListDisplays(w http.ResponseWriter, r *http.Request) {
	ds, err := h.displays()
	if err != nil {
		slog.Error("display enumeration failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, DisplayListResponse{Displays: ds})
}

// --- run history ---

// ListRuns handles GET /api/runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	macroID := q.Get("macro_id")

	runs, total, err := h.runs.ListRuns(limit, offset, macroID)
	if err != nil {
		slog.Error("list runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
	})
}
