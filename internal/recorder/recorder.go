// Package recorder turns live input events into an ordered macro.
package recorder

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/verho/replayd/internal/apperr"
	"github.com/verho/replayd/internal/display"
	"github.com/verho/replayd/internal/hook"
	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/registry"
)

// ErrNotRecording is returned by Stop and Cancel when no session is
// active.
var ErrNotRecording = errors.New("no recording in progress")

// delayThreshold is the idle gap above which a Delay step is inserted
// between two captured actions.
const delayThreshold = 500 * time.Millisecond

// StartOptions configure a recording session.
type StartOptions struct {
	// Name names the new macro. Ignored when ExistingID resolves.
	Name string
	// ExistingID continues recording into a stored macro when it
	// resolves; an unknown ID falls back to a fresh macro.
	ExistingID string
	// ClearSteps discards the existing macro's steps before continuing.
	ClearSteps bool
}

// State describes the recorder to callers polling for progress.
type State struct {
	Active    bool      `json:"active"`
	MacroID   string    `json:"macro_id,omitempty"`
	MacroName string    `json:"macro_name,omitempty"`
	StepCount int       `json:"step_count"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// StopResult is the outcome of a finished recording. Empty recordings
// are persisted but flagged so the caller does not treat them as a
// normal success.
type StopResult struct {
	Macro models.Macro
	Empty bool
}

// Recorder owns at most one recording session. The session struct is
// explicit state held by this long-lived service, never package-level.
type Recorder struct {
	targets  *registry.TargetService
	macros   *registry.MacroService
	source   hook.Source
	displays registry.DisplaysFunc
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	session *session
}

// session is the ephemeral state of one in-progress capture.
type session struct {
	macro     models.Macro
	lookup    map[models.Coordinates]string // target coordinates → target ID
	last      time.Time
	startedAt time.Time
	subs      []hook.Subscription
}

// New creates a recorder over the given collaborators.
func New(targets *registry.TargetService, macros *registry.MacroService, source hook.Source, displays registry.DisplaysFunc, logger *slog.Logger) *Recorder {
	return &Recorder{
		targets:  targets,
		macros:   macros,
		source:   source,
		displays: displays,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow replaces the clock; tests use it to script idle gaps.
func (r *Recorder) SetNow(fn func() time.Time) { r.now = fn }

// Start begins capturing. It snapshots the current targets into a
// coordinate lookup so clicks can be auto-associated, then subscribes
// to the click, key and text feeds.
func (r *Recorder) Start(opts StartOptions) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return State{}, apperr.ErrAlreadyActive
	}

	macro, resumed := r.resolveMacro(opts)

	lookup := make(map[models.Coordinates]string)
	for _, t := range r.targets.GetAll() {
		lookup[t.Coordinates] = t.ID
	}

	now := r.now()
	s := &session{
		macro:     macro,
		lookup:    lookup,
		last:      now,
		startedAt: now,
	}
	s.subs = []hook.Subscription{
		r.source.SubscribeClicks(r.onClick),
		r.source.SubscribeKeys(r.onKey),
		r.source.SubscribeText(r.onText),
	}
	r.session = s

	r.logger.Info("recording started",
		slog.String("macro_id", macro.ID),
		slog.String("macro_name", macro.Name),
		slog.Bool("resumed", resumed))
	return r.stateLocked(), nil
}

func (r *Recorder) resolveMacro(opts StartOptions) (models.Macro, bool) {
	if opts.ExistingID != "" {
		if m, err := r.macros.Get(opts.ExistingID); err == nil {
			if opts.ClearSteps {
				m.Steps = []models.MacroStep{}
			}
			return m, true
		}
	}
	name := opts.Name
	if name == "" {
		name = "Recording " + r.now().Format("2006-01-02 15:04:05")
	}
	return models.NewMacro(name, ""), false
}

// Stop unsubscribes the feeds, persists the macro and returns it.
func (r *Recorder) Stop() (StopResult, error) {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()
	if s == nil {
		return StopResult{}, ErrNotRecording
	}
	s.unsubscribe()

	s.macro.UpdatedAt = r.now().UTC()
	if err := r.macros.Save(s.macro); err != nil {
		return StopResult{Macro: s.macro, Empty: len(s.macro.Steps) == 0}, err
	}

	empty := len(s.macro.Steps) == 0
	r.logger.Info("recording stopped",
		slog.String("macro_id", s.macro.ID),
		slog.Int("steps", len(s.macro.Steps)),
		slog.Bool("empty", empty))
	return StopResult{Macro: s.macro, Empty: empty}, nil
}

// Cancel unsubscribes the feeds and discards the in-progress macro.
func (r *Recorder) Cancel() error {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()
	if s == nil {
		return ErrNotRecording
	}
	s.unsubscribe()
	r.logger.Info("recording cancelled", slog.String("macro_id", s.macro.ID))
	return nil
}

// State reports the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Recorder) stateLocked() State {
	if r.session == nil {
		return State{}
	}
	return State{
		Active:    true,
		MacroID:   r.session.macro.ID,
		MacroName: r.session.macro.Name,
		StepCount: len(r.session.macro.Steps),
		StartedAt: r.session.startedAt,
	}
}

func (s *session) unsubscribe() {
	for _, sub := range s.subs {
		sub.Close()
	}
	s.subs = nil
}

// append records one action, inserting a Delay step first when the idle
// gap since the previous action exceeds the threshold.
func (r *Recorder) append(a models.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	if s == nil {
		return
	}
	now := r.now()
	if elapsed := now.Sub(s.last); elapsed > delayThreshold {
		s.macro.AppendStep(models.DelayAction{DurationMs: elapsed.Milliseconds()})
	}
	s.macro.AppendStep(a)
	s.last = now
}

func (r *Recorder) onClick(ev hook.ClickEvent) {
	coords := models.Coordinates{X: ev.X, Y: ev.Y}
	if ds, err := r.displays(); err == nil {
		if local, ok := display.GlobalToLocal(ev.X, ev.Y, ds); ok {
			coords = local
		}
	}

	r.mu.Lock()
	var targetID string
	if r.session != nil {
		targetID = r.session.lookup[coords]
	}
	r.mu.Unlock()

	r.append(models.ClickAction{
		X:          coords.X,
		Y:          coords.Y,
		DisplayID:  coords.DisplayID,
		TargetID:   targetID,
		ClickType:  ev.Button,
		ClickCount: max(ev.Clicks, 1),
	})
}

func (r *Recorder) onKey(ev hook.KeyEvent) {
	r.append(models.KeyboardAction{
		Key:       ev.Key,
		WithShift: ev.WithShift,
		WithCtrl:  ev.WithCtrl,
		WithAlt:   ev.WithAlt,
		WithMeta:  ev.WithMeta,
	})
}

func (r *Recorder) onText(ev hook.TextEvent) {
	r.append(models.TextAction{Text: ev.Text})
}
