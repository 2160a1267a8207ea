// Package player replays a macro's steps against the input simulator,
// with speed, pause, cancel and repeat semantics.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/verho/replayd/internal/apperr"
	"github.com/verho/replayd/internal/display"
	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/registry"
	"github.com/verho/replayd/internal/simulate"
)

// ErrNotPlaying is returned by Pause, Resume, Stop and SetSpeed when no
// session is active.
var ErrNotPlaying = errors.New("no playback in progress")

// Speed multiplier bounds.
const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// ClampSpeed clamps a speed multiplier to [MinSpeed, MaxSpeed].
func ClampSpeed(s float64) float64 {
	if s < MinSpeed {
		return MinSpeed
	}
	if s > MaxSpeed {
		return MaxSpeed
	}
	return s
}

// Options configure one Play call.
type Options struct {
	Speed          float64
	Repeat         bool
	RepeatCount    int
	SuppressErrors bool
}

// StepError records one failed step when SuppressErrors is set.
type StepError struct {
	Iteration int    `json:"iteration"`
	StepIndex int    `json:"step_index"`
	Error     string `json:"error"`
}

// Result is the outcome of a run.
type Result struct {
	Success       bool        `json:"success"`
	Stopped       bool        `json:"stopped"`
	StepsExecuted int         `json:"steps_executed"`
	Iterations    int         `json:"iterations"`
	StepErrors    []StepError `json:"step_errors,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// State describes the player to callers polling for progress.
type State struct {
	Active          bool    `json:"active"`
	Paused          bool    `json:"paused"`
	MacroID         string  `json:"macro_id,omitempty"`
	MacroName       string  `json:"macro_name,omitempty"`
	StepIndex       int     `json:"step_index"`
	TotalSteps      int     `json:"total_steps"`
	Iteration       int     `json:"iteration"`
	TotalIterations int     `json:"total_iterations"`
	Speed           float64 `json:"speed"`
}

// Run is the record of one finished playback, handed to the sink.
type Run struct {
	MacroID       string
	MacroName     string
	StartedAt     time.Time
	FinishedAt    time.Time
	Iterations    int
	StepsExecuted int
	Outcome       string // completed | stopped | failed
	Error         string
}

// RunSink receives finished playback records.
type RunSink interface {
	RecordRun(Run) error
}

// RunSinkFunc adapts a function to the RunSink interface.
type RunSinkFunc func(Run) error

// RecordRun implements RunSink.
func (f RunSinkFunc) RecordRun(r Run) error { return f(r) }

// Player owns at most one playback session. Session state is an
// explicit struct held by this long-lived service, never package-level.
type Player struct {
	targets  *registry.TargetService
	sim      *simulate.Simulator
	displays registry.DisplaysFunc
	logger   *slog.Logger
	sink     RunSink

	events listeners

	mu      sync.Mutex
	session *session
}

// session is the ephemeral state of one Play call. The condition
// variable wakes the pause wait on Resume and Stop; the stop channel
// clears any pending delay timer.
type session struct {
	macroID         string
	macroName       string
	totalSteps      int
	totalIterations int

	mu       sync.Mutex
	cond     *sync.Cond
	paused   bool
	stopped  bool
	speed    float64
	stepIdx  int
	iter     int
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a player over the given collaborators. sink may be nil.
func New(targets *registry.TargetService, sim *simulate.Simulator, displays registry.DisplaysFunc, sink RunSink, logger *slog.Logger) *Player {
	return &Player{
		targets:  targets,
		sim:      sim,
		displays: displays,
		sink:     sink,
		logger:   logger,
	}
}

// Subscribe registers a progress listener. Events are delivered
// synchronously and in order.
func (p *Player) Subscribe(fn func(Event)) Subscription {
	return p.events.subscribe(fn)
}

// Play replays the macro. It rejects an empty macro and an overlapping
// session, sorts steps by order, and honors pause/stop cooperatively at
// step boundaries: an in-flight action always completes.
func (p *Player) Play(ctx context.Context, m models.Macro, opts Options) (Result, error) {
	steps := m.SortedSteps()
	if len(steps) == 0 {
		return Result{}, apperr.ErrEmptyMacro
	}

	iterations := 1
	if opts.Repeat {
		iterations = opts.RepeatCount
		if iterations < 1 {
			iterations = 1
		}
	}
	speed := opts.Speed
	if speed == 0 {
		speed = 1.0
	}
	speed = ClampSpeed(speed)

	s := &session{
		macroID:         m.ID,
		macroName:       m.Name,
		totalSteps:      len(steps),
		totalIterations: iterations,
		speed:           speed,
		stopCh:          make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	p.mu.Lock()
	if p.session != nil {
		p.mu.Unlock()
		return Result{}, apperr.ErrAlreadyActive
	}
	p.session = s
	p.mu.Unlock()

	startedAt := time.Now().UTC()
	result := p.run(ctx, s, steps, opts.SuppressErrors)

	// Unwind: forced release of any held modifier or button, then back
	// to idle.
	if result.Stopped {
		p.sim.ReleaseAll()
	}
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()

	p.recordRun(m, startedAt, result)

	return result, nil
}

func (p *Player) run(ctx context.Context, s *session, steps []models.MacroStep, suppressErrors bool) Result {
	res := Result{}

	p.emit(s, EventStarted, 0, "")

	for iter := 1; iter <= s.totalIterations; iter++ {
		s.setProgress(0, iter)
		for i, step := range steps {
			if s.stopRequested() || ctx.Err() != nil {
				s.markStopped()
				res.Stopped = true
				res.Iterations = iter - 1
				p.emit(s, EventStopped, i, "")
				return res
			}
			if !s.waitWhilePaused() {
				res.Stopped = true
				res.Iterations = iter - 1
				p.emit(s, EventStopped, i, "")
				return res
			}

			s.setProgress(i, iter)
			p.emit(s, EventStepStarted, i, "")

			if err := p.execute(s, step); err != nil {
				p.emit(s, EventStepFailed, i, err.Error())
				if !suppressErrors {
					res.Iterations = iter - 1
					res.Error = err.Error()
					return res
				}
				res.StepErrors = append(res.StepErrors, StepError{
					Iteration: iter,
					StepIndex: i,
					Error:     err.Error(),
				})
				continue
			}

			res.StepsExecuted++
			p.emit(s, EventStepCompleted, i, "")
		}
		res.Iterations = iter
		p.emit(s, EventIterationCompleted, len(steps)-1, "")
	}

	res.Success = true
	p.emit(s, EventCompleted, len(steps)-1, "")
	return res
}

// execute dispatches one step by its action's concrete type. The union
// is sealed; every variant is handled here.
func (p *Player) execute(s *session, step models.MacroStep) error {
	switch a := step.Action.(type) {
	case models.ClickAction:
		gx, gy, err := p.resolveClick(a)
		if err != nil {
			return err
		}
		return p.sim.Click(gx, gy, simulate.ClickOptions{
			ClickType:  a.ClickType,
			ClickCount: a.ClickCount,
			Smooth:     true,
		})

	case models.KeyboardAction:
		return p.sim.PressKey(a.Key, simulate.Modifiers{
			Shift: a.WithShift,
			Ctrl:  a.WithCtrl,
			Alt:   a.WithAlt,
			Meta:  a.WithMeta,
		})

	case models.TextAction:
		return p.sim.TypeText(a.Text)

	case models.DelayAction:
		return s.wait(scaledDelay(a, s.currentSpeed()))

	default:
		return fmt.Errorf("player: unhandled action type %T", step.Action)
	}
}

// resolveClick resolves a click step's target through the registry and
// current display topology, falling back to the step's literal
// coordinates when resolution fails.
func (p *Player) resolveClick(a models.ClickAction) (int, int, error) {
	ds, err := p.displays()
	if err != nil {
		return 0, 0, apperr.Simulation("displays", err)
	}

	coords := models.Coordinates{X: a.X, Y: a.Y, DisplayID: a.DisplayID}
	if a.TargetID != "" {
		if t, terr := p.targets.Get(a.TargetID); terr == nil {
			coords = t.Coordinates
		} else {
			p.logger.Warn("playback: target resolution failed, using literal coordinates",
				slog.String("target_id", a.TargetID))
		}
	}

	gx, gy, ok := display.LocalToGlobal(coords, ds)
	if !ok {
		return 0, 0, apperr.Simulation("resolve click", errors.New("no displays available"))
	}
	return gx, gy, nil
}

// scaledDelay divides the step delay by the current speed, rounded.
func scaledDelay(a models.DelayAction, speed float64) time.Duration {
	ms := math.Round(float64(a.DurationMs) / speed)
	return time.Duration(ms) * time.Millisecond
}

// Pause pauses playback. A no-op (not an error) if already paused.
func (p *Player) Pause() error {
	s := p.current()
	if s == nil {
		return ErrNotPlaying
	}
	if s.setPaused(true) {
		p.emit(s, EventPaused, s.stepIndex(), "")
	}
	return nil
}

// Resume resumes playback. A no-op (not an error) if not paused.
func (p *Player) Resume() error {
	s := p.current()
	if s == nil {
		return ErrNotPlaying
	}
	if s.setPaused(false) {
		p.emit(s, EventResumed, s.stepIndex(), "")
	}
	return nil
}

// Stop requests a cooperative stop: honored at the next checkpoint,
// never interrupting an in-flight action. Any pending delay timer is
// cleared immediately.
func (p *Player) Stop() error {
	s := p.current()
	if s == nil {
		return ErrNotPlaying
	}
	s.requestStop()
	return nil
}

// SetSpeed clamps the multiplier to [0.25, 4.0] and applies it to
// delays computed after the call, never retroactively.
func (p *Player) SetSpeed(speed float64) (float64, error) {
	s := p.current()
	if s == nil {
		return ClampSpeed(speed), ErrNotPlaying
	}
	clamped := ClampSpeed(speed)
	s.setSpeed(clamped)
	p.emit(s, EventSpeedChanged, s.stepIndex(), "")
	return clamped, nil
}

// State reports the current player state.
func (p *Player) State() State {
	s := p.current()
	if s == nil {
		return State{Speed: 1.0}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Active:          true,
		Paused:          s.paused,
		MacroID:         s.macroID,
		MacroName:       s.macroName,
		StepIndex:       s.stepIdx,
		TotalSteps:      s.totalSteps,
		Iteration:       s.iter,
		TotalIterations: s.totalIterations,
		Speed:           s.speed,
	}
}

func (p *Player) current() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Player) emit(s *session, t EventType, stepIdx int, errMsg string) {
	s.mu.Lock()
	ev := Event{
		Type:            t,
		MacroID:         s.macroID,
		MacroName:       s.macroName,
		StepIndex:       stepIdx,
		TotalSteps:      s.totalSteps,
		Iteration:       s.iter,
		TotalIterations: s.totalIterations,
		Speed:           s.speed,
		Error:           errMsg,
	}
	s.mu.Unlock()
	p.events.emit(ev)
}

func (p *Player) recordRun(m models.Macro, startedAt time.Time, res Result) {
	if p.sink == nil {
		return
	}
	outcome := "completed"
	switch {
	case res.Stopped:
		outcome = "stopped"
	case !res.Success:
		outcome = "failed"
	}
	run := Run{
		MacroID:       m.ID,
		MacroName:     m.Name,
		StartedAt:     startedAt,
		FinishedAt:    time.Now().UTC(),
		Iterations:    res.Iterations,
		StepsExecuted: res.StepsExecuted,
		Outcome:       outcome,
		Error:         res.Error,
	}
	if err := p.sink.RecordRun(run); err != nil {
		p.logger.Warn("playback: run history write failed", slog.String("error", err.Error()))
	}
}

// --- session state ---

func (s *session) setProgress(stepIdx, iter int) {
	s.mu.Lock()
	s.stepIdx = stepIdx
	s.iter = iter
	s.mu.Unlock()
}

func (s *session) stepIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepIdx
}

func (s *session) currentSpeed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

func (s *session) setSpeed(v float64) {
	s.mu.Lock()
	s.speed = v
	s.mu.Unlock()
}

// setPaused reports whether the flag actually transitioned.
func (s *session) setPaused(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == v || s.stopped {
		return false
	}
	s.paused = v
	if !v {
		s.cond.Broadcast()
	}
	return true
}

func (s *session) requestStop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *session) markStopped() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *session) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// waitWhilePaused blocks on the condition variable while paused. It
// returns false when the wait ended because of a stop, in which case
// the caller emits a single stopped notification and unwinds.
func (s *session) waitWhilePaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused && !s.stopped {
		s.cond.Wait()
	}
	return !s.stopped
}

// wait sleeps for d on a timer that the stop request clears
// immediately.
func (s *session) wait(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-s.stopCh:
		return nil
	}
}
