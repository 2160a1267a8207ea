// Package simulate executes atomic pointer/keyboard/text actions
// against the host injection backend, with movement smoothing and
// scoped release guarantees.
package simulate

import (
	"math"
	"time"

	"github.com/verho/replayd/internal/apperr"
	"github.com/verho/replayd/internal/hostinput"
	"github.com/verho/replayd/internal/models"
)

const (
	// settleDelay lets a pointer move land before pressing buttons.
	settleDelay = 50 * time.Millisecond
	// multiClickGap separates repeated presses of the same button.
	multiClickGap = 30 * time.Millisecond
	// waypointInterval paces smooth movement.
	waypointInterval = 5 * time.Millisecond
	// waypointDistance is the pixel distance covered per waypoint.
	waypointDistance = 10.0
	// maxWaypoints caps smooth movement regardless of distance.
	maxWaypoints = 50
)

// modifierOrder is the press order for PressKey; release happens in
// reverse.
var modifierOrder = []string{"shift", "ctrl", "alt", "cmd"}

// ClickOptions configure Simulator.Click.
type ClickOptions struct {
	ClickType       models.ClickType
	ClickCount      int
	RestorePosition bool
	Smooth          bool
}

// DragOptions configure Simulator.Drag.
type DragOptions struct {
	Button hostinput.MouseButton
	Smooth bool
}

// Modifiers select which modifier keys PressKey holds around the tap.
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Alt   bool
	Meta  bool
}

// Simulator drives the host backend. Every injection is bracketed with
// the suppressor so the global hook ignores self-produced events.
type Simulator struct {
	backend hostinput.Backend
	sup     *hostinput.Suppressor
	sleep   func(time.Duration)
}

// New creates a simulator over the given backend. sup may be shared
// with the hook source; it must not be nil.
func New(backend hostinput.Backend, sup *hostinput.Suppressor) *Simulator {
	return &Simulator{backend: backend, sup: sup, sleep: time.Sleep}
}

// SetSleep replaces the pacing function. Tests use this to run
// instantly while still observing requested durations.
func (s *Simulator) SetSleep(fn func(time.Duration)) { s.sleep = fn }

// MoveTo moves the pointer to (x, y). With smooth set, it advances
// along straight-line waypoints roughly every 5ms and then snaps to the
// exact final point.
func (s *Simulator) MoveTo(x, y int, smooth bool) error {
	s.sup.Begin()
	defer s.sup.End()
	return s.moveTo(x, y, smooth)
}

func (s *Simulator) moveTo(x, y int, smooth bool) error {
	if !smooth {
		if err := s.backend.MoveMouse(x, y); err != nil {
			return apperr.Simulation("move", err)
		}
		return nil
	}

	curX, curY, err := s.backend.CursorPosition()
	if err != nil {
		return apperr.Simulation("cursor position", err)
	}

	dx := float64(x - curX)
	dy := float64(y - curY)
	dist := math.Hypot(dx, dy)
	steps := int(math.Ceil(dist / waypointDistance))
	if steps > maxWaypoints {
		steps = maxWaypoints
	}

	for i := 1; i < steps; i++ {
		t := float64(i) / float64(steps)
		wx := curX + int(math.Round(dx*t))
		wy := curY + int(math.Round(dy*t))
		if err := s.backend.MoveMouse(wx, wy); err != nil {
			return apperr.Simulation("move", err)
		}
		s.sleep(waypointInterval)
	}

	// Snap to the exact final point.
	if err := s.backend.MoveMouse(x, y); err != nil {
		return apperr.Simulation("move", err)
	}
	return nil
}

// Click moves to (x, y), settles, and performs the requested presses.
// A double click is always exactly two left presses 30ms apart,
// regardless of the requested count.
func (s *Simulator) Click(x, y int, opts ClickOptions) error {
	s.sup.Begin()
	defer s.sup.End()

	count := opts.ClickCount
	if count < 1 {
		count = 1
	}

	var prevX, prevY int
	if opts.RestorePosition {
		px, py, err := s.backend.CursorPosition()
		if err != nil {
			return apperr.Simulation("cursor position", err)
		}
		prevX, prevY = px, py
	}

	if err := s.moveTo(x, y, opts.Smooth); err != nil {
		return err
	}
	s.sleep(settleDelay)

	button := hostinput.ButtonLeft
	switch opts.ClickType {
	case models.ClickRight:
		button = hostinput.ButtonRight
	case models.ClickDouble:
		button = hostinput.ButtonLeft
		count = 2
	}

	for i := 0; i < count; i++ {
		if i > 0 {
			s.sleep(multiClickGap)
		}
		if err := s.backend.PerformClick(button); err != nil {
			return apperr.Simulation("click", err)
		}
	}

	if opts.RestorePosition {
		s.sleep(settleDelay)
		if err := s.backend.MoveMouse(prevX, prevY); err != nil {
			return apperr.Simulation("restore position", err)
		}
	}
	return nil
}

// Drag presses the button at the start point, moves to the end point,
// and releases. Both buttons are force-released on every failure path
// before the error propagates.
func (s *Simulator) Drag(startX, startY, endX, endY int, opts DragOptions) error {
	s.sup.Begin()
	defer s.sup.End()

	button := opts.Button
	if button == "" {
		button = hostinput.ButtonLeft
	}

	if err := s.moveTo(startX, startY, opts.Smooth); err != nil {
		return err
	}
	if err := s.backend.ToggleMouseButton(button, hostinput.Down); err != nil {
		// The host-side button state is indeterminate after a failed
		// toggle.
		s.releaseButtons()
		return apperr.Simulation("button down", err)
	}
	if err := s.moveTo(endX, endY, true); err != nil {
		s.releaseButtons()
		return err
	}
	if err := s.backend.ToggleMouseButton(button, hostinput.Up); err != nil {
		s.releaseButtons()
		return apperr.Simulation("button up", err)
	}
	return nil
}

// Scroll moves to (x, y) and emits a vertical scroll delta. Positive
// amounts scroll up.
func (s *Simulator) Scroll(x, y, amount int) error {
	s.sup.Begin()
	defer s.sup.End()

	if err := s.moveTo(x, y, false); err != nil {
		return err
	}
	if err := s.backend.Scroll(0, amount); err != nil {
		return apperr.Simulation("scroll", err)
	}
	return nil
}

// PressKey holds the requested modifiers, taps the key, and releases
// the modifiers in reverse order. All modifiers are force-released on
// any failure before the error propagates.
func (s *Simulator) PressKey(key string, mods Modifiers) error {
	s.sup.Begin()
	defer s.sup.End()

	held := make([]string, 0, len(modifierOrder))
	for _, m := range modifierOrder {
		if !mods.has(m) {
			continue
		}
		if err := s.backend.ToggleKey(m, hostinput.Down); err != nil {
			s.releaseModifiers()
			return apperr.Simulation("modifier down", err)
		}
		held = append(held, m)
	}

	if err := s.backend.TapKey(key); err != nil {
		s.releaseModifiers()
		return apperr.Simulation("key tap", err)
	}

	for i := len(held) - 1; i >= 0; i-- {
		if err := s.backend.ToggleKey(held[i], hostinput.Up); err != nil {
			s.releaseModifiers()
			return apperr.Simulation("modifier up", err)
		}
	}
	return nil
}

// TypeText injects text verbatim through the host's text injection.
func (s *Simulator) TypeText(text string) error {
	s.sup.Begin()
	defer s.sup.End()

	if err := s.backend.TypeText(text); err != nil {
		return apperr.Simulation("type text", err)
	}
	return nil
}

// ReleaseAll force-releases mouse buttons and modifier keys. The
// player calls it when a run unwinds after a stop so no key stays held.
func (s *Simulator) ReleaseAll() {
	s.sup.Begin()
	defer s.sup.End()
	s.releaseButtons()
	s.releaseModifiers()
}

func (s *Simulator) releaseButtons() {
	_ = s.backend.ToggleMouseButton(hostinput.ButtonLeft, hostinput.Up)
	_ = s.backend.ToggleMouseButton(hostinput.ButtonRight, hostinput.Up)
}

func (s *Simulator) releaseModifiers() {
	for i := len(modifierOrder) - 1; i >= 0; i-- {
		_ = s.backend.ToggleKey(modifierOrder[i], hostinput.Up)
	}
}

func (m Modifiers) has(name string) bool {
	switch name {
	case "shift":
		return m.Shift
	case "ctrl":
		return m.Ctrl
	case "alt":
		return m.Alt
	case "cmd":
		return m.Meta
	}
	return false
}
