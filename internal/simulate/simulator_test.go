package simulate

import (
	"errors"
	"testing"
	"time"

	"github.com/verho/replayd/internal/apperr"
	"github.com/verho/replayd/internal/hostinput"
	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/testutil"
)

func newSim(t *testing.T) (*Simulator, *testutil.FakeBackend, *[]time.Duration) {
	t.Helper()
	backend := testutil.NewFakeBackend()
	sup := &hostinput.Suppressor{}
	s := New(backend, sup)
	var slept []time.Duration
	s.SetSleep(func(d time.Duration) { slept = append(slept, d) })
	return s, backend, &slept
}

func TestMoveToDirect(t *testing.T) {
	s, backend, slept := newSim(t)
	if err := s.MoveTo(100, 200, false); err != nil {
		t.Fatal(err)
	}
	calls := backend.Calls()
	if len(calls) != 1 || calls[0] != "move 100 200" {
		t.Errorf("calls = %v", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("direct move should not pace: %v", *slept)
	}
}

func TestMoveToSmoothWaypoints(t *testing.T) {
	s, backend, slept := newSim(t)

	// 100px distance at 10px per waypoint = 10 steps; 9 intermediate
	// moves plus the final snap.
	if err := s.MoveTo(100, 0, true); err != nil {
		t.Fatal(err)
	}
	moves := backend.CallsLike("move")
	if len(moves) != 10 {
		t.Fatalf("moves = %d, want 10: %v", len(moves), moves)
	}
	if moves[len(moves)-1] != "move 100 0" {
		t.Errorf("final move = %s", moves[len(moves)-1])
	}
	for _, d := range *slept {
		if d != 5*time.Millisecond {
			t.Errorf("waypoint interval = %v, want 5ms", d)
		}
	}
}

func TestMoveToSmoothCapsWaypoints(t *testing.T) {
	s, backend, _ := newSim(t)

	// 10000px would be 1000 waypoints; the cap is 50.
	if err := s.MoveTo(10000, 0, true); err != nil {
		t.Fatal(err)
	}
	moves := backend.CallsLike("move")
	if len(moves) != 50 {
		t.Errorf("moves = %d, want 50 (capped)", len(moves))
	}
}

func TestClickSingle(t *testing.T) {
	s, backend, slept := newSim(t)
	err := s.Click(10, 20, ClickOptions{ClickType: models.ClickLeft, ClickCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	clicks := backend.CallsLike("click")
	if len(clicks) != 1 || clicks[0] != "click left" {
		t.Errorf("clicks = %v", clicks)
	}
	// The settle delay runs between move and press.
	found := false
	for _, d := range *slept {
		if d == 50*time.Millisecond {
			found = true
		}
	}
	if !found {
		t.Errorf("no settle delay in %v", *slept)
	}
}

func TestClickZeroCountDefaultsToOne(t *testing.T) {
	s, backend, _ := newSim(t)
	if err := s.Click(0, 0, ClickOptions{ClickType: models.ClickRight}); err != nil {
		t.Fatal(err)
	}
	clicks := backend.CallsLike("click")
	if len(clicks) != 1 || clicks[0] != "click right" {
		t.Errorf("clicks = %v", clicks)
	}
}

func TestDoubleClickIsExactlyTwoLeftClicks(t *testing.T) {
	s, backend, slept := newSim(t)

	// Even with an absurd requested count, double means two left presses.
	err := s.Click(0, 0, ClickOptions{ClickType: models.ClickDouble, ClickCount: 7})
	if err != nil {
		t.Fatal(err)
	}
	clicks := backend.CallsLike("click")
	if len(clicks) != 2 {
		t.Fatalf("clicks = %v, want exactly 2", clicks)
	}
	for _, c := range clicks {
		if c != "click left" {
			t.Errorf("double click used %s", c)
		}
	}
	found := false
	for _, d := range *slept {
		if d == 30*time.Millisecond {
			found = true
		}
	}
	if !found {
		t.Errorf("no 30ms gap between presses in %v", *slept)
	}
}

func TestClickRestorePosition(t *testing.T) {
	s, backend, _ := newSim(t)
	_ = backend.MoveMouse(5, 6)

	err := s.Click(100, 100, ClickOptions{ClickType: models.ClickLeft, ClickCount: 1, RestorePosition: true})
	if err != nil {
		t.Fatal(err)
	}
	moves := backend.CallsLike("move")
	if moves[len(moves)-1] != "move 5 6" {
		t.Errorf("final move = %s, want restore to (5,6)", moves[len(moves)-1])
	}
}

func TestClickErrorWrapped(t *testing.T) {
	s, backend, _ := newSim(t)
	backend.FailOn = map[string]error{"click": errors.New("boom")}

	err := s.Click(0, 0, ClickOptions{ClickType: models.ClickLeft, ClickCount: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	var simErr *apperr.SimulationError
	if !errors.As(err, &simErr) {
		t.Errorf("error type = %T, want SimulationError", err)
	}
}

func TestDragPressMoveRelease(t *testing.T) {
	s, backend, _ := newSim(t)
	if err := s.Drag(0, 0, 5, 5, DragOptions{Button: hostinput.ButtonRight}); err != nil {
		t.Fatal(err)
	}
	toggles := backend.CallsLike("toggle")
	if len(toggles) != 2 || toggles[0] != "toggle right down" || toggles[1] != "toggle right up" {
		t.Errorf("toggles = %v", toggles)
	}
}

func TestDragButtonDownFailureForcesRelease(t *testing.T) {
	s, backend, _ := newSim(t)
	backend.FailOnNth("toggle", 1, errors.New("boom"))

	err := s.Drag(0, 0, 5, 5, DragOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	// The failed down-toggle leaves the host state indeterminate, so
	// both buttons are force-released before the error propagates.
	toggles := backend.CallsLike("toggle")
	want := []testutil.Call{"toggle left up", "toggle right up"}
	if len(toggles) != len(want) {
		t.Fatalf("toggles = %v", toggles)
	}
	for i := range want {
		if toggles[i] != want[i] {
			t.Errorf("toggle %d = %s, want %s", i, toggles[i], want[i])
		}
	}
}

func TestDragMoveFailureForcesRelease(t *testing.T) {
	s, backend, _ := newSim(t)
	// First move reaches the start point; the drag movement fails.
	backend.FailOnNth("move", 2, errors.New("boom"))

	err := s.Drag(0, 0, 5, 5, DragOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	toggles := backend.CallsLike("toggle")
	if toggles[0] != "toggle left down" {
		t.Fatalf("toggles = %v", toggles)
	}
	released := false
	for _, c := range toggles[1:] {
		if c == "toggle left up" {
			released = true
		}
	}
	if !released {
		t.Errorf("button not force-released: %v", toggles)
	}
}

func TestPressKeyModifierOrder(t *testing.T) {
	s, backend, _ := newSim(t)
	err := s.PressKey("a", Modifiers{Shift: true, Ctrl: true, Meta: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []testutil.Call{
		"togglekey shift down",
		"togglekey ctrl down",
		"togglekey cmd down",
		"tap a",
		"togglekey cmd up",
		"togglekey ctrl up",
		"togglekey shift up",
	}
	got := backend.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPressKeyFailureReleasesModifiers(t *testing.T) {
	s, backend, _ := newSim(t)
	backend.FailOn = map[string]error{"tap": errors.New("boom")}

	err := s.PressKey("a", Modifiers{Ctrl: true})
	if err == nil {
		t.Fatal("expected error")
	}
	// All modifiers are force-released after the failure, in reverse
	// press order.
	got := backend.CallsLike("togglekey")
	last := got[len(got)-4:]
	want := []testutil.Call{
		"togglekey cmd up",
		"togglekey alt up",
		"togglekey ctrl up",
		"togglekey shift up",
	}
	for i := range want {
		if last[i] != want[i] {
			t.Errorf("release %d = %s, want %s", i, last[i], want[i])
		}
	}
}

func TestScroll(t *testing.T) {
	s, backend, _ := newSim(t)
	if err := s.Scroll(10, 20, 3); err != nil {
		t.Fatal(err)
	}
	moves := backend.CallsLike("move")
	if len(moves) == 0 || moves[len(moves)-1] != "move 10 20" {
		t.Errorf("moves = %v", moves)
	}
	if got := backend.CallsLike("scroll"); len(got) != 1 || got[0] != "scroll 0 3" {
		t.Errorf("scroll calls = %v", got)
	}
}

func TestTypeText(t *testing.T) {
	s, backend, _ := newSim(t)
	if err := s.TypeText("héllo"); err != nil {
		t.Fatal(err)
	}
	got := backend.CallsLike("type")
	if len(got) != 1 || got[0] != "type héllo" {
		t.Errorf("calls = %v", got)
	}
}

func TestReleaseAll(t *testing.T) {
	s, backend, _ := newSim(t)
	s.ReleaseAll()
	if got := backend.CallsLike("toggle left up"); len(got) != 1 {
		t.Errorf("left button not released: %v", backend.Calls())
	}
	if got := backend.CallsLike("togglekey"); len(got) != 4 {
		t.Errorf("modifier releases = %v", got)
	}
}

func TestSuppressorActiveDuringInjection(t *testing.T) {
	backend := testutil.NewFakeBackend()
	sup := &hostinput.Suppressor{}
	s := New(backend, sup)
	var active bool
	s.SetSleep(func(time.Duration) { active = sup.Active() })

	if err := s.Click(0, 0, ClickOptions{ClickType: models.ClickLeft, ClickCount: 1}); err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Error("suppressor not active mid-injection")
	}
	// The linger keeps it active briefly after the injection ends.
	if !sup.Active() {
		t.Error("suppressor should linger after injection")
	}
	time.Sleep(80 * time.Millisecond)
	if sup.Active() {
		t.Error("suppressor still active after linger window")
	}
}
