// Package testutil provides shared test helpers: a recording input
// backend, a scriptable hook source, and temp-dir stores.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/verho/replayd/internal/history"
	"github.com/verho/replayd/internal/hook"
	"github.com/verho/replayd/internal/hostinput"
	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/store"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStore creates a temporary data directory with a JSON file store.
func TestStore(t *testing.T) (string, *store.JSONFile) {
	t.Helper()
	dataDir := t.TempDir()
	p, err := store.NewJSONFile(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	return dataDir, p
}

// TestHistory creates a temporary run-history database that is
// automatically cleaned up.
func TestHistory(t *testing.T) *history.DB {
	t.Helper()
	db, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TwoDisplays is a common test topology: a primary 1920x1080 monitor
// with a second one to its right.
func TwoDisplays() []models.Display {
	return []models.Display{
		{ID: "0", X: 0, Y: 0, Width: 1920, Height: 1080, IsPrimary: true, ScaleFactor: 1},
		{ID: "1", X: 1920, Y: 0, Width: 1920, Height: 1080, ScaleFactor: 1},
	}
}

// Call is one recorded backend invocation, formatted for easy
// assertions, e.g. "move 10 20" or "toggle left down".
type Call string

// FakeBackend records every injection call and can be scripted to fail.
type FakeBackend struct {
	mu sync.Mutex

	// DisplayList is returned by Displays. Defaults to TwoDisplays.
	DisplayList []models.Display
	// FailOn makes every invocation of the named operation return an
	// error ("move", "click", "toggle", "scroll", "togglekey", "tap",
	// "type").
	FailOn map[string]error

	failNth map[string]failPoint
	counts  map[string]int
	x, y    int
	calls   []Call
}

type failPoint struct {
	n   int
	err error
}

// NewFakeBackend returns a fake with the default two-monitor layout.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{DisplayList: TwoDisplays()}
}

// FailOnNth makes the n-th invocation (1-based) of op fail with err.
func (f *FakeBackend) FailOnNth(op string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNth == nil {
		f.failNth = make(map[string]failPoint)
	}
	f.failNth[op] = failPoint{n: n, err: err}
}

func (f *FakeBackend) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *FakeBackend) fail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[op]++
	if fp, ok := f.failNth[op]; ok && f.counts[op] == fp.n {
		return fp.err
	}
	if f.FailOn == nil {
		return nil
	}
	return f.FailOn[op]
}

// Calls returns a copy of the recorded call log.
func (f *FakeBackend) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsLike returns recorded calls whose first word matches op.
func (f *FakeBackend) CallsLike(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if len(c) >= len(op) && string(c[:len(op)]) == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeBackend) CursorPosition() (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.x, f.y, nil
}

func (f *FakeBackend) MoveMouse(x, y int) error {
	if err := f.fail("move"); err != nil {
		return err
	}
	f.mu.Lock()
	f.x, f.y = x, y
	f.calls = append(f.calls, Call(fmt.Sprintf("move %d %d", x, y)))
	f.mu.Unlock()
	return nil
}

func (f *FakeBackend) PerformClick(button hostinput.MouseButton) error {
	if err := f.fail("click"); err != nil {
		return err
	}
	f.record(Call(fmt.Sprintf("click %s", button)))
	return nil
}

func (f *FakeBackend) ToggleMouseButton(button hostinput.MouseButton, dir hostinput.Direction) error {
	if err := f.fail("toggle"); err != nil {
		return err
	}
	f.record(Call(fmt.Sprintf("toggle %s %s", button, dir)))
	return nil
}

func (f *FakeBackend) Scroll(dx, dy int) error {
	if err := f.fail("scroll"); err != nil {
		return err
	}
	f.record(Call(fmt.Sprintf("scroll %d %d", dx, dy)))
	return nil
}

func (f *FakeBackend) ToggleKey(key string, dir hostinput.Direction) error {
	if err := f.fail("togglekey"); err != nil {
		return err
	}
	f.record(Call(fmt.Sprintf("togglekey %s %s", key, dir)))
	return nil
}

func (f *FakeBackend) TapKey(key string) error {
	if err := f.fail("tap"); err != nil {
		return err
	}
	f.record(Call(fmt.Sprintf("tap %s", key)))
	return nil
}

func (f *FakeBackend) TypeText(text string) error {
	if err := f.fail("type"); err != nil {
		return err
	}
	f.record(Call(fmt.Sprintf("type %s", text)))
	return nil
}

func (f *FakeBackend) Displays() ([]models.Display, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DisplayList, nil
}

var _ hostinput.Backend = (*FakeBackend)(nil)

// FakeSource is a hook source driven by the test: call FireClick,
// FireKey or FireText to deliver events to subscribers.
type FakeSource struct {
	mu     sync.Mutex
	next   int
	clicks map[int]func(hook.ClickEvent)
	keys   map[int]func(hook.KeyEvent)
	text   map[int]func(hook.TextEvent)

	// Hotkeys maps accelerator to the registered callback.
	Hotkeys map[string]func()
}

// NewFakeSource returns an empty fake source.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		clicks:  make(map[int]func(hook.ClickEvent)),
		keys:    make(map[int]func(hook.KeyEvent)),
		text:    make(map[int]func(hook.TextEvent)),
		Hotkeys: make(map[string]func()),
	}
}

type fakeSub struct {
	once   sync.Once
	cancel func()
}

func (s *fakeSub) Close() { s.once.Do(s.cancel) }

func (f *FakeSource) SubscribeClicks(fn func(hook.ClickEvent)) hook.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.clicks[id] = fn
	return &fakeSub{cancel: func() {
		f.mu.Lock()
		delete(f.clicks, id)
		f.mu.Unlock()
	}}
}

func (f *FakeSource) SubscribeKeys(fn func(hook.KeyEvent)) hook.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.keys[id] = fn
	return &fakeSub{cancel: func() {
		f.mu.Lock()
		delete(f.keys, id)
		f.mu.Unlock()
	}}
}

func (f *FakeSource) SubscribeText(fn func(hook.TextEvent)) hook.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.text[id] = fn
	return &fakeSub{cancel: func() {
		f.mu.Lock()
		delete(f.text, id)
		f.mu.Unlock()
	}}
}

func (f *FakeSource) RegisterHotkey(accelerator string, fn func()) (hook.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Hotkeys[accelerator] = fn
	return &fakeSub{cancel: func() {
		f.mu.Lock()
		delete(f.Hotkeys, accelerator)
		f.mu.Unlock()
	}}, nil
}

// FireClick delivers a click event to all subscribers.
func (f *FakeSource) FireClick(ev hook.ClickEvent) {
	f.mu.Lock()
	fns := make([]func(hook.ClickEvent), 0, len(f.clicks))
	for _, fn := range f.clicks {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// FireKey delivers a key event to all subscribers.
func (f *FakeSource) FireKey(ev hook.KeyEvent) {
	f.mu.Lock()
	fns := make([]func(hook.KeyEvent), 0, len(f.keys))
	for _, fn := range f.keys {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// FireText delivers a text event to all subscribers.
func (f *FakeSource) FireText(ev hook.TextEvent) {
	f.mu.Lock()
	fns := make([]func(hook.TextEvent), 0, len(f.text))
	for _, fn := range f.text {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

var _ hook.Source = (*FakeSource)(nil)
