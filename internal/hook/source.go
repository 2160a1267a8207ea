// Package hook delivers live user input events (clicks, keys, typed
// text) and global hotkey callbacks to the recorder.
package hook

import (
	"sync"
	"time"

	"github.com/verho/replayd/internal/models"
)

// ClickEvent is a completed user click in desktop-global coordinates.
type ClickEvent struct {
	X      int
	Y      int
	Button models.ClickType
	Clicks int
	At     time.Time
}

// KeyEvent is a non-text key press with its modifier state.
type KeyEvent struct {
	Key       string
	WithShift bool
	WithCtrl  bool
	WithAlt   bool
	WithMeta  bool
	At        time.Time
}

// TextEvent is printable text the user typed.
type TextEvent struct {
	Text string
	At   time.Time
}

// Subscription is a handle for one registered listener. Close is
// idempotent.
type Subscription interface {
	Close()
}

// Source supplies the three capture feeds and hotkey registration.
// Implementations must deliver only genuine user input; events produced
// by the engine's own injection are filtered out.
type Source interface {
	SubscribeClicks(fn func(ClickEvent)) Subscription
	SubscribeKeys(fn func(KeyEvent)) Subscription
	SubscribeText(fn func(TextEvent)) Subscription
	// RegisterHotkey binds an accelerator string such as
	// "ctrl+shift+r" or "escape" to a callback.
	RegisterHotkey(accelerator string, fn func()) (Subscription, error)
}

// feed is a typed listener registry dispatching in subscription order.
type feed[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
	ord  []int
}

func (f *feed[T]) subscribe(fn func(T)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]func(T))
	}
	id := f.next
	f.next++
	f.subs[id] = fn
	f.ord = append(f.ord, id)
	return &subscription{cancel: func() { f.remove(id) }}
}

func (f *feed[T]) remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
	for i, v := range f.ord {
		if v == id {
			f.ord = append(f.ord[:i], f.ord[i+1:]...)
			break
		}
	}
}

func (f *feed[T]) dispatch(ev T) {
	f.mu.Lock()
	fns := make([]func(T), 0, len(f.ord))
	for _, id := range f.ord {
		if fn, ok := f.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Close() {
	s.once.Do(s.cancel)
}
