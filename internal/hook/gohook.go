package hook

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	gohook "github.com/robotn/gohook"

	"github.com/verho/replayd/internal/hostinput"
	"github.com/verho/replayd/internal/models"
)

// libuiohook modifier masks (left | right variants).
const (
	maskShift = 1<<0 | 1<<4
	maskCtrl  = 1<<1 | 1<<5
	maskMeta  = 1<<2 | 1<<6
	maskAlt   = 1<<3 | 1<<7
)

// Gohook implements Source on the gohook global input hook. Run pumps
// the hook's event channel; events arriving while the suppressor is
// active are self-injected and dropped.
type Gohook struct {
	sup *hostinput.Suppressor

	clicks feed[ClickEvent]
	keys   feed[KeyEvent]
	texts  feed[TextEvent]

	mu      sync.Mutex
	nextHK  int
	hotkeys map[int]hotkey
}

type hotkey struct {
	combo combo
	fn    func()
}

// NewGohook creates a hook source that filters events through sup.
func NewGohook(sup *hostinput.Suppressor) *Gohook {
	return &Gohook{sup: sup, hotkeys: make(map[int]hotkey)}
}

var _ Source = (*Gohook)(nil)

// SubscribeClicks implements Source.
func (g *Gohook) SubscribeClicks(fn func(ClickEvent)) Subscription {
	return g.clicks.subscribe(fn)
}

// SubscribeKeys implements Source.
func (g *Gohook) SubscribeKeys(fn func(KeyEvent)) Subscription {
	return g.keys.subscribe(fn)
}

// SubscribeText implements Source.
func (g *Gohook) SubscribeText(fn func(TextEvent)) Subscription {
	return g.texts.subscribe(fn)
}

// RegisterHotkey implements Source.
func (g *Gohook) RegisterHotkey(accelerator string, fn func()) (Subscription, error) {
	c, err := parseAccelerator(accelerator)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextHK
	g.nextHK++
	g.hotkeys[id] = hotkey{combo: c, fn: fn}
	return &subscription{cancel: func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.hotkeys, id)
	}}, nil
}

// Run starts the OS hook and pumps events until ctx is cancelled.
func (g *Gohook) Run(ctx context.Context) error {
	evCh := gohook.Start()
	defer gohook.End()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-evCh:
			if !ok {
				return nil
			}
			g.handle(ev)
		}
	}
}

func (g *Gohook) handle(ev gohook.Event) {
	if g.sup.Active() {
		return
	}
	now := time.Now()

	switch ev.Kind {
	case gohook.MouseDown:
		g.clicks.dispatch(ClickEvent{
			X:      int(ev.X),
			Y:      int(ev.Y),
			Button: buttonFromCode(ev.Button),
			Clicks: max(int(ev.Clicks), 1),
			At:     now,
		})

	case gohook.KeyDown, gohook.KeyHold:
		if ev.Kind == gohook.KeyHold {
			return
		}
		shift := ev.Mask&maskShift != 0
		ctrl := ev.Mask&maskCtrl != 0
		alt := ev.Mask&maskAlt != 0
		meta := ev.Mask&maskMeta != 0

		name := keyName(ev)
		if name == "" {
			return
		}
		if g.fireHotkeys(name, shift, ctrl, alt, meta) {
			return
		}

		ch := rune(ev.Keychar)
		if unicode.IsPrint(ch) && !ctrl && !alt && !meta {
			// Printable, unmodified input lands on the text feed;
			// everything else is a discrete key press.
			g.texts.dispatch(TextEvent{Text: string(ch), At: now})
			return
		}
		g.keys.dispatch(KeyEvent{
			Key:       name,
			WithShift: shift,
			WithCtrl:  ctrl,
			WithAlt:   alt,
			WithMeta:  meta,
			At:        now,
		})
	}
}

func (g *Gohook) fireHotkeys(key string, shift, ctrl, alt, meta bool) bool {
	g.mu.Lock()
	var hit []func()
	for _, hk := range g.hotkeys {
		if hk.combo.matches(key, shift, ctrl, alt, meta) {
			hit = append(hit, hk.fn)
		}
	}
	g.mu.Unlock()
	for _, fn := range hit {
		fn()
	}
	return len(hit) > 0
}

func keyName(ev gohook.Event) string {
	ch := rune(ev.Keychar)
	if unicode.IsPrint(ch) {
		return strings.ToLower(string(ch))
	}
	return strings.ToLower(gohook.RawcodetoKeychar(ev.Rawcode))
}

func buttonFromCode(code uint16) models.ClickType {
	if code == 2 || code == 3 {
		return models.ClickRight
	}
	return models.ClickLeft
}

// combo is a parsed accelerator: a base key plus required modifiers.
type combo struct {
	key   string
	shift bool
	ctrl  bool
	alt   bool
	meta  bool
}

func (c combo) matches(key string, shift, ctrl, alt, meta bool) bool {
	return key == c.key && shift == c.shift && ctrl == c.ctrl && alt == c.alt && meta == c.meta
}

func parseAccelerator(accel string) (combo, error) {
	var c combo
	parts := strings.Split(strings.ToLower(strings.TrimSpace(accel)), "+")
	for _, p := range parts {
		switch strings.TrimSpace(p) {
		case "shift":
			c.shift = true
		case "ctrl", "control":
			c.ctrl = true
		case "alt", "option":
			c.alt = true
		case "meta", "cmd", "command", "super", "commandorcontrol":
			c.meta = true
		case "esc", "escape":
			c.key = "escape"
		case "":
			return combo{}, fmt.Errorf("hook: empty accelerator part in %q", accel)
		default:
			if c.key != "" {
				return combo{}, fmt.Errorf("hook: accelerator %q has two base keys", accel)
			}
			c.key = strings.TrimSpace(p)
		}
	}
	if c.key == "" {
		return combo{}, fmt.Errorf("hook: accelerator %q has no base key", accel)
	}
	return c, nil
}
