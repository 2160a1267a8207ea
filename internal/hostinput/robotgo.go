package hostinput

import (
	"fmt"
	"strconv"

	"github.com/go-vgo/robotgo"

	"github.com/verho/replayd/internal/models"
)

// Robotgo implements Backend on top of the robotgo injection library.
type Robotgo struct{}

// NewRobotgo creates the production backend.
func NewRobotgo() *Robotgo { return &Robotgo{} }

var _ Backend = (*Robotgo)(nil)

// CursorPosition implements Backend.
func (*Robotgo) CursorPosition() (int, int, error) {
	x, y := robotgo.Location()
	return x, y, nil
}

// MoveMouse implements Backend.
func (*Robotgo) MoveMouse(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

// PerformClick implements Backend.
func (*Robotgo) PerformClick(button MouseButton) error {
	robotgo.Click(string(button), false)
	return nil
}

// ToggleMouseButton implements Backend.
func (*Robotgo) ToggleMouseButton(button MouseButton, dir Direction) error {
	if err := robotgo.Toggle(string(button), string(dir)); err != nil {
		return fmt.Errorf("toggle %s %s: %w", button, dir, err)
	}
	return nil
}

// Scroll implements Backend. Positive dy scrolls up.
func (*Robotgo) Scroll(dx, dy int) error {
	robotgo.Scroll(dx, dy)
	return nil
}

// ToggleKey implements Backend.
func (*Robotgo) ToggleKey(key string, dir Direction) error {
	if err := robotgo.KeyToggle(key, string(dir)); err != nil {
		return fmt.Errorf("key toggle %s %s: %w", key, dir, err)
	}
	return nil
}

// TapKey implements Backend.
func (*Robotgo) TapKey(key string) error {
	if err := robotgo.KeyTap(key); err != nil {
		return fmt.Errorf("key tap %s: %w", key, err)
	}
	return nil
}

// TypeText implements Backend.
func (*Robotgo) TypeText(text string) error {
	robotgo.TypeStr(text)
	return nil
}

// Displays implements Backend. Display IDs are the robotgo display
// indices; index 0 is treated as primary.
func (*Robotgo) Displays() ([]models.Display, error) {
	num := robotgo.DisplaysNum()
	if num < 1 {
		return nil, fmt.Errorf("no displays reported")
	}
	out := make([]models.Display, 0, num)
	for i := 0; i < num; i++ {
		x, y, w, h := robotgo.GetDisplayBounds(i)
		out = append(out, models.Display{
			ID:          strconv.Itoa(i),
			X:           x,
			Y:           y,
			Width:       w,
			Height:      h,
			IsPrimary:   i == 0,
			ScaleFactor: robotgo.ScaleF(i),
		})
	}
	return out, nil
}
