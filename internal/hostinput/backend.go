// Package hostinput abstracts the operating system's pointer/keyboard
// injection surface and display enumeration.
package hostinput

import "github.com/verho/replayd/internal/models"

// MouseButton names a physical mouse button.
type MouseButton string

// Mouse buttons.
const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "center"
)

// Direction is a press or release of a button or key.
type Direction string

// Toggle directions.
const (
	Down Direction = "down"
	Up   Direction = "up"
)

// Backend is the host injection surface. Implementations perform real OS
// input; tests substitute a recording fake.
type Backend interface {
	// CursorPosition returns the pointer's desktop-global position.
	CursorPosition() (x, y int, err error)
	// MoveMouse warps the pointer to a desktop-global position.
	MoveMouse(x, y int) error
	// PerformClick presses and releases a button at the current position.
	PerformClick(button MouseButton) error
	// ToggleMouseButton holds or releases a button.
	ToggleMouseButton(button MouseButton, dir Direction) error
	// Scroll emits a scroll delta; positive dy scrolls up.
	Scroll(dx, dy int) error
	// ToggleKey holds or releases a key.
	ToggleKey(key string, dir Direction) error
	// TapKey presses and releases a key.
	TapKey(key string) error
	// TypeText injects a string verbatim.
	TypeText(text string) error
	// Displays returns the current monitor layout.
	Displays() ([]models.Display, error)
}
