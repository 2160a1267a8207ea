package models

// Display is one monitor's rectangle in desktop-global coordinate space.
type Display struct {
	ID          string  `json:"id"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	IsPrimary   bool    `json:"is_primary"`
	ScaleFactor float64 `json:"scale_factor"`
}

// Contains reports whether the desktop-global point (x, y) lies within
// the display's rectangle.
func (d Display) Contains(x, y int) bool {
	return x >= d.X && x < d.X+d.Width && y >= d.Y && y < d.Y+d.Height
}

// Coordinates is a point relative to the origin of the display named by
// DisplayID. Targets never store desktop-global positions.
type Coordinates struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	DisplayID string `json:"display_id"`
}
