// Package display converts between desktop-global and display-relative
// coordinates given the current monitor layout.
package display

import "github.com/verho/replayd/internal/models"

// GlobalToLocal converts a desktop-global point to coordinates relative
// to the display containing it. If no display contains the point, the
// first display in the list is used as a documented fallback; this is
// not a nearest-display search. Returns false when displays is empty.
func GlobalToLocal(x, y int, displays []models.Display) (models.Coordinates, bool) {
	if len(displays) == 0 {
		return models.Coordinates{}, false
	}
	d := displays[0]
	for _, cand := range displays {
		if cand.Contains(x, y) {
			d = cand
			break
		}
	}
	return models.Coordinates{X: x - d.X, Y: y - d.Y, DisplayID: d.ID}, true
}

// LocalToGlobal converts display-relative coordinates back to the
// desktop-global point. If the display named by coords.DisplayID is
// absent (monitor disconnected), the first display is used as fallback.
// Returns false when displays is empty.
func LocalToGlobal(coords models.Coordinates, displays []models.Display) (int, int, bool) {
	if len(displays) == 0 {
		return 0, 0, false
	}
	d := displays[0]
	for _, cand := range displays {
		if cand.ID == coords.DisplayID {
			d = cand
			break
		}
	}
	return coords.X + d.X, coords.Y + d.Y, true
}
