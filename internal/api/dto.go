package api

import (
	"github.com/verho/replayd/internal/models"
)

// CreateTargetRequest is the request body for creating a target.
type CreateTargetRequest struct {
	Name        string             `json:"name" validate:"required"`
	Coordinates models.Coordinates `json:"coordinates" validate:"required"`
	ClickType   models.ClickType   `json:"click_type" validate:"required"`
	ClickCount  int                `json:"click_count"`
}

// UpdateTargetRequest is the request body for a partial target update.
// Absent fields are left unchanged.
type UpdateTargetRequest struct {
	Name        *string             `json:"name"`
	Coordinates *models.Coordinates `json:"coordinates"`
	ClickType   *models.ClickType   `json:"click_type"`
	ClickCount  *int                `json:"click_count"`
}

// CreateMacroRequest is the request body for creating a macro.
type CreateMacroRequest struct {
	Name        string             `json:"name" validate:"required"`
	Description string             `json:"description"`
	Steps       []models.MacroStep `json:"steps"`
}

// UpdateMacroRequest is the request body for a partial macro update.
type UpdateMacroRequest struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	Steps       *[]models.MacroStep `json:"steps"`
}

// StartRecordingRequest is the request body for starting a recording.
// MacroID continues an existing macro; ClearSteps discards its steps
// first.
type StartRecordingRequest struct {
	Name       string `json:"name"`
	MacroID    string `json:"macro_id"`
	ClearSteps bool   `json:"clear_steps"`
}

// PlayRequest is the request body for starting playback.
type PlayRequest struct {
	MacroID        string  `json:"macro_id" validate:"required"`
	Speed          float64 `json:"speed"`
	Repeat         bool    `json:"repeat"`
	RepeatCount    int     `json:"repeat_count"`
	SuppressErrors bool    `json:"suppress_errors"`
}

// SpeedRequest is the request body for a live speed change.
type SpeedRequest struct {
	Speed float64 `json:"speed" validate:"required"`
}

// TargetListResponse wraps target listings.
type TargetListResponse struct {
	Targets []models.Target `json:"targets" validate:"required"`
	Total   int             `json:"total" validate:"required"`
}

// MacroListResponse wraps macro listings.
type MacroListResponse struct {
	Macros []models.Macro `json:"macros" validate:"required"`
	Total  int            `json:"total" validate:"required"`
}

// DisplayListResponse wraps the live monitor layout.
type DisplayListResponse struct {
	Displays []models.Display `json:"displays" validate:"required"`
}
