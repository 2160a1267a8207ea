// Package models defines the domain types for replayd.
package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// ClickType selects which mouse button a click uses, or a double click.
type ClickType string

// Supported click types.
const (
	ClickLeft   ClickType = "left"
	ClickRight  ClickType = "right"
	ClickDouble ClickType = "double"
)

// Target is a named, display-relative screen coordinate with a default
// click behavior. Targets have a lifecycle independent from macros;
// macros reference a target's ID, never own it.
type Target struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
	ClickType   ClickType   `json:"click_type"`
	ClickCount  int         `json:"click_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewTarget creates a target with a fresh ID and timestamps.
func NewTarget(name string, coords Coordinates, clickType ClickType, clickCount int) Target {
	now := time.Now().UTC()
	return Target{
		ID:          uuid.NewString(),
		Name:        name,
		Coordinates: coords,
		ClickType:   clickType,
		ClickCount:  clickCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the target's invariants.
func (t Target) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
		validation.Field(&t.Name, validation.Required, validation.Length(1, 256)),
		validation.Field(&t.ClickType, validation.Required,
			validation.In(ClickLeft, ClickRight, ClickDouble)),
		validation.Field(&t.ClickCount, validation.Required, validation.Min(1)),
	)
}
