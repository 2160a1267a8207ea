package models

import (
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ActionKind discriminates the Action union in its JSON form.
type ActionKind string

// Action kinds.
const (
	ActionClick    ActionKind = "click"
	ActionKeyboard ActionKind = "keyboard"
	ActionText     ActionKind = "text"
	ActionDelay    ActionKind = "delay"
)

// Action is the atomic unit of playback. The set of implementations is
// closed: ClickAction, KeyboardAction, TextAction, DelayAction. Dispatch
// sites switch on the concrete type, so adding a variant without handling
// it everywhere is a compile-time visible change.
type Action interface {
	Kind() ActionKind
	Validate() error

	sealed()
}

// ClickAction clicks at a point. Coordinates are display-relative. When
// TargetID is set the player resolves the target's current coordinates
// first and falls back to X/Y/DisplayID only if resolution fails.
type ClickAction struct {
	X          int       `json:"x"`
	Y          int       `json:"y"`
	DisplayID  string    `json:"display_id"`
	TargetID   string    `json:"target_id,omitempty"`
	ClickType  ClickType `json:"click_type"`
	ClickCount int       `json:"click_count"`
}

// Kind implements Action.
func (ClickAction) Kind() ActionKind { return ActionClick }

// Validate checks the click action's invariants.
func (a ClickAction) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ClickType, validation.Required,
			validation.In(ClickLeft, ClickRight, ClickDouble)),
		validation.Field(&a.ClickCount, validation.Required, validation.Min(1)),
	)
}

func (ClickAction) sealed() {}

// KeyboardAction taps a single key with optional modifiers.
type KeyboardAction struct {
	Key       string `json:"key"`
	WithShift bool   `json:"with_shift,omitempty"`
	WithCtrl  bool   `json:"with_ctrl,omitempty"`
	WithAlt   bool   `json:"with_alt,omitempty"`
	WithMeta  bool   `json:"with_meta,omitempty"`
}

// Kind implements Action.
func (KeyboardAction) Kind() ActionKind { return ActionKeyboard }

// Validate checks the keyboard action's invariants.
func (a KeyboardAction) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Key, validation.Required),
	)
}

func (KeyboardAction) sealed() {}

// TextAction types a string verbatim through host text injection.
type TextAction struct {
	Text string `json:"text"`
}

// Kind implements Action.
func (TextAction) Kind() ActionKind { return ActionText }

// Validate checks the text action's invariants.
func (a TextAction) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Text, validation.Required),
	)
}

func (TextAction) sealed() {}

// DelayAction waits for DurationMs (scaled by playback speed).
type DelayAction struct {
	DurationMs int64 `json:"duration_ms"`
}

// Kind implements Action.
func (DelayAction) Kind() ActionKind { return ActionDelay }

// Duration returns the delay as a time.Duration.
func (a DelayAction) Duration() time.Duration {
	return time.Duration(a.DurationMs) * time.Millisecond
}

// Validate checks the delay action's invariants.
func (a DelayAction) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.DurationMs, validation.Min(0)),
	)
}

func (DelayAction) sealed() {}

// marshalAction encodes an action with its "type" discriminator inline.
func marshalAction(a Action) ([]byte, error) {
	switch v := a.(type) {
	case ClickAction:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			ClickAction
		}{ActionClick, v})
	case KeyboardAction:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			KeyboardAction
		}{ActionKeyboard, v})
	case TextAction:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			TextAction
		}{ActionText, v})
	case DelayAction:
		return json.Marshal(struct {
			Type ActionKind `json:"type"`
			DelayAction
		}{ActionDelay, v})
	default:
		return nil, fmt.Errorf("models: unknown action type %T", a)
	}
}

// unmarshalAction decodes an action by its "type" discriminator.
func unmarshalAction(data []byte) (Action, error) {
	var head struct {
		Type ActionKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("models: decode action head: %w", err)
	}
	switch head.Type {
	case ActionClick:
		var a ClickAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("models: decode click action: %w", err)
		}
		return a, nil
	case ActionKeyboard:
		var a KeyboardAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("models: decode keyboard action: %w", err)
		}
		return a, nil
	case ActionText:
		var a TextAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("models: decode text action: %w", err)
		}
		return a, nil
	case ActionDelay:
		var a DelayAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("models: decode delay action: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("models: unknown action kind %q", head.Type)
	}
}
