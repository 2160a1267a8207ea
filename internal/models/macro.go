package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// MacroStep is one ordered entry in a macro, wrapping one action.
// Steps are executed in ascending Order, never insertion order.
type MacroStep struct {
	ID     string
	Order  int
	Action Action
}

type stepEnvelope struct {
	ID     string          `json:"id"`
	Order  int             `json:"order"`
	Action json.RawMessage `json:"action"`
}

// MarshalJSON encodes the step with its action's type discriminator.
func (s MacroStep) MarshalJSON() ([]byte, error) {
	raw, err := marshalAction(s.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stepEnvelope{ID: s.ID, Order: s.Order, Action: raw})
}

// UnmarshalJSON decodes the step, dispatching on the action's type field.
func (s *MacroStep) UnmarshalJSON(data []byte) error {
	var env stepEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("models: decode step: %w", err)
	}
	action, err := unmarshalAction(env.Action)
	if err != nil {
		return err
	}
	s.ID = env.ID
	s.Order = env.Order
	s.Action = action
	return nil
}

// Macro is a named, ordered sequence of recorded or authored actions.
// A macro with zero steps is valid to store but not valid to play.
type Macro struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Steps       []MacroStep `json:"steps"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewMacro creates an empty macro with a fresh ID and timestamps.
func NewMacro(name, description string) Macro {
	now := time.Now().UTC()
	return Macro{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Steps:       []MacroStep{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AppendStep adds an action after the current last step.
func (m *Macro) AppendStep(a Action) {
	next := 0
	for _, s := range m.Steps {
		if s.Order >= next {
			next = s.Order + 1
		}
	}
	m.Steps = append(m.Steps, MacroStep{
		ID:     uuid.NewString(),
		Order:  next,
		Action: a,
	})
}

// SortedSteps returns a copy of the steps sorted by ascending Order.
func (m Macro) SortedSteps() []MacroStep {
	steps := make([]MacroStep, len(m.Steps))
	copy(steps, m.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

// Validate checks the macro's invariants, including step order uniqueness
// and per-action validity.
func (m Macro) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.Name, validation.Required, validation.Length(1, 256)),
		validation.Field(&m.Steps, validation.By(validateSteps)),
	)
}

func validateSteps(value interface{}) error {
	steps, _ := value.([]MacroStep)
	seen := make(map[int]struct{}, len(steps))
	for i, s := range steps {
		if s.Action == nil {
			return fmt.Errorf("step %d: action is required", i)
		}
		if err := s.Action.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if _, dup := seen[s.Order]; dup {
			return fmt.Errorf("step %d: duplicate order %d", i, s.Order)
		}
		seen[s.Order] = struct{}{}
	}
	return nil
}
