package registry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verho/replayd/internal/apperr"
	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/store"
)

var errNoDisplays = errors.New("no displays available")

// MacroService is the CRUD store of macros.
type MacroService struct {
	mu       sync.Mutex
	provider store.Provider
	logger   *slog.Logger
	macros   map[string]models.Macro
}

// NewMacroService loads the macro collection, degrading to empty on a
// load failure.
func NewMacroService(p store.Provider, logger *slog.Logger) *MacroService {
	s := &MacroService{
		provider: p,
		logger:   logger,
		macros:   make(map[string]models.Macro),
	}
	if err := s.Reload(); err != nil {
		logger.Warn("macros: load failed, starting empty", slog.String("error", err.Error()))
	}
	return s
}

// Reload replaces the in-memory collection from the store.
func (s *MacroService) Reload() error {
	data, err := s.provider.ReadCollection(store.MacrosCollection)
	if err != nil {
		return apperr.Persistence(store.MacrosCollection, err)
	}
	var list []models.Macro
	if err := json.Unmarshal(data, &list); err != nil {
		return apperr.Persistence(store.MacrosCollection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macros = make(map[string]models.Macro, len(list))
	for _, m := range list {
		s.macros[m.ID] = m
	}
	return nil
}

func (s *MacroService) persist() error {
	list := s.sortedLocked()
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return apperr.Persistence(store.MacrosCollection, err)
	}
	if err := s.provider.WriteCollection(store.MacrosCollection, data); err != nil {
		return apperr.Persistence(store.MacrosCollection, err)
	}
	return nil
}

func (s *MacroService) sortedLocked() []models.Macro {
	list := make([]models.Macro, 0, len(s.macros))
	for _, m := range s.macros {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Create validates and stores a new macro with the given steps.
func (s *MacroService) Create(name, description string, steps []models.MacroStep) (models.Macro, error) {
	m := models.NewMacro(name, description)
	if len(steps) > 0 {
		m.Steps = ensureStepIDs(steps)
	}
	if err := m.Validate(); err != nil {
		return models.Macro{}, apperr.Validation(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macros[m.ID] = m
	if err := s.persist(); err != nil {
		return m, err
	}
	return m, nil
}

// Get returns a macro by ID.
func (s *MacroService) Get(id string) (models.Macro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.macros[id]
	if !ok {
		return models.Macro{}, apperr.ErrNotFound
	}
	return m, nil
}

// GetAll returns every macro ordered by creation time.
func (s *MacroService) GetAll() []models.Macro {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// MacroUpdate is a partial update; nil fields are left unchanged.
type MacroUpdate struct {
	Name        *string
	Description *string
	Steps       *[]models.MacroStep
}

// Update applies a partial update to a macro.
func (s *MacroService) Update(id string, upd MacroUpdate) (models.Macro, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.macros[id]
	if !ok {
		return models.Macro{}, apperr.ErrNotFound
	}
	if upd.Name != nil {
		m.Name = *upd.Name
	}
	if upd.Description != nil {
		m.Description = *upd.Description
	}
	if upd.Steps != nil {
		m.Steps = ensureStepIDs(*upd.Steps)
	}
	m.UpdatedAt = time.Now().UTC()
	if err := m.Validate(); err != nil {
		return models.Macro{}, apperr.Validation(err)
	}
	s.macros[id] = m
	if err := s.persist(); err != nil {
		return m, err
	}
	return m, nil
}

// Save upserts a complete macro. The recorder uses it to persist a
// finished recording, including continuations of an existing macro.
func (s *MacroService) Save(m models.Macro) error {
	if err := m.Validate(); err != nil {
		return apperr.Validation(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macros[m.ID] = m
	return s.persist()
}

// ensureStepIDs assigns IDs to steps authored without one.
func ensureStepIDs(steps []models.MacroStep) []models.MacroStep {
	out := make([]models.MacroStep, len(steps))
	copy(out, steps)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}

// Delete removes a macro.
func (s *MacroService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.macros[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.macros, id)
	return s.persist()
}
