// Package registry holds the in-memory target and macro collections,
// backed by the whole-collection store.
package registry

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/verho/replayd/internal/apperr"
	"github.com/verho/replayd/internal/display"
	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/simulate"
	"github.com/verho/replayd/internal/store"
)

// DisplaysFunc returns the live monitor layout.
type DisplaysFunc func() ([]models.Display, error)

// TargetService is the CRUD store of named coordinate anchors.
// Single-writer: the mutex serializes mutations; no concurrent writers
// are expected.
type TargetService struct {
	mu       sync.Mutex
	provider store.Provider
	sim      *simulate.Simulator
	displays DisplaysFunc
	logger   *slog.Logger
	targets  map[string]models.Target
}

// NewTargetService loads the target collection. A load failure degrades
// to an empty collection rather than failing startup.
func NewTargetService(p store.Provider, sim *simulate.Simulator, displays DisplaysFunc, logger *slog.Logger) *TargetService {
	s := &TargetService{
		provider: p,
		sim:      sim,
		displays: displays,
		logger:   logger,
		targets:  make(map[string]models.Target),
	}
	if err := s.Reload(); err != nil {
		logger.Warn("targets: load failed, starting empty", slog.String("error", err.Error()))
	}
	return s
}

// Reload replaces the in-memory collection from the store. Used at
// startup and by the data-dir watcher after external edits.
func (s *TargetService) Reload() error {
	data, err := s.provider.ReadCollection(store.TargetsCollection)
	if err != nil {
		return apperr.Persistence(store.TargetsCollection, err)
	}
	var list []models.Target
	if err := json.Unmarshal(data, &list); err != nil {
		return apperr.Persistence(store.TargetsCollection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = make(map[string]models.Target, len(list))
	for _, t := range list {
		s.targets[t.ID] = t
	}
	return nil
}

// persist rewrites the whole collection. Caller holds the mutex.
// In-memory state is not rolled back when the write fails.
func (s *TargetService) persist() error {
	list := s.sortedLocked()
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return apperr.Persistence(store.TargetsCollection, err)
	}
	if err := s.provider.WriteCollection(store.TargetsCollection, data); err != nil {
		return apperr.Persistence(store.TargetsCollection, err)
	}
	return nil
}

func (s *TargetService) sortedLocked() []models.Target {
	list := make([]models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Create validates and stores a new target.
func (s *TargetService) Create(name string, coords models.Coordinates, clickType models.ClickType, clickCount int) (models.Target, error) {
	t := models.NewTarget(name, coords, clickType, clickCount)
	if err := t.Validate(); err != nil {
		return models.Target{}, apperr.Validation(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[t.ID] = t
	if err := s.persist(); err != nil {
		return t, err
	}
	return t, nil
}

// Get returns a target by ID.
func (s *TargetService) Get(id string) (models.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return models.Target{}, apperr.ErrNotFound
	}
	return t, nil
}

// GetAll returns every target ordered by creation time.
func (s *TargetService) GetAll() []models.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// TargetUpdate is a partial update; nil fields are left unchanged.
type TargetUpdate struct {
	Name        *string
	Coordinates *models.Coordinates
	ClickType   *models.ClickType
	ClickCount  *int
}

// Update applies a partial update to a target.
func (s *TargetService) Update(id string, upd TargetUpdate) (models.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return models.Target{}, apperr.ErrNotFound
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Coordinates != nil {
		t.Coordinates = *upd.Coordinates
	}
	if upd.ClickType != nil {
		t.ClickType = *upd.ClickType
	}
	if upd.ClickCount != nil {
		t.ClickCount = *upd.ClickCount
	}
	t.UpdatedAt = time.Now().UTC()
	if err := t.Validate(); err != nil {
		return models.Target{}, apperr.Validation(err)
	}
	s.targets[id] = t
	if err := s.persist(); err != nil {
		return t, err
	}
	return t, nil
}

// Delete removes a target.
func (s *TargetService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.targets, id)
	return s.persist()
}

// ClearAll removes every target.
func (s *TargetService) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = make(map[string]models.Target)
	return s.persist()
}

// Test resolves the target against the live display topology and issues
// its configured click at the resolved desktop-global point.
func (s *TargetService) Test(id string) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}
	ds, err := s.displays()
	if err != nil {
		return apperr.Simulation("displays", err)
	}
	gx, gy, ok := display.LocalToGlobal(t.Coordinates, ds)
	if !ok {
		return apperr.Simulation("resolve target", errNoDisplays)
	}
	return s.sim.Click(gx, gy, simulate.ClickOptions{
		ClickType:  t.ClickType,
		ClickCount: t.ClickCount,
		Smooth:     true,
	})
}
