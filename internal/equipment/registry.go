package equipment

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides equipment management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the CRUD operations. Name lookups are the hot path: the safety
// engines resolve rule condition sources by name on every tick.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Equipment // Cached equipment by ID
	byName  map[string]string     // Name -> ID index
	cacheMu sync.RWMutex          // Protects cache and byName
	logger  Logger
}

// NewRegistry creates a new equipment registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Equipment),
		byName: make(map[string]string),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all equipment from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	items, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading equipment: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Equipment, len(items))
	r.byName = make(map[string]string, len(items))
	for i := range items {
		e := items[i]
		r.cache[e.ID] = e.DeepCopy()
		r.byName[e.Name] = e.ID
	}

	r.logger.Info("equipment cache refreshed", "count", len(items))
	return nil
}

// GetEquipment retrieves equipment by ID.
// Returns ErrEquipmentNotFound if it does not exist.
// The returned equipment is a copy; callers can safely modify it.
func (r *Registry) GetEquipment(ctx context.Context, id string) (*Equipment, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be new equipment not yet cached)
	e, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[e.ID] = e.DeepCopy()
	r.byName[e.Name] = e.ID
	r.cacheMu.Unlock()

	return e, nil
}

// GetEquipmentByName retrieves equipment by its unique name.
// Returns ErrEquipmentNotFound if it does not exist.
// The returned equipment is a copy; callers can safely modify it.
func (r *Registry) GetEquipmentByName(ctx context.Context, name string) (*Equipment, error) {
	r.cacheMu.RLock()
	id, ok := r.byName[name]
	var cached *Equipment
	if ok {
		cached = r.cache[id]
	}
	r.cacheMu.RUnlock()

	if cached != nil {
		return cached.DeepCopy(), nil
	}

	e, err := r.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[e.ID] = e.DeepCopy()
	r.byName[e.Name] = e.ID
	r.cacheMu.Unlock()

	return e, nil
}

// ListEquipment retrieves all equipment.
// The returned items are copies; callers can safely modify them.
func (r *Registry) ListEquipment(ctx context.Context) ([]Equipment, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		items := make([]Equipment, 0, len(r.cache))
		for _, e := range r.cache {
			items = append(items, *e.DeepCopy())
		}
		sortEquipment(items)
		return items, nil
	}

	return r.repo.List(ctx)
}

// ListEquipmentByType retrieves all equipment of a specific type.
// The returned items are copies; callers can safely modify them.
func (r *Registry) ListEquipmentByType(ctx context.Context, t EquipmentType) ([]Equipment, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var items []Equipment
		for _, e := range r.cache {
			if e.Type == t {
				items = append(items, *e.DeepCopy())
			}
		}
		sortEquipment(items)
		return items, nil
	}

	return r.repo.ListByType(ctx, t)
}

// CreateEquipment creates new equipment.
// It validates the equipment, generates an ID if needed, and persists it.
func (r *Registry) CreateEquipment(ctx context.Context, e *Equipment) error {
	if e.ID == "" {
		e.ID = GenerateID()
	}

	if err := ValidateEquipment(e); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, e); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[e.ID] = e.DeepCopy()
	r.byName[e.Name] = e.ID
	r.cacheMu.Unlock()

	r.logger.Info("equipment created", "id", e.ID, "name", e.Name, "type", e.Type)
	return nil
}

// UpdateEquipment updates existing equipment.
// It validates the equipment and persists the changes.
func (r *Registry) UpdateEquipment(ctx context.Context, e *Equipment) error {
	existing, err := r.GetEquipment(ctx, e.ID)
	if err != nil {
		return err
	}

	if err := ValidateEquipment(e); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, e); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if existing.Name != e.Name {
		delete(r.byName, existing.Name)
	}
	r.cache[e.ID] = e.DeepCopy()
	r.byName[e.Name] = e.ID
	r.cacheMu.Unlock()

	r.logger.Info("equipment updated", "id", e.ID, "name", e.Name)
	return nil
}

// DeleteEquipment removes equipment.
func (r *Registry) DeleteEquipment(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		delete(r.byName, cached.Name)
	}
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("equipment deleted", "id", id)
	return nil
}

// EquipmentCount returns the number of cached equipment entries.
func (r *Registry) EquipmentCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	Total   int
	Enabled int
	ByType  map[EquipmentType]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		Total:  len(r.cache),
		ByType: make(map[EquipmentType]int),
	}

	for _, e := range r.cache {
		stats.ByType[e.Type]++
		if e.Enabled {
			stats.Enabled++
		}
	}

	return stats
}

// sortEquipment orders equipment by name for stable listings.
func sortEquipment(items []Equipment) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
}
