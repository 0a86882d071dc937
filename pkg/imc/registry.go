package imc

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the register map of every supported generation
type Registry struct {
	mu   sync.RWMutex
	maps map[Generation]*RegisterMap
}

// defaultRegistry is filled with the built-in maps at init
var defaultRegistry = NewRegistry()

func init() {
	for _, m := range []*RegisterMap{
		sandyBridgeMap(),
		ivyBridgeMap(),
		haswellMap(),
		broadwellMap(),
	} {
		if err := defaultRegistry.Register(m); err != nil {
			panic(err)
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		maps: make(map[Generation]*RegisterMap),
	}
}

// DefaultRegistry returns the registry holding the built-in maps
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Lookup retrieves a map from the default registry
func Lookup(g Generation) (*RegisterMap, error) {
	return defaultRegistry.Lookup(g)
}

// Register validates a map and adds it to the registry
func (r *Registry) Register(m *RegisterMap) error {
	if m == nil {
		return fmt.Errorf("register map cannot be nil")
	}
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.maps[m.Generation]; exists {
		return fmt.Errorf("register map for %s already registered", m.Generation)
	}

	r.maps[m.Generation] = m.Clone()
	return nil
}

// Lookup retrieves a copy of the map for a generation. Changes to the copy
// never reach the registry.
func (r *Registry) Lookup(g Generation) (*RegisterMap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.maps[g]
	if !exists {
		return nil, fmt.Errorf("no register map for %s", g)
	}

	return m.Clone(), nil
}

// List returns copies of all registered maps, oldest generation first
func (r *Registry) List() []*RegisterMap {
	r.mu.RLock()
	defer r.mu.RUnlock()

	maps := make([]*RegisterMap, 0, len(r.maps))
	for _, m := range r.maps {
		maps = append(maps, m.Clone())
	}

	sort.Slice(maps, func(i, j int) bool {
		return maps[i].Generation < maps[j].Generation
	})
	return maps
}
