package circuitbreaker

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds one independent breaker per external service.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
	}
}

// Register creates a breaker for cfg.Name. Registering the same name twice is an error.
func (r *Registry) Register(cfg *Config) (*Breaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.breakers[cfg.Name]; exists {
		return nil, fmt.Errorf("breaker %q already registered", cfg.Name)
	}

	breaker, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create breaker %q: %w", cfg.Name, err)
	}

	r.breakers[cfg.Name] = breaker
	return breaker, nil
}

// Get returns the breaker registered under name.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Statuses returns a snapshot of every breaker sorted by name.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]Status, 0, len(r.breakers))
	for _, b := range r.breakers {
		statuses = append(statuses, b.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})

	return statuses
}
