package llm

import (
	"fmt"
	"strings"
	"sync"
)

type registeredProvider struct {
	cfg      ProviderConfig
	provider Provider
}

// ProviderRegistry is a thread-safe registry of configured backends.
// Registration order is preserved; the dispatcher relies on it for its
// default choice and for fallback.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]registeredProvider
	order     []string
}

// NewProviderRegistry creates an empty ProviderRegistry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]registeredProvider),
	}
}

// Register adds a backend under cfg.ID (or p.Name() when cfg.ID is empty).
// Re-registering an id replaces the backend but keeps its original position.
func (r *ProviderRegistry) Register(cfg ProviderConfig, p Provider) error {
	if p == nil {
		return fmt.Errorf("provider is nil")
	}
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = p.Name()
	}
	if cfg.ID == "" {
		return fmt.Errorf("provider id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[cfg.ID]; !exists {
		r.order = append(r.order, cfg.ID)
	}
	r.providers[cfg.ID] = registeredProvider{cfg: cfg, provider: p}
	return nil
}

// Get retrieves a provider by id.
func (r *ProviderRegistry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.providers[id]
	return rp.provider, ok
}

// Config returns the configuration a provider was registered with.
func (r *ProviderRegistry) Config(id string) (ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.providers[id]
	return rp.cfg, ok
}

// List returns provider ids in registration order.
func (r *ProviderRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Unregister removes a provider from the registry.
func (r *ProviderRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return
	}
	delete(r.providers, id)
	for i, name := range r.order {
		if name == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered providers.
func (r *ProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
