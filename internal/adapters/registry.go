package adapters

import (
	"sync"

	"perfeval-api/internal/shared"
)

// Registry maps model identifiers to adapter instances. Adapters are
// process-wide singletons registered at startup; the registry is
// read-mostly afterwards and safe for concurrent resolution across
// unrelated requests.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Adapter
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Adapter)}
}

// Register claims a model identifier for an adapter. Re-registering an
// identifier replaces the previous claim.
func (r *Registry) Register(model string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[model]; !exists {
		r.order = append(r.order, model)
	}
	r.entries[model] = a
}

// Resolve returns the adapter claiming the identifier, or a typed
// UnknownModelError. Callers that skip unknowns (the dispatcher) check
// the error with errors.As; callers that surface them (/api/models) can
// report the exact identifier.
func (r *Registry) Resolve(model string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.entries[model]
	if !ok {
		return nil, &shared.UnknownModelError{Model: model}
	}
	return a, nil
}

// Models lists registered identifiers in registration order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
