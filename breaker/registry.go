package breaker

import "sync"

// Registry hands out one CircuitBreaker per executor_ref, created lazily
// from a shared Params template on first use (spec §4.7: breaker state is
// per executor_ref, not global).
type Registry struct {
	mu       sync.Mutex
	template Params
	breakers map[string]*CircuitBreaker
}

// NewRegistry returns a Registry whose breakers are all built from
// template, with Name overridden per executor_ref.
func NewRegistry(template Params) *Registry {
	return &Registry{template: template, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for executorRef, creating it on first access.
func (r *Registry) Get(executorRef string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[executorRef]; ok {
		return cb
	}
	p := r.template
	p.Name = executorRef
	cb := New(p)
	r.breakers[executorRef] = cb
	return cb
}

// Snapshot returns the current state of every breaker created so far,
// keyed by executor_ref, for debug/introspection surfaces.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for ref, cb := range r.breakers {
		out[ref] = cb.State()
	}
	return out
}
