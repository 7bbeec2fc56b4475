package dispatcher

import "sync"

// Registry maps executor_ref strings to TaskExecutor instances, grounded on
// the teacher's ServiceCapabilityConfig registration pattern
// (orchestration/interfaces.go) generalized from agent capabilities to
// arbitrary task executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]TaskExecutor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]TaskExecutor)}
}

// Register binds ref to executor, called once per executor_ref at engine
// construction.
func (r *Registry) Register(ref string, executor TaskExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[ref] = executor
}

// Get resolves ref to its TaskExecutor.
func (r *Registry) Get(ref string) (TaskExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[ref]
	return ex, ok
}
