package dlq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowforge/flowforge/graph"
)

// CacheStore holds the most recent successful output per cache key, backing
// the Cache fallback strategy (spec §4.9: "serve the last successful result
// if younger than max_age").
type CacheStore interface {
	Get(ctx context.Context, key string) (value map[string]interface{}, at time.Time, ok bool)
	Set(ctx context.Context, key string, value map[string]interface{})
}

type cacheEntry struct {
	value map[string]interface{}
	at    time.Time
}

// MemoryCache is an in-process CacheStore.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (map[string]interface{}, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e.value, e.at, ok
}

func (c *MemoryCache) Set(_ context.Context, key string, value map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, at: time.Now()}
}

// CustomHandlerFunc implements the Custom fallback strategy: a named,
// caller-registered function producing a substitute output.
type CustomHandlerFunc func(ctx context.Context, stepID string, originalErr error) (map[string]interface{}, error)

// CustomHandlerRegistry resolves Fallback.CustomHandler names to functions.
type CustomHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CustomHandlerFunc
}

// NewCustomHandlerRegistry returns an empty registry.
func NewCustomHandlerRegistry() *CustomHandlerRegistry {
	return &CustomHandlerRegistry{handlers: make(map[string]CustomHandlerFunc)}
}

func (r *CustomHandlerRegistry) Register(name string, fn CustomHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

func (r *CustomHandlerRegistry) Get(name string) (CustomHandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// AlternativeRunner executes a step against a substitute executor_ref, for
// the Alternative fallback strategy. The dispatcher supplies this as a
// closure over its own RunStep, avoiding a dlq<->dispatcher import cycle.
type AlternativeRunner func(ctx context.Context, executorRef string) (map[string]interface{}, error)

// Resolver applies a step's Fallback configuration once its retries are
// exhausted and the error is fallback-eligible (core.Policy, spec §7).
type Resolver struct {
	cache  CacheStore
	custom *CustomHandlerRegistry
}

// NewResolver wires a Resolver. Either argument may be nil if the
// corresponding strategy is never used.
func NewResolver(cache CacheStore, custom *CustomHandlerRegistry) *Resolver {
	return &Resolver{cache: cache, custom: custom}
}

// Resolve returns (output, applied, err). applied is false when fb is nil
// or FallbackNone — the caller should proceed to DLQ enqueue. For
// FallbackSkip, applied is true with a nil output. The engine's
// fallbackRunner returns that nil output as a successful run, so the step
// is marked Completed with no outputs; it is not marked Skipped.
func (r *Resolver) Resolve(ctx context.Context, fb *graph.Fallback, stepID, cacheKey string, originalErr error, runAlternative AlternativeRunner) (map[string]interface{}, bool, error) {
	if fb == nil || fb.Kind == graph.FallbackNone {
		return nil, false, nil
	}

	switch fb.Kind {
	case graph.FallbackCache:
		if r.cache == nil {
			return nil, false, fmt.Errorf("step %q: cache fallback requested but no CacheStore configured", stepID)
		}
		value, at, ok := r.cache.Get(ctx, cacheKey)
		if !ok {
			return nil, false, fmt.Errorf("step %q: no cached value available for fallback", stepID)
		}
		if fb.MaxAge > 0 && time.Since(at) > fb.MaxAge {
			return nil, false, fmt.Errorf("step %q: cached value older than max_age", stepID)
		}
		return value, true, nil

	case graph.FallbackAlternative:
		if runAlternative == nil {
			return nil, false, fmt.Errorf("step %q: alternative fallback requested but no runner configured", stepID)
		}
		out, err := runAlternative(ctx, fb.AlternativeExecutorRef)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil

	case graph.FallbackDefault:
		if dv, ok := fb.DefaultValue.(map[string]interface{}); ok {
			return dv, true, nil
		}
		return map[string]interface{}{"value": fb.DefaultValue}, true, nil

	case graph.FallbackSkip:
		return nil, true, nil

	case graph.FallbackCustom:
		if r.custom == nil {
			return nil, false, fmt.Errorf("step %q: custom fallback requested but no registry configured", stepID)
		}
		fn, ok := r.custom.Get(fb.CustomHandler)
		if !ok {
			return nil, false, fmt.Errorf("step %q: no custom fallback handler registered for %q", stepID, fb.CustomHandler)
		}
		out, err := fn(ctx, stepID, originalErr)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil

	default:
		return nil, false, nil
	}
}

// RecordSuccess stores a successful step output for future Cache fallbacks.
// Callers invoke this after every successful execution of a step whose
// Fallback.Kind is Cache.
func (r *Resolver) RecordSuccess(ctx context.Context, cacheKey string, value map[string]interface{}) {
	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, value)
	}
}
