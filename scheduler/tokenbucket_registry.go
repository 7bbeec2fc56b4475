package scheduler

import "sync"

// TokenBucketRegistry hands out one TokenBucket per executor_ref, mirroring
// breaker.Registry's per-ref isolation. Fan-out instances of a step share
// their parent's executor_ref and therefore the same bucket (see DESIGN.md's
// fan-out rate-limit-budget decision).
type TokenBucketRegistry struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	buckets    map[string]*TokenBucket
}

// NewTokenBucketRegistry configures the capacity/refill-rate applied to every
// executor_ref's bucket.
func NewTokenBucketRegistry(capacity, refillRate float64) *TokenBucketRegistry {
	return &TokenBucketRegistry{
		capacity:   capacity,
		refillRate: refillRate,
		buckets:    make(map[string]*TokenBucket),
	}
}

// Get returns the bucket for executorRef, creating it on first use.
func (r *TokenBucketRegistry) Get(executorRef string) *TokenBucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[executorRef]; ok {
		return b
	}
	b := NewTokenBucket(r.capacity, r.refillRate)
	r.buckets[executorRef] = b
	return b
}
