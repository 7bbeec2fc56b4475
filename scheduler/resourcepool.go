package scheduler

import (
	"fmt"
	"sync"

	"github.com/flowforge/flowforge/graph"
)

// ResourcePool is the mutex-guarded CPU/memory/GPU counter pool from spec
// §5. Steps declaring a ResourceRequest reserve against it before dispatch
// and release on completion; steps with no ResourceRequest never touch it.
type ResourcePool struct {
	mu sync.Mutex

	cpuTotal, cpuUsed       float64
	memoryTotal, memoryUsed int64
	gpuTotal, gpuUsed       int
}

// NewResourcePool configures total capacity for each dimension.
func NewResourcePool(cpu float64, memoryMB int64, gpu int) *ResourcePool {
	return &ResourcePool{cpuTotal: cpu, memoryTotal: memoryMB, gpuTotal: gpu}
}

// TryReserve attempts to reserve req atomically; it either grants all three
// dimensions or none (no partial reservation).
func (p *ResourcePool) TryReserve(req *graph.ResourceRequest) bool {
	if req == nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cpuUsed+req.CPU > p.cpuTotal {
		return false
	}
	if p.memoryUsed+req.Memory > p.memoryTotal {
		return false
	}
	if p.gpuUsed+req.GPU > p.gpuTotal {
		return false
	}

	p.cpuUsed += req.CPU
	p.memoryUsed += req.Memory
	p.gpuUsed += req.GPU
	return true
}

// Release returns a prior reservation to the pool.
func (p *ResourcePool) Release(req *graph.ResourceRequest) {
	if req == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cpuUsed -= req.CPU
	p.memoryUsed -= req.Memory
	p.gpuUsed -= req.GPU
}

// Snapshot returns a human-readable usage line, used by debug/status
// endpoints.
func (p *ResourcePool) Snapshot() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("cpu=%.2f/%.2f memory_mb=%d/%d gpu=%d/%d",
		p.cpuUsed, p.cpuTotal, p.memoryUsed, p.memoryTotal, p.gpuUsed, p.gpuTotal)
}
