// Package execctx holds the per-execution ExecutionContext and the
// "${{ }}" template/expression engine used to resolve step inputs, step
// conditions, and workflow outputs (spec §4.3).
package execctx

import "sync"

// Context is the live, per-execution container of workflow inputs, step
// outputs, and run metadata. Spec §5 asks for a per-key-cell concurrent
// map rather than one engine-wide lock, since many steps write distinct
// keys concurrently; sync.Map's read-mostly characteristics fit a
// write-once-per-key/read-many access pattern better than a mutex-guarded
// plain map would under fan-out.
type Context struct {
	inputs sync.Map // string -> interface{}
	steps  sync.Map // string -> *sync.Map (output name -> interface{})
	meta   sync.Map // string -> interface{}

	execID string
}

// New returns an empty Context for the given execution id.
func New(execID string) *Context {
	return &Context{execID: execID}
}

// ExecutionID returns the owning execution's id. The template engine does
// not expose it to expressions.
func (c *Context) ExecutionID() string {
	return c.execID
}

// SetInput binds a workflow input value.
func (c *Context) SetInput(name string, value interface{}) {
	c.inputs.Store(name, value)
}

// Input returns a workflow input value, reporting whether it was bound.
func (c *Context) Input(name string) (interface{}, bool) {
	return c.inputs.Load(name)
}

// stepOutputs returns (creating if absent) the per-step output cell.
func (c *Context) stepOutputs(stepID string) *sync.Map {
	v, _ := c.steps.LoadOrStore(stepID, &sync.Map{})
	return v.(*sync.Map)
}

// SetStepOutput binds one named output of stepID. Safe for concurrent use
// across distinct steps and distinct output names within a step.
func (c *Context) SetStepOutput(stepID, name string, value interface{}) {
	c.stepOutputs(stepID).Store(name, value)
}

// StepOutput returns one named output of stepID, reporting whether it has
// been bound yet.
func (c *Context) StepOutput(stepID, name string) (interface{}, bool) {
	cell, ok := c.steps.Load(stepID)
	if !ok {
		return nil, false
	}
	return cell.(*sync.Map).Load(name)
}

// StepOutputs returns a snapshot of every output bound for stepID so far.
func (c *Context) StepOutputs(stepID string) map[string]interface{} {
	cell, ok := c.steps.Load(stepID)
	if !ok {
		return nil
	}
	out := make(map[string]interface{})
	cell.(*sync.Map).Range(func(k, v interface{}) bool {
		out[k.(string)] = v
		return true
	})
	return out
}

// HasStep reports whether any output has been recorded for stepID. Edge
// satisfaction is decided by graph.DependencyGraph, not by this method.
func (c *Context) HasStep(stepID string) bool {
	_, ok := c.steps.Load(stepID)
	return ok
}

// SetMetadata / Metadata expose run-scoped bookkeeping (trace id,
// workflow name/version, start time) distinct from step outputs.
func (c *Context) SetMetadata(key string, value interface{}) {
	c.meta.Store(key, value)
}

func (c *Context) Metadata(key string) (interface{}, bool) {
	return c.meta.Load(key)
}

// snapshotInputs / snapshotSteps give the template engine a plain-map view
// to hand to the Lua VM without leaking sync.Map internals.
func (c *Context) snapshotInputs() map[string]interface{} {
	out := make(map[string]interface{})
	c.inputs.Range(func(k, v interface{}) bool {
		out[k.(string)] = v
		return true
	})
	return out
}

func (c *Context) snapshotSteps() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{})
	c.steps.Range(func(k, v interface{}) bool {
		stepID := k.(string)
		cell := v.(*sync.Map)
		m := make(map[string]interface{})
		cell.Range(func(k2, v2 interface{}) bool {
			m[k2.(string)] = v2
			return true
		})
		out[stepID] = m
		return true
	})
	return out
}
