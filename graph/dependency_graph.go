package graph

import (
	"fmt"
	"sync"
)

// NodeStatus mirrors the per-step lifecycle as seen by the graph (a subset
// of the richer StepExecutionState the persistence package owns — the graph
// only needs to know "not yet satisfied" vs "satisfied" vs "terminal" to
// compute readiness).
type NodeStatus int

const (
	NodePending NodeStatus = iota
	NodeRunning
	NodeCompleted
	NodeFailed
	NodeSkipped
	NodeCancelled
)

// edge is one dependency of a node, carrying its flavor.
type edge struct {
	from   string
	flavor EdgeFlavor
}

// node is one vertex of the DependencyGraph.
type node struct {
	id           string
	dependencies []edge
	dependents   []string
	status       NodeStatus
}

// DependencyGraph is the directed graph over steps described in spec §4.2.
// This generalizes the teacher's WorkflowDAG (orchestration/workflow_dag.go)
// with the three edge flavors (Success/Completion/Data) and a Downstream
// closure enumeration.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[string]*node
	// order preserves declaration order for stable tie-breaking in
	// TopologicalOrder and Ready.
	order []string
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{nodes: make(map[string]*node)}
}

// Build constructs a DependencyGraph from a workflow's steps. It is
// infallible after validation has run (spec §4.2); Validate below is what
// actually enforces acyclicity and reference existence.
func Build(steps []Step) *DependencyGraph {
	g := NewDependencyGraph()
	for _, s := range steps {
		g.addNode(s)
	}
	g.rebuildDependents()
	return g
}

func (g *DependencyGraph) addNode(s Step) {
	g.mu.Lock()
	defer g.mu.Unlock()

	edges := make([]edge, 0, len(s.DependsOn))
	for _, dep := range s.DependsOn {
		flavor := dep.Flavor
		if flavor == "" {
			flavor = EdgeSuccess
		}
		edges = append(edges, edge{from: dep.StepID, flavor: flavor})
	}
	// Implicit Data edges from template/step-output references, behaving as
	// EdgeSuccess per spec §4.2, deduplicated against explicit depends_on.
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		seen[e.from] = true
	}
	for _, expr := range s.Inputs {
		for _, ref := range expr.References() {
			if !seen[ref] {
				seen[ref] = true
				edges = append(edges, edge{from: ref, flavor: EdgeData})
			}
		}
	}
	if s.Condition != nil {
		for _, ref := range s.Condition.References() {
			if !seen[ref] {
				seen[ref] = true
				edges = append(edges, edge{from: ref, flavor: EdgeData})
			}
		}
	}

	if _, exists := g.nodes[s.StepID]; !exists {
		g.order = append(g.order, s.StepID)
	}
	g.nodes[s.StepID] = &node{id: s.StepID, dependencies: edges, status: NodePending}
}

func (g *DependencyGraph) rebuildDependents() {
	for _, n := range g.nodes {
		n.dependents = nil
	}
	for id, n := range g.nodes {
		for _, e := range n.dependencies {
			if up, ok := g.nodes[e.from]; ok {
				up.dependents = append(up.dependents, id)
			}
		}
	}
}

// AddBranchTasks materializes a branch's tasks into the live graph with
// implicit edges from the controller step, per spec §4.4/§9: branches are
// not pre-materialized, they are added once their controller completes.
func (g *DependencyGraph) AddBranchTasks(controller string, tasks []Step) {
	for i := range tasks {
		if len(tasks[i].DependsOn) == 0 {
			tasks[i].DependsOn = []Dependency{{StepID: controller, Flavor: EdgeCompletion}}
		}
		g.addNode(tasks[i])
	}
	g.mu.Lock()
	g.rebuildDependents()
	g.mu.Unlock()
}

// AddSteps materializes new nodes onto the live graph using whatever
// DependsOn they already declare, with no implicit controller edge. Used
// for fan-out instances (spec §4.4): their dependencies are the container
// step's own already-satisfied upstream edges, so an instance with none of
// its own is immediately ready rather than waiting on anything.
func (g *DependencyGraph) AddSteps(steps []Step) {
	for i := range steps {
		g.addNode(steps[i])
	}
	g.mu.Lock()
	g.rebuildDependents()
	g.mu.Unlock()
}

// HasCycles is a defense-in-depth check; the validator already ran a cycle
// check before the graph was built (spec §4.2).
func (g *DependencyGraph) HasCycles() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dependent := range g.nodes[id].dependents {
			switch color[dependent] {
			case gray:
				return true
			case white:
				if visit(dependent) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for id := range g.nodes {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// MissingReferences returns depends_on targets that name no declared step.
// Validate does not call it: the validator runs its own existence checks
// and only runs cycle detection once no other violation was found.
func (g *DependencyGraph) MissingReferences() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var missing []string
	for id, n := range g.nodes {
		for _, e := range n.dependencies {
			if _, ok := g.nodes[e.from]; !ok {
				missing = append(missing, fmt.Sprintf("%s depends on undeclared step %s", id, e.from))
			}
		}
	}
	return missing
}

// TopologicalOrder returns steps in topological order, ties broken by
// declaration order (spec §4.2).
func (g *DependencyGraph) TopologicalOrder() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.dependencies)
	}

	var queue []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var result []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		// Collect newly-ready dependents in declaration order for stable
		// tie-breaking rather than Go's randomized map iteration order.
		var freed []string
		for _, dependent := range g.order {
			n := g.nodes[dependent]
			for _, e := range n.dependencies {
				if e.from == current {
					inDegree[dependent]--
					if inDegree[dependent] == 0 {
						freed = append(freed, dependent)
					}
				}
			}
		}
		queue = append(queue, freed...)
	}
	return result
}

// satisfied reports whether edge e's source status satisfies e's flavor.
func satisfied(status NodeStatus, flavor EdgeFlavor) bool {
	switch flavor {
	case EdgeCompletion:
		return status == NodeCompleted || status == NodeFailed || status == NodeSkipped || status == NodeCancelled
	default: // EdgeSuccess, EdgeData
		return status == NodeCompleted || status == NodeSkipped
	}
}

// Ready returns steps neither completed nor with any unmet dependency,
// stable in topological-then-declaration order (spec §4.2, §4.4).
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		n := g.nodes[id]
		if n.status != NodePending {
			continue
		}
		allSatisfied := true
		for _, e := range n.dependencies {
			up, ok := g.nodes[e.from]
			if !ok || !satisfied(up.status, e.flavor) {
				allSatisfied = false
				break
			}
		}
		if allSatisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

// Downstream returns the full transitive closure of stepID's dependents,
// used for branch materialization bookkeeping and ContinueOnError skip
// cascades.
func (g *DependencyGraph) Downstream(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool)
	var queue []string
	if n, ok := g.nodes[stepID]; ok {
		queue = append(queue, n.dependents...)
	}
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		out = append(out, id)
		if n, ok := g.nodes[id]; ok {
			queue = append(queue, n.dependents...)
		}
	}
	return out
}

// MarkRunning, MarkCompleted, MarkFailed, MarkSkipped, MarkCancelled update a
// node's status. MarkFailed cascades a Skipped status to every dependent
// reachable only via an EdgeSuccess/EdgeData dependency on this node (spec
// §7: "downstream steps with unmet Success edges are Skipped").
func (g *DependencyGraph) MarkRunning(id string)   { g.setStatus(id, NodeRunning) }
func (g *DependencyGraph) MarkCompleted(id string) { g.setStatus(id, NodeCompleted) }
func (g *DependencyGraph) MarkCancelled(id string) { g.setStatus(id, NodeCancelled) }

func (g *DependencyGraph) MarkFailed(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok {
		n.status = NodeFailed
	}
	return g.cascadeSkip(id)
}

func (g *DependencyGraph) MarkSkipped(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok {
		n.status = NodeSkipped
	}
	return g.cascadeSkip(id)
}

// cascadeSkip must be called with g.mu held.
func (g *DependencyGraph) cascadeSkip(id string) []string {
	var skipped []string
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	for _, dependent := range n.dependents {
		dn := g.nodes[dependent]
		if dn == nil || dn.status != NodePending {
			continue
		}
		// Only cascade across EdgeSuccess/EdgeData; an EdgeCompletion
		// dependent still gets to run (it just saw the terminal state).
		dependsOnThisAsSuccess := false
		for _, e := range dn.dependencies {
			if e.from == id && e.flavor != EdgeCompletion {
				dependsOnThisAsSuccess = true
				break
			}
		}
		if !dependsOnThisAsSuccess {
			continue
		}
		dn.status = NodeSkipped
		skipped = append(skipped, dependent)
		skipped = append(skipped, g.cascadeSkip(dependent)...)
	}
	return skipped
}

func (g *DependencyGraph) setStatus(id string, status NodeStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok {
		n.status = status
	}
}

// Status returns a node's current status.
func (g *DependencyGraph) Status(id string) (NodeStatus, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return NodePending, false
	}
	return n.status, true
}

// IsComplete reports whether every node is in a terminal state.
func (g *DependencyGraph) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.status == NodePending || n.status == NodeRunning {
			return false
		}
	}
	return true
}

// HasRunning reports whether any node is currently Running.
func (g *DependencyGraph) HasRunning() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.status == NodeRunning {
			return true
		}
	}
	return false
}

// StepIDs returns every declared step id in declaration order.
func (g *DependencyGraph) StepIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// AnyFailed reports whether at least one node reached NodeFailed, used to
// decide the workflow's terminal status under ContinueOnError.
func (g *DependencyGraph) AnyFailed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.status == NodeFailed {
			return true
		}
	}
	return false
}
