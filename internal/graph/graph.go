// Package graph provides the dependency graph driving task scheduling.
package graph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/daicraft/dai/pkg/models"
)

// Graph is a directed acyclic graph of task dependencies. Nodes are tasks,
// edges point from a task to the tasks it is blocked by. Acyclicity is
// checked once at construction; readiness is maintained incrementally so a
// completion only re-evaluates the direct dependents of the finished task.
type Graph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// order preserves declaration order for reproducible ready sets.
	order []string
	// deps maps task ID to the IDs it depends on (is blocked by).
	deps map[string][]string
	// dependents is the reverse adjacency: task ID to IDs blocked by it.
	dependents map[string][]string
	// unmet counts unsatisfied predecessors per task.
	unmet map[string]int
	// lenient controls whether a Skipped predecessor satisfies readiness.
	lenient bool
}

// Build constructs a graph from the given tasks. Tasks must have unique IDs
// and every dependency must reference a declared task. Returns a
// *CycleError if the edge set is not acyclic and a *UnknownDependencyError
// if an edge references a missing task.
func Build(tasks []*models.Task, lenient bool) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]*models.Task, len(tasks)),
		order:      make([]string, 0, len(tasks)),
		deps:       make(map[string][]string, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
		unmet:      make(map[string]int, len(tasks)),
		lenient:    lenient,
	}

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if _, exists := g.nodes[task.ID]; exists {
			return nil, fmt.Errorf("duplicate task id %s", task.ID)
		}
		g.nodes[task.ID] = task
		g.order = append(g.order, task.ID)
		g.deps[task.ID] = nil
	}

	// Second pass: build edges from DependsOn fields.
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return nil, &UnknownDependencyError{TaskID: task.ID, DependsOn: depID}
			}
			g.deps[task.ID] = append(g.deps[task.ID], depID)
			g.dependents[depID] = append(g.dependents[depID], task.ID)
		}
		g.unmet[task.ID] = len(task.DependsOn)
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}

	// Tasks with no dependencies start out ready.
	for _, id := range g.order {
		task := g.nodes[id]
		if g.unmet[id] == 0 {
			task.Status = models.TaskStatusReady
		} else {
			task.Status = models.TaskStatusPending
		}
	}

	return g, nil
}

// findCycle returns the IDs along one cycle (first repeated last), or nil if
// the graph is acyclic. Depth-first search with coloring; the gray stack
// yields the offending path.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // in progress
		black = 2 // done
	)
	colors := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = gray
		stack = append(stack, id)

		for _, depID := range g.deps[id] {
			switch colors[depID] {
			case gray:
				// Back edge: slice the stack from the repeated node.
				for i, sid := range stack {
					if sid == depID {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, depID)
					}
				}
			case white:
				if cycle := visit(depID); cycle != nil {
					return cycle
				}
			}
		}

		colors[id] = black
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, id := range g.order {
		if colors[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// ReadySet returns the IDs of all tasks eligible for dispatch now, in
// declaration order. Calling it twice without an intervening mark returns
// the identical set.
func (g *Graph) ReadySet() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.nodes[id].Status == models.TaskStatusReady {
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkRunning transitions a task from Ready to Running at dispatch time.
func (g *Graph) MarkRunning(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transition(id, models.TaskStatusReady, models.TaskStatusRunning)
}

// MarkSucceeded transitions a Running task to Succeeded and unlocks any
// direct dependents whose predecessors are now all satisfied.
func (g *Graph) MarkSucceeded(id string, result *models.Result) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.transition(id, models.TaskStatusRunning, models.TaskStatusSucceeded); err != nil {
		return err
	}
	g.nodes[id].Result = result
	g.satisfyDependents(id)
	return nil
}

// MarkFailed transitions a Running task to permanently Failed.
func (g *Graph) MarkFailed(id string, failure *models.Failure) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.transition(id, models.TaskStatusRunning, models.TaskStatusFailed); err != nil {
		return err
	}
	g.nodes[id].Failure = failure
	return nil
}

// Skip transitions a Pending or Ready task to Skipped. Under lenient policy
// a Skipped predecessor counts as satisfied, so skipping may unlock
// downstream tasks.
func (g *Graph) Skip(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.skipLocked(id)
}

// SkipDependents skips every direct dependent of the given task that has
// not been dispatched yet. Returns the IDs skipped, in declaration order.
func (g *Graph) SkipDependents(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var skipped []string
	for _, depID := range g.orderedLocked(g.dependents[id]) {
		task := g.nodes[depID]
		if task.Status == models.TaskStatusPending || task.Status == models.TaskStatusReady {
			if err := g.skipLocked(depID); err == nil {
				skipped = append(skipped, depID)
			}
		}
	}
	return skipped
}

// SkipPending skips every task that has not been dispatched yet. Used on
// strict-policy abort and cancellation. Returns the IDs skipped.
func (g *Graph) SkipPending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var skipped []string
	for _, id := range g.order {
		task := g.nodes[id]
		if task.Status == models.TaskStatusPending || task.Status == models.TaskStatusReady {
			task.Status = models.TaskStatusSkipped
			skipped = append(skipped, id)
		}
	}
	return skipped
}

// IsResolved returns true when every task is in a terminal status.
func (g *Graph) IsResolved() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		if !g.nodes[id].Status.Terminal() {
			return false
		}
	}
	return true
}

// Task returns the task for a given ID, or nil if not found.
func (g *Graph) Task(id string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Tasks returns all tasks in declaration order.
func (g *Graph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.nodes[id])
	}
	return tasks
}

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs the given task depends on.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.orderedLocked(g.dependents[id])
}

// skipLocked performs the Skip transition. Caller must hold g.mu.
func (g *Graph) skipLocked(id string) error {
	task, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if task.Status != models.TaskStatusPending && task.Status != models.TaskStatusReady {
		return &InvalidTransitionError{TaskID: id, From: task.Status, To: models.TaskStatusSkipped}
	}
	task.Status = models.TaskStatusSkipped
	if g.lenient {
		g.satisfyDependents(id)
	}
	return nil
}

// transition moves a task from one status to another, or fails with an
// InvalidTransitionError. Caller must hold g.mu.
func (g *Graph) transition(id string, from, to models.TaskStatus) error {
	task, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if task.Status != from {
		return &InvalidTransitionError{TaskID: id, From: task.Status, To: to}
	}
	task.Status = to
	return nil
}

// satisfyDependents decrements the unmet counter of each direct dependent
// and promotes those that become fully satisfied. Caller must hold g.mu.
func (g *Graph) satisfyDependents(id string) {
	for _, depID := range g.dependents[id] {
		g.unmet[depID]--
		if g.unmet[depID] == 0 && g.nodes[depID].Status == models.TaskStatusPending {
			g.nodes[depID].Status = models.TaskStatusReady
		}
	}
}

// orderedLocked sorts a set of IDs into declaration order. Caller must hold
// at least a read lock.
func (g *Graph) orderedLocked(ids []string) []string {
	if len(ids) < 2 {
		return append([]string(nil), ids...)
	}
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}
	ordered := make([]string, 0, len(ids))
	for _, id := range g.order {
		if member[id] {
			ordered = append(ordered, id)
		}
	}
	return ordered
}

// Visualize returns a simple text rendering of the graph: root tasks at the
// left margin, dependents indented beneath the tasks they wait on.
func (g *Graph) Visualize() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var b strings.Builder
	b.WriteString("Dependency Graph:\n")

	visited := make(map[string]bool)
	var render func(id string, depth int)
	render = func(id string, depth int) {
		if visited[id] {
			return
		}
		visited[id] = true
		fmt.Fprintf(&b, "%s└─ %s (%s)\n", strings.Repeat("  ", depth), id, g.nodes[id].Status)
		for _, depID := range g.orderedLocked(g.dependents[id]) {
			render(depID, depth+1)
		}
	}

	for _, id := range g.order {
		if len(g.deps[id]) == 0 {
			render(id, 0)
		}
	}
	return b.String()
}
