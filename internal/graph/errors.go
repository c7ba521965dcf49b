package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/daicraft/dai/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownDependency indicates an edge references a task that does not exist.
var ErrUnknownDependency = errors.New("unknown dependency")

// CycleError reports one offending cycle found during Build.
type CycleError struct {
	// Cycle lists the task IDs along the cycle, first repeated last.
	Cycle []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// Unwrap allows errors.Is(err, ErrCycleDetected).
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// UnknownDependencyError reports an edge pointing at a missing task.
type UnknownDependencyError struct {
	// TaskID is the task declaring the dependency.
	TaskID string
	// DependsOn is the missing task ID.
	DependsOn string
}

// Error implements the error interface.
func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.DependsOn)
}

// Unwrap allows errors.Is(err, ErrUnknownDependency).
func (e *UnknownDependencyError) Unwrap() error {
	return ErrUnknownDependency
}

// InvalidTransitionError indicates a status transition was requested out of
// order. This is an orchestrator bug, never an expected runtime condition.
type InvalidTransitionError struct {
	TaskID string
	From   models.TaskStatus
	To     models.TaskStatus
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for task %s: %s -> %s", e.TaskID, e.From, e.To)
}
