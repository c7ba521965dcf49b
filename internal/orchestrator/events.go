// Package orchestrator drives a run: it walks the dependency graph,
// dispatches ready tasks to the agent runtime under a concurrency limit,
// applies the retry and failure policies, and emits progress events.
package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskQueued indicates a task became ready and was queued for execution.
	EventTaskQueued EventType = "task_queued"
	// EventTaskStarted indicates a task has started execution.
	EventTaskStarted EventType = "task_started"
	// EventTaskRetrying indicates a task attempt failed with a retryable
	// error and another attempt will be made after a backoff delay.
	EventTaskRetrying EventType = "task_retrying"
	// EventTaskSucceeded indicates a task completed successfully.
	EventTaskSucceeded EventType = "task_succeeded"
	// EventTaskFailed indicates a task failed permanently.
	EventTaskFailed EventType = "task_failed"
	// EventTaskSkipped indicates a task was skipped without executing.
	EventTaskSkipped EventType = "task_skipped"
	// EventRunDone indicates the entire run is complete.
	EventRunDone EventType = "run_done"
)

// Event represents an event emitted by the orchestrator.
// Events are used to render live progress and to trace a run.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// Attempt is the attempt number for started and retrying events.
	Attempt int
	// Delay is the backoff delay before the next attempt (retrying events).
	Delay time.Duration
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
