package models

import (
	"fmt"
	"time"
)

// RunStatus represents the state of one orchestration run.
type RunStatus string

const (
	// RunStatusIdle indicates the run has been created but not started.
	RunStatusIdle RunStatus = "idle"
	// RunStatusRunning indicates the run is dispatching tasks.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates every task succeeded.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusPartiallyFailed indicates some tasks failed or were skipped
	// while unrelated branches completed.
	RunStatusPartiallyFailed RunStatus = "partially_failed"
	// RunStatusAborted indicates the run stopped before resolution, either
	// by strict failure policy or external cancellation.
	RunStatusAborted RunStatus = "aborted"
)

// Terminal returns true if the run status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartiallyFailed, RunStatusAborted:
		return true
	default:
		return false
	}
}

// FailurePolicy controls how a permanent task failure affects the run.
type FailurePolicy string

const (
	// FailureStrict aborts the whole run on any permanent failure.
	FailureStrict FailurePolicy = "strict"
	// FailureLenient skips dependents of a failed task but lets unrelated
	// branches run to completion.
	FailureLenient FailurePolicy = "lenient"
)

// Valid returns true if the policy is a known value.
func (p FailurePolicy) Valid() bool {
	return p == FailureStrict || p == FailureLenient
}

// RunConfig holds run-scoped configuration.
type RunConfig struct {
	// MaxConcurrency is the maximum number of tasks executing at once.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`
	// MaxRetries is the number of retries after the first attempt before a
	// retryable failure becomes permanent.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// BackoffBase is the delay before the first retry; each subsequent
	// retry doubles it.
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base"`
	// FailurePolicy is strict or lenient.
	FailurePolicy FailurePolicy `json:"failure_policy" yaml:"failure_policy"`
	// CallTimeout bounds each individual LLM call.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`
}

// Validate checks the config for values the orchestrator cannot run with.
func (c RunConfig) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("backoff_base must not be negative, got %s", c.BackoffBase)
	}
	if !c.FailurePolicy.Valid() {
		return fmt.Errorf("failure_policy must be %q or %q, got %q", FailureStrict, FailureLenient, c.FailurePolicy)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %s", c.CallTimeout)
	}
	return nil
}

// DefaultRunConfig returns the configuration used when a crew file does not
// override run settings.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxConcurrency: 4,
		MaxRetries:     3,
		BackoffBase:    500 * time.Millisecond,
		FailurePolicy:  FailureLenient,
		CallTimeout:    60 * time.Second,
	}
}

// TaskReport is the terminal record for one task in a run report.
type TaskReport struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// Role is the role name the task ran under.
	Role string `json:"role"`
	// Status is the terminal task status.
	Status TaskStatus `json:"status"`
	// Result is present iff the task succeeded.
	Result *Result `json:"result,omitempty"`
	// Failure is present iff the task permanently failed.
	Failure *Failure `json:"failure,omitempty"`
	// Attempts is the number of execution attempts made.
	Attempts int `json:"attempts"`
}

// Report is the outbound summary of a finished run.
type Report struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`
	// Status is the terminal run status.
	Status RunStatus `json:"status"`
	// Tasks holds per-task terminal records in declaration order.
	Tasks []TaskReport `json:"tasks"`
	// StartedAt is when orchestration began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the run reached a terminal status.
	FinishedAt time.Time `json:"finished_at"`
	// InputTokens is the total prompt tokens consumed by the run.
	InputTokens int64 `json:"input_tokens"`
	// OutputTokens is the total completion tokens consumed by the run.
	OutputTokens int64 `json:"output_tokens"`
}

// Succeeded returns the number of tasks that reached TaskStatusSucceeded.
func (r *Report) Succeeded() int {
	n := 0
	for _, t := range r.Tasks {
		if t.Status == TaskStatusSucceeded {
			n++
		}
	}
	return n
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
