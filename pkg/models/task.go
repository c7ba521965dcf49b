package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting on dependencies.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady indicates all dependencies are satisfied and the task
	// is eligible for dispatch.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusRunning indicates the task has been dispatched to an agent.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusSucceeded indicates the task completed and produced a result.
	TaskStatusSucceeded TaskStatus = "succeeded"
	// TaskStatusFailed indicates the task permanently failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the task was never dispatched because an
	// upstream task failed or the run was aborted.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is one a task never leaves.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// OutputKind declares the shape an agent's response must take.
type OutputKind string

const (
	// OutputText accepts any non-empty free-text response.
	OutputText OutputKind = "text"
	// OutputJSON requires the response to be a valid JSON document.
	OutputJSON OutputKind = "json"
)

// Valid returns true if the output kind is a known value.
func (k OutputKind) Valid() bool {
	return k == OutputText || k == OutputJSON
}

// Role describes the persona an agent assumes for one task.
type Role struct {
	// Name is the human-readable role name (e.g. "Product Manager").
	Name string `json:"name" yaml:"name"`
	// Backstory is prepended to every prompt to establish the persona.
	Backstory string `json:"backstory" yaml:"backstory"`
	// Template is the prompt template with {{key}} placeholders.
	Template string `json:"template" yaml:"template"`
	// Inputs lists named knowledge keys this role reads beyond its
	// predecessors' outputs.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	// Output is the expected response shape.
	Output OutputKind `json:"output" yaml:"output"`
	// Model is the LLM model identifier used for this role.
	Model string `json:"model" yaml:"model"`
}

// Result holds the payload of a succeeded task.
type Result struct {
	// Text is the validated response text from the provider.
	Text string `json:"text"`
	// Provider is the name of the provider that produced the text.
	Provider string `json:"provider"`
	// Model is the model that produced the text.
	Model string `json:"model"`
	// ProducedAt is when the result was accepted.
	ProducedAt time.Time `json:"produced_at"`
}

// Failure records why a task permanently failed.
type Failure struct {
	// Kind is the error classification (e.g. "rate_limited", "auth").
	Kind string `json:"kind"`
	// Message is the final error message.
	Message string `json:"message"`
	// Attempts is the total number of attempts made.
	Attempts int `json:"attempts"`
	// Exhausted is true when the failure came from retry exhaustion
	// rather than a non-retryable classification.
	Exhausted bool `json:"exhausted"`
}

// Task represents one unit of role-specific work in a run.
type Task struct {
	// ID is the unique identifier for this task within a run.
	ID string `json:"id"`
	// Role is the persona descriptor used to render the prompt.
	Role Role `json:"role"`
	// DependsOn lists task IDs whose outputs this task consumes.
	DependsOn []string `json:"depends_on,omitempty"`
	// Bind maps template placeholders to knowledge keys, so a template
	// written against semantic names ("requirements") can consume a
	// predecessor's output stored under its task ID.
	Bind map[string]string `json:"bind,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Result is present iff the task succeeded.
	Result *Result `json:"result,omitempty"`
	// Failure is present iff the task permanently failed.
	Failure *Failure `json:"failure,omitempty"`
	// Attempts is the number of execution attempts made so far.
	Attempts int `json:"attempts,omitempty"`
}

// InputKeys returns every knowledge key this task may read: its
// predecessors' outputs, any named shared keys from the role, and any
// keys referenced through Bind.
func (t *Task) InputKeys() []string {
	keys := make([]string, 0, len(t.DependsOn)+len(t.Role.Inputs)+len(t.Bind))
	keys = append(keys, t.DependsOn...)
	keys = append(keys, t.Role.Inputs...)
	for _, key := range t.Bind {
		keys = append(keys, key)
	}
	return keys
}
