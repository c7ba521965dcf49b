// Package agent executes one task at a time: it renders the role prompt,
// calls the LLM gateway, validates the response, and publishes the result
// into the knowledge store.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/daicraft/dai/internal/knowledge"
	"github.com/daicraft/dai/internal/llm"
	"github.com/daicraft/dai/pkg/models"
)

// ValidationError indicates the provider responded but the response does
// not satisfy the task's expected output kind. Treated as retryable since
// it may be transient model misbehavior.
type ValidationError struct {
	TaskID string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("task %s: validation failed: %s", e.TaskID, e.Reason)
}

// ProviderSource hands out the provider for a given model. Satisfied by
// *llm.Factory; tests substitute fakes.
type ProviderSource interface {
	ForModel(model string) (llm.Provider, error)
}

// Runtime executes tasks against the LLM gateway.
type Runtime struct {
	providers ProviderSource
	store     *knowledge.Store
	tracker   *llm.TokenTracker
	// callTimeout bounds each individual gateway call.
	callTimeout time.Duration
}

// Config configures a Runtime.
type Config struct {
	// Providers selects the gateway per model. Required.
	Providers ProviderSource
	// Store is the run's knowledge store. Required.
	Store *knowledge.Store
	// Tracker accumulates token usage. Optional.
	Tracker *llm.TokenTracker
	// CallTimeout bounds each gateway call.
	CallTimeout time.Duration
}

// NewRuntime creates a Runtime from the given config.
func NewRuntime(cfg Config) *Runtime {
	return &Runtime{
		providers:   cfg.Providers,
		store:       cfg.Store,
		tracker:     cfg.Tracker,
		callTimeout: cfg.CallTimeout,
	}
}

// Execute runs one attempt of the given task. On success the result has
// already been written to the knowledge store under the task's ID before
// Execute returns, so a subsequent status transition observes the write.
// On any failure nothing is written.
func (r *Runtime) Execute(ctx context.Context, task *models.Task) (*models.Result, error) {
	provider, err := r.providers.ForModel(task.Role.Model)
	if err != nil {
		return nil, &llm.ProviderError{
			Kind:     llm.KindInvalidModel,
			Provider: "gateway",
			Err:      err,
		}
	}

	view := r.store.SnapshotFor(task)
	values := view.Values()
	for placeholder, key := range task.Bind {
		if v, err := view.Get(key); err == nil {
			values[placeholder] = v
		}
	}
	prompt := RenderPrompt(task.Role, values)
	system := SystemPrompt(task.Role)

	callCtx := ctx
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	log.Printf("[agent] task %s: sending prompt to %s (%s)", task.ID, provider.Name(), task.Role.Model)
	res, err := provider.Send(callCtx, llm.Request{
		System: system,
		Prompt: prompt,
		Model:  task.Role.Model,
	})
	if err != nil {
		return nil, err
	}

	if err := validateOutput(task, res.Text); err != nil {
		return nil, err
	}

	if err := r.store.Put(task.ID, res.Text, task.ID); err != nil {
		// A duplicate here means the same task ran twice to completion,
		// which the orchestrator's single-writer discipline rules out.
		return nil, fmt.Errorf("store result for task %s: %w", task.ID, err)
	}

	if r.tracker != nil {
		r.tracker.Add(res.InputTokens, res.OutputTokens)
	}

	return &models.Result{
		Text:       res.Text,
		Provider:   res.Provider,
		Model:      res.Model,
		ProducedAt: time.Now(),
	}, nil
}

// validateOutput checks the response against the task's expected output
// kind: non-empty always, valid JSON for structured tasks.
func validateOutput(task *models.Task, text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{TaskID: task.ID, Reason: "empty response"}
	}
	if task.Role.Output == models.OutputJSON && !json.Valid([]byte(text)) {
		return &ValidationError{TaskID: task.ID, Reason: "response is not valid JSON"}
	}
	return nil
}
