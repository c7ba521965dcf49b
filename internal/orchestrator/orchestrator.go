package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/daicraft/dai/internal/agent"
	"github.com/daicraft/dai/internal/graph"
	"github.com/daicraft/dai/internal/llm"
	"github.com/daicraft/dai/pkg/models"
)

// Executor runs a single task attempt end to end: snapshot inputs, render
// the prompt, call the provider, validate and store the output.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) (*models.Result, error)
}

// Config holds everything an Orchestrator needs for one run.
type Config struct {
	// Graph is the built dependency graph to drive.
	Graph *graph.Graph
	// Executor runs individual task attempts.
	Executor Executor
	// Run holds run-scoped settings (concurrency, retries, policy).
	Run models.RunConfig
	// Tracker, when set, contributes token totals to the final report.
	Tracker *llm.TokenTracker
	// RunID identifies the run. Generated when empty.
	RunID string
	// EventBuffer sizes the event channel. Defaults to 256.
	EventBuffer int
	// Debug, when set, receives a detailed trace of the run.
	Debug *DebugLogger
}

// Orchestrator drives one run of a task graph to a terminal state.
// The run loop is the only goroutine that mutates graph state; workers
// report outcomes over a channel and never touch the graph directly.
type Orchestrator struct {
	graph   *graph.Graph
	exec    Executor
	cfg     models.RunConfig
	tracker *llm.TokenTracker
	emitter *EventEmitter
	backoff Backoff
	runID   string
}

// New creates an Orchestrator for a single run.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Graph == nil {
		return nil, errors.New("orchestrator: graph is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("orchestrator: executor is required")
	}
	if err := cfg.Run.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.New().String()[:8]
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 256
	}
	if cfg.Debug != nil {
		setPackageLogger(cfg.Debug)
	}
	return &Orchestrator{
		graph:   cfg.Graph,
		exec:    cfg.Executor,
		cfg:     cfg.Run,
		tracker: cfg.Tracker,
		emitter: NewEventEmitter(buffer),
		backoff: Backoff{Base: cfg.Run.BackoffBase},
		runID:   runID,
	}, nil
}

// RunID returns the identifier for this run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Events returns the channel of progress events for this run.
// The channel is closed when Run returns.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// completion is a worker's terminal outcome for one task.
// Exactly one of result and failure is set.
type completion struct {
	taskID  string
	result  *models.Result
	failure *models.Failure
}

// Run drives the graph until every task is terminal or the run halts.
// It returns a report in all cases except an internal state error.
// Cancelling ctx stops new dispatches, skips pending tasks and waits for
// in-flight tasks to finish; results already produced are retained.
func (o *Orchestrator) Run(ctx context.Context) (*models.Report, error) {
	started := time.Now()
	defer o.emitter.Close()

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	completions := make(chan completion, o.cfg.MaxConcurrency)
	inflight := 0
	halted := false
	aborted := false

	// halt stops further dispatch and retires everything not yet running.
	halt := func() {
		halted = true
		cancelWorkers()
		for _, id := range o.graph.SkipPending() {
			o.emitter.Emit(Event{Type: EventTaskSkipped, TaskID: id})
		}
	}

	log.Printf("[orchestrator] run %s starting: %d tasks, concurrency=%d, policy=%s",
		o.runID, o.graph.Size(), o.cfg.MaxConcurrency, o.cfg.FailurePolicy)

	for {
		if !halted && ctx.Err() != nil {
			aborted = true
			halt()
		}

		if !halted {
			for _, id := range o.graph.ReadySet() {
				if inflight >= o.cfg.MaxConcurrency {
					break
				}
				task := o.graph.Task(id)
				if err := o.graph.MarkRunning(id); err != nil {
					return nil, err
				}
				inflight++
				debugLog("[run %s] dispatching task %s (%d in flight)", o.runID, id, inflight)
				o.emitter.Emit(Event{Type: EventTaskQueued, TaskID: id})
				go o.runTask(workerCtx, task, completions)
			}
		}

		if inflight == 0 {
			break
		}

		var c completion
		if halted {
			// Only drain remaining workers; ctx is already done or moot.
			c = <-completions
		} else {
			select {
			case c = <-completions:
			case <-ctx.Done():
				aborted = true
				halt()
				continue
			}
		}
		inflight--

		if c.failure == nil {
			if err := o.graph.MarkSucceeded(c.taskID, c.result); err != nil {
				return nil, err
			}
			debugLog("[run %s] task %s succeeded", o.runID, c.taskID)
			o.emitter.Emit(Event{Type: EventTaskSucceeded, TaskID: c.taskID})
			continue
		}

		if err := o.graph.MarkFailed(c.taskID, c.failure); err != nil {
			return nil, err
		}
		log.Printf("[orchestrator] task %s failed permanently after %d attempt(s): %s: %s",
			c.taskID, c.failure.Attempts, c.failure.Kind, c.failure.Message)
		o.emitter.Emit(Event{
			Type:    EventTaskFailed,
			TaskID:  c.taskID,
			Attempt: c.failure.Attempts,
			Message: c.failure.Kind,
			Error:   errors.New(c.failure.Message),
		})
		if halted {
			continue
		}
		if o.cfg.FailurePolicy == models.FailureStrict {
			aborted = true
			halt()
			continue
		}
		for _, id := range o.graph.SkipDependents(c.taskID) {
			o.emitter.Emit(Event{Type: EventTaskSkipped, TaskID: id})
		}
	}

	if !halted {
		// An unresolved remainder here means tasks whose dependencies can
		// never complete; retire them so the report is terminal.
		for _, id := range o.graph.SkipPending() {
			o.emitter.Emit(Event{Type: EventTaskSkipped, TaskID: id})
		}
	}

	status := o.finalStatus(aborted)
	report := o.buildReport(status, started, time.Now())
	log.Printf("[orchestrator] run %s done: %s (%d/%d succeeded in %s)",
		o.runID, status, report.Succeeded(), len(report.Tasks), report.Duration().Round(time.Millisecond))
	o.emitter.Emit(Event{Type: EventRunDone, Message: string(status)})
	return report, nil
}

// runTask executes one task with retries and reports the outcome.
// It runs in its own goroutine and communicates only over out.
func (o *Orchestrator) runTask(ctx context.Context, task *models.Task, out chan<- completion) {
	maxAttempts := o.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		task.Attempts = attempt
		o.emitter.Emit(Event{Type: EventTaskStarted, TaskID: task.ID, Attempt: attempt})

		result, err := o.exec.Execute(ctx, task)
		if err == nil {
			out <- completion{taskID: task.ID, result: result}
			return
		}
		lastErr = err

		if !retryable(err) {
			out <- completion{taskID: task.ID, failure: failureFor(err, attempt, false)}
			return
		}
		if attempt == maxAttempts {
			break
		}

		delay := o.backoff.Delay(attempt)
		debugLog("[run %s] task %s attempt %d failed (%v), retrying in %s", o.runID, task.ID, attempt, err, delay)
		o.emitter.Emit(Event{
			Type:    EventTaskRetrying,
			TaskID:  task.ID,
			Attempt: attempt,
			Delay:   delay,
			Error:   err,
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			out <- completion{taskID: task.ID, failure: failureFor(ctx.Err(), attempt, false)}
			return
		}
	}
	out <- completion{taskID: task.ID, failure: failureFor(lastErr, maxAttempts, true)}
}

// retryable reports whether another attempt could change the outcome.
// Provider errors carry their own classification; invalid output is
// retryable because the model may produce valid output on a fresh call.
func retryable(err error) bool {
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	var verr *agent.ValidationError
	return errors.As(err, &verr)
}

func failureKind(err error) string {
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		return perr.Kind.String()
	}
	var verr *agent.ValidationError
	if errors.As(err, &verr) {
		return "validation_failed"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "internal"
}

func failureFor(err error, attempts int, exhausted bool) *models.Failure {
	return &models.Failure{
		Kind:      failureKind(err),
		Message:   err.Error(),
		Attempts:  attempts,
		Exhausted: exhausted,
	}
}
