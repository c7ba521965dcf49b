package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/daicraft/dai/internal/agent"
	"github.com/daicraft/dai/internal/graph"
	"github.com/daicraft/dai/internal/llm"
	"github.com/daicraft/dai/pkg/models"
)

func task(id string, deps ...string) *models.Task {
	return &models.Task{
		ID: id,
		Role: models.Role{
			Name:     id,
			Template: "work on {{topic}}",
			Output:   models.OutputText,
			Model:    "claude-sonnet-4-5",
		},
		DependsOn: deps,
	}
}

func fastConfig(policy models.FailurePolicy, retries int) models.RunConfig {
	return models.RunConfig{
		MaxConcurrency: 4,
		MaxRetries:     retries,
		BackoffBase:    time.Millisecond,
		FailurePolicy:  policy,
		CallTimeout:    time.Second,
	}
}

// scriptExec runs a per-task script of outcomes: each Execute call pops the
// next error for the task, succeeding once the script runs out. It records
// "start" and "end" markers so tests can verify dispatch ordering.
type scriptExec struct {
	mu      sync.Mutex
	scripts map[string][]error
	calls   map[string]int
	log     []string
	block   map[string]bool
}

func newScriptExec() *scriptExec {
	return &scriptExec{
		scripts: make(map[string][]error),
		calls:   make(map[string]int),
		block:   make(map[string]bool),
	}
}

func (s *scriptExec) fail(id string, errs ...error) {
	s.scripts[id] = errs
}

func (s *scriptExec) Execute(ctx context.Context, t *models.Task) (*models.Result, error) {
	s.mu.Lock()
	s.calls[t.ID]++
	s.log = append(s.log, "start "+t.ID)
	var err error
	if script := s.scripts[t.ID]; len(script) > 0 {
		err = script[0]
		s.scripts[t.ID] = script[1:]
	}
	blocked := s.block[t.ID]
	s.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.log = append(s.log, "end "+t.ID)
	s.mu.Unlock()
	return &models.Result{Text: "out:" + t.ID, Provider: "fake", Model: t.Role.Model, ProducedAt: time.Now()}, nil
}

func (s *scriptExec) callCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *scriptExec) logIndex(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.log {
		if m == marker {
			return i
		}
	}
	return -1
}

func run(t *testing.T, tasks []*models.Task, cfg models.RunConfig, exec Executor) (*models.Report, *graph.Graph) {
	t.Helper()
	g, err := graph.Build(tasks, cfg.FailurePolicy == models.FailureLenient)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	o, err := New(Config{Graph: g, Executor: exec, Run: cfg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	go func() {
		for range o.Events() {
		}
	}()
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return report, g
}

func TestRunLinearChain(t *testing.T) {
	exec := newScriptExec()
	tasks := []*models.Task{task("a"), task("b", "a"), task("c", "b")}
	report, _ := run(t, tasks, fastConfig(models.FailureLenient, 0), exec)

	if report.Status != models.RunStatusCompleted {
		t.Errorf("Status = %s, want %s", report.Status, models.RunStatusCompleted)
	}
	if report.Succeeded() != 3 {
		t.Errorf("Succeeded() = %d, want 3", report.Succeeded())
	}
	for _, pair := range [][2]string{{"a", "b"}, {"b", "c"}} {
		if exec.logIndex("end "+pair[0]) > exec.logIndex("start "+pair[1]) {
			t.Errorf("task %s started before %s finished", pair[1], pair[0])
		}
	}
}

func TestRunDiamondOrdering(t *testing.T) {
	exec := newScriptExec()
	tasks := []*models.Task{task("a"), task("b", "a"), task("c", "a"), task("d", "b", "c")}
	report, _ := run(t, tasks, fastConfig(models.FailureLenient, 0), exec)

	if report.Status != models.RunStatusCompleted {
		t.Fatalf("Status = %s, want %s", report.Status, models.RunStatusCompleted)
	}
	dStart := exec.logIndex("start d")
	for _, dep := range []string{"b", "c"} {
		if exec.logIndex("end "+dep) > dStart {
			t.Errorf("d started before %s finished", dep)
		}
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	current, peak := 0, 0
	exec := execFunc(func(ctx context.Context, tk *models.Task) (*models.Result, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return &models.Result{Text: "ok"}, nil
	})

	tasks := make([]*models.Task, 0, 8)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		tasks = append(tasks, task(id))
	}
	cfg := fastConfig(models.FailureLenient, 0)
	cfg.MaxConcurrency = 2
	report, _ := run(t, tasks, cfg, exec)

	if report.Status != models.RunStatusCompleted {
		t.Errorf("Status = %s, want %s", report.Status, models.RunStatusCompleted)
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak)
	}
}

type execFunc func(ctx context.Context, t *models.Task) (*models.Result, error)

func (f execFunc) Execute(ctx context.Context, t *models.Task) (*models.Result, error) {
	return f(ctx, t)
}

func TestRunRetriesUntilExhausted(t *testing.T) {
	exec := newScriptExec()
	rateLimited := &llm.ProviderError{Kind: llm.KindRateLimited, Provider: "fake", Err: errors.New("429")}
	exec.fail("a", rateLimited, rateLimited, rateLimited, rateLimited)

	report, g := run(t, []*models.Task{task("a")}, fastConfig(models.FailureLenient, 3), exec)

	if got := exec.callCount("a"); got != 4 {
		t.Errorf("attempts = %d, want 4 (1 initial + 3 retries)", got)
	}
	a := g.Task("a")
	if a.Status != models.TaskStatusFailed {
		t.Errorf("Status = %s, want %s", a.Status, models.TaskStatusFailed)
	}
	if a.Failure == nil || !a.Failure.Exhausted {
		t.Errorf("Failure = %+v, want exhausted", a.Failure)
	}
	if a.Failure.Kind != "rate_limited" {
		t.Errorf("Failure.Kind = %s, want rate_limited", a.Failure.Kind)
	}
	if report.Status != models.RunStatusPartiallyFailed {
		t.Errorf("Status = %s, want %s", report.Status, models.RunStatusPartiallyFailed)
	}
}

func TestRunRecoversAfterTransientFailure(t *testing.T) {
	exec := newScriptExec()
	exec.fail("a", &llm.ProviderError{Kind: llm.KindTimeout, Provider: "fake", Err: errors.New("deadline")})

	report, _ := run(t, []*models.Task{task("a"), task("b", "a")}, fastConfig(models.FailureLenient, 2), exec)

	if got := exec.callCount("a"); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
	if report.Status != models.RunStatusCompleted {
		t.Errorf("Status = %s, want %s", report.Status, models.RunStatusCompleted)
	}
}

func TestRunNonRetryableFailsImmediately(t *testing.T) {
	exec := newScriptExec()
	exec.fail("a", &llm.ProviderError{Kind: llm.KindAuth, Provider: "fake", Err: errors.New("bad key")})

	_, g := run(t, []*models.Task{task("a")}, fastConfig(models.FailureLenient, 5), exec)

	if got := exec.callCount("a"); got != 1 {
		t.Errorf("attempts = %d, want 1 for non-retryable error", got)
	}
	a := g.Task("a")
	if a.Failure == nil || a.Failure.Kind != "auth" || a.Failure.Exhausted {
		t.Errorf("Failure = %+v, want kind auth, not exhausted", a.Failure)
	}
}

func TestRunRetriesInvalidOutput(t *testing.T) {
	exec := newScriptExec()
	exec.fail("a", &agent.ValidationError{TaskID: "a", Reason: "empty response"})

	report, _ := run(t, []*models.Task{task("a")}, fastConfig(models.FailureLenient, 1), exec)

	if got := exec.callCount("a"); got != 2 {
		t.Errorf("attempts = %d, want 2 (invalid output is retryable)", got)
	}
	if report.Status != models.RunStatusCompleted {
		t.Errorf("Status = %s, want %s", report.Status, models.RunStatusCompleted)
	}
}

func TestRunStrictPolicyAborts(t *testing.T) {
	exec := newScriptExec()
	exec.fail("b", &llm.ProviderError{Kind: llm.KindAuth, Provider: "fake", Err: errors.New("bad key")})

	tasks := []*models.Task{task("a"), task("b", "a"), task("c", "b"), task("d", "a")}
	cfg := fastConfig(models.FailureStrict, 0)
	cfg.MaxConcurrency = 1
	report, g := run(t, tasks, cfg, exec)

	if report.Status != models.RunStatusAborted {
		t.Errorf("Status = %s, want %s", report.Status, models.RunStatusAborted)
	}
	if g.Task("a").Status != models.TaskStatusSucceeded {
		t.Errorf("a.Status = %s, want succeeded result retained", g.Task("a").Status)
	}
	for _, id := range []string{"c", "d"} {
		if got := g.Task(id).Status; got != models.TaskStatusSkipped {
			t.Errorf("%s.Status = %s, want %s", id, got, models.TaskStatusSkipped)
		}
	}
}

func TestRunLenientPolicySkipsDependentsOnly(t *testing.T) {
	exec := newScriptExec()
	exec.fail("b", &llm.ProviderError{Kind: llm.KindAuth, Provider: "fake", Err: errors.New("bad key")})

	tasks := []*models.Task{task("a"), task("b", "a"), task("c", "b"), task("d", "a")}
	report, g := run(t, tasks, fastConfig(models.FailureLenient, 0), exec)

	if report.Status != models.RunStatusPartiallyFailed {
		t.Errorf("Status = %s, want %s", report.Status, models.RunStatusPartiallyFailed)
	}
	if g.Task("c").Status != models.TaskStatusSkipped {
		t.Errorf("c.Status = %s, want %s", g.Task("c").Status, models.TaskStatusSkipped)
	}
	if g.Task("d").Status != models.TaskStatusSucceeded {
		t.Errorf("d.Status = %s, want unrelated branch to complete", g.Task("d").Status)
	}
}

func TestRunLenientSkippedSatisfiesDownstream(t *testing.T) {
	exec := newScriptExec()
	exec.fail("b", &llm.ProviderError{Kind: llm.KindAuth, Provider: "fake", Err: errors.New("bad key")})

	// d depends on skipped c and succeeded a; lenient treats skipped as
	// satisfied, so d still runs.
	tasks := []*models.Task{task("a"), task("b"), task("c", "b"), task("d", "a", "c")}
	report, g := run(t, tasks, fastConfig(models.FailureLenient, 0), exec)

	if g.Task("d").Status != models.TaskStatusSucceeded {
		t.Errorf("d.Status = %s, want %s", g.Task("d").Status, models.TaskStatusSucceeded)
	}
	if report.Status != models.RunStatusPartiallyFailed {
		t.Errorf("Status = %s, want %s", report.Status, models.RunStatusPartiallyFailed)
	}
}

func TestRunCancellation(t *testing.T) {
	exec := newScriptExec()
	exec.block["b"] = true

	tasks := []*models.Task{task("a"), task("b", "a"), task("c", "b")}
	g, err := graph.Build(tasks, true)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	o, err := New(Config{Graph: g, Executor: exec, Run: fastConfig(models.FailureLenient, 0)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	go func() {
		for range o.Events() {
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Wait for b to be dispatched, then cancel the run.
		for exec.callCount("b") == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	report, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != models.RunStatusAborted {
		t.Errorf("Status = %s, want %s", report.Status, models.RunStatusAborted)
	}
	if g.Task("a").Status != models.TaskStatusSucceeded {
		t.Errorf("a.Status = %s, want succeeded result retained", g.Task("a").Status)
	}
	if g.Task("c").Status != models.TaskStatusSkipped {
		t.Errorf("c.Status = %s, want %s", g.Task("c").Status, models.TaskStatusSkipped)
	}
	if !g.Task("b").Status.Terminal() {
		t.Errorf("b.Status = %s, want terminal", g.Task("b").Status)
	}
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	exec := newScriptExec()
	g, err := graph.Build([]*models.Task{task("a")}, true)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	o, err := New(Config{Graph: g, Executor: exec, Run: fastConfig(models.FailureLenient, 0)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range o.Events() {
			events = append(events, ev)
		}
	}()
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	<-done

	want := []EventType{EventTaskQueued, EventTaskStarted, EventTaskSucceeded, EventRunDone}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Errorf("events[%d].Type = %s, want %s", i, events[i].Type, typ)
		}
	}
	if events[len(events)-1].Message != string(models.RunStatusCompleted) {
		t.Errorf("run_done message = %s, want %s", events[len(events)-1].Message, models.RunStatusCompleted)
	}
}

func TestRunReportDeclarationOrder(t *testing.T) {
	exec := newScriptExec()
	tasks := []*models.Task{task("m"), task("a", "m"), task("z", "m")}
	report, _ := run(t, tasks, fastConfig(models.FailureLenient, 0), exec)

	want := []string{"m", "a", "z"}
	for i, id := range want {
		if report.Tasks[i].ID != id {
			t.Errorf("Tasks[%d].ID = %s, want %s", i, report.Tasks[i].ID, id)
		}
	}
}

// TestRunRandomDAGs generates seeded random graphs with injected permanent
// failures and checks two properties on every trial: all tasks end in a
// terminal state, and no task starts before each dependency has either
// finished successfully or never ran at all.
func TestRunRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	authErr := &llm.ProviderError{Kind: llm.KindAuth, Provider: "fake", Err: errors.New("bad key")}

	for trial := 0; trial < 20; trial++ {
		n := 5 + rng.Intn(10)
		tasks := make([]*models.Task, 0, n)
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					deps = append(deps, fmt.Sprintf("t%d", j))
				}
			}
			tasks = append(tasks, task(fmt.Sprintf("t%d", i), deps...))
		}

		exec := newScriptExec()
		for i := 0; i < n; i++ {
			if rng.Intn(5) == 0 {
				exec.fail(fmt.Sprintf("t%d", i), authErr)
			}
		}

		_, g := run(t, tasks, fastConfig(models.FailureLenient, 0), exec)

		for _, tk := range g.Tasks() {
			if !tk.Status.Terminal() {
				t.Fatalf("trial %d: task %s ended non-terminal: %s", trial, tk.ID, tk.Status)
			}
		}
		for _, tk := range tasks {
			startIdx := exec.logIndex("start " + tk.ID)
			if startIdx < 0 {
				continue
			}
			for _, dep := range tk.DependsOn {
				endIdx := exec.logIndex("end " + dep)
				if endIdx >= 0 && endIdx < startIdx {
					continue // dependency finished first
				}
				if exec.logIndex("start "+dep) < 0 {
					continue // dependency was skipped, never dispatched
				}
				t.Fatalf("trial %d: task %s started before dependency %s resolved", trial, tk.ID, dep)
			}
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{20, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.Emit(Event{Type: EventTaskQueued})
	e.Emit(Event{Type: EventTaskQueued}) // nobody draining, dropped after timeout
	if got := e.DroppedCount(); got != 1 {
		t.Errorf("DroppedCount() = %d, want 1", got)
	}
}
