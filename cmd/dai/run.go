package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/daicraft/dai/internal/agent"
	"github.com/daicraft/dai/internal/config"
	"github.com/daicraft/dai/internal/graph"
	"github.com/daicraft/dai/internal/knowledge"
	"github.com/daicraft/dai/internal/llm"
	"github.com/daicraft/dai/internal/loader"
	"github.com/daicraft/dai/internal/orchestrator"
	"github.com/daicraft/dai/internal/state"
	"github.com/daicraft/dai/pkg/models"
)

var (
	runConcurrency int
	runRetries     int
	runPolicy      string
	runOutput      string
	runKnowledge   string
	runDebugLog    string
	runVars        []string
)

var runCmd = &cobra.Command{
	Use:   "run <crew-file>",
	Short: "Run a crew of agents over its dependency graph",
	Long: `Run every agent in a crew file, respecting declared dependencies.

Independent agents execute in parallel up to the concurrency limit. Each
agent's validated output is stored under its id and substituted into the
prompt templates of its dependents. Transient provider failures (rate
limits, timeouts, 5xx) are retried with exponential backoff.

The failure policy decides what a permanent failure does:
  strict:  abort the run, skip everything not yet running
  lenient: skip the failed agent's dependents, let other branches finish

Press Ctrl-C to cancel: in-flight agents are allowed to wind down and
results already produced are kept in the report.`,
	Args: cobra.ExactArgs(1),
	RunE: runCrew,
}

func init() {
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Max agents running at once (overrides crew file)")
	runCmd.Flags().IntVar(&runRetries, "retries", -1, "Retries per agent after the first attempt (overrides crew file)")
	runCmd.Flags().StringVar(&runPolicy, "policy", "", "Failure policy: strict or lenient (overrides crew file)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write the run report as JSON to this path")
	runCmd.Flags().StringVar(&runKnowledge, "knowledge", "", "Write the final knowledge store as JSON to this path")
	runCmd.Flags().StringVar(&runDebugLog, "debug-log", "", "Write a detailed run trace to this path")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Seed a knowledge key, e.g. --var project_name=payments")
}

func runCrew(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defaults, err := cfg.Run.ToRunConfig()
	if err != nil {
		return fmt.Errorf("run defaults: %w", err)
	}

	crew, err := loader.Load(args[0], defaults)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("concurrency") {
		crew.Run.MaxConcurrency = runConcurrency
	}
	if cmd.Flags().Changed("retries") {
		crew.Run.MaxRetries = runRetries
	}
	if cmd.Flags().Changed("policy") {
		crew.Run.FailurePolicy = models.FailurePolicy(runPolicy)
	}
	if err := crew.Run.Validate(); err != nil {
		return err
	}

	g, err := graph.Build(crew.Tasks, crew.Run.FailurePolicy == models.FailureLenient)
	if err != nil {
		return fmt.Errorf("building graph: %w", err)
	}

	factory := llm.NewFactory(llm.FactoryConfig{
		Anthropic: llm.AnthropicConfig{
			APIKey:     cfg.Anthropic.APIKey,
			UseBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:  cfg.Anthropic.AWSRegion,
			AWSProfile: cfg.Anthropic.AWSProfile,
		},
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
		},
	})
	store := knowledge.NewStore()
	for _, v := range runVars {
		key, value, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --var %q, expected key=value", v)
		}
		if err := store.Put(key, value, "user"); err != nil {
			return fmt.Errorf("seeding %q: %w", key, err)
		}
	}
	tracker := llm.NewTokenTracker()
	runtime := agent.NewRuntime(agent.Config{
		Providers:   factory,
		Store:       store,
		Tracker:     tracker,
		CallTimeout: crew.Run.CallTimeout,
	})

	var debug *orchestrator.DebugLogger
	if runDebugLog != "" {
		debug, err = orchestrator.NewDebugLogger(runDebugLog)
		if err != nil {
			return err
		}
		defer debug.Close()
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Graph:    g,
		Executor: runtime,
		Run:      crew.Run,
		Tracker:  tracker,
		Debug:    debug,
	})
	if err != nil {
		return err
	}

	name := crew.Name
	if name == "" {
		name = args[0]
	}
	fmt.Printf("Running crew %s (%d agents, run %s)\n\n", name, len(crew.Tasks), orch.RunID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range orch.Events() {
			printEvent(ev)
		}
	}()

	report, err := orch.Run(ctx)
	<-done
	if err != nil {
		return err
	}

	printReport(report)
	persistRun(report, name, crew.Run)

	if runKnowledge != "" {
		if err := store.Save(runKnowledge); err != nil {
			log.Printf("[dai] WARNING: saving knowledge store: %v", err)
		}
	}
	if runOutput != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := os.WriteFile(runOutput, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	if report.Status != models.RunStatusCompleted {
		return fmt.Errorf("run %s finished %s", report.RunID, report.Status)
	}
	return nil
}

// persistRun saves the report to the run database. Persistence failures
// are logged but never fail the run itself.
func persistRun(report *models.Report, crew string, cfg models.RunConfig) {
	db, err := state.OpenDefault()
	if err != nil {
		log.Printf("[dai] WARNING: opening run database: %v", err)
		return
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Printf("[dai] WARNING: migrating run database: %v", err)
		return
	}
	if err := db.SaveRun(report, crew, cfg); err != nil {
		log.Printf("[dai] WARNING: saving run: %v", err)
	}
}

var (
	stepColor    = color.New(color.FgCyan)
	okColor      = color.New(color.FgGreen)
	failColor    = color.New(color.FgRed)
	retryColor   = color.New(color.FgYellow)
	skippedColor = color.New(color.Faint)
)

func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventTaskStarted:
		if ev.Attempt > 1 {
			stepColor.Printf("  > %s running (attempt %d)\n", ev.TaskID, ev.Attempt)
		} else {
			stepColor.Printf("  > %s running\n", ev.TaskID)
		}
	case orchestrator.EventTaskRetrying:
		retryColor.Printf("  ~ %s retrying in %s: %v\n", ev.TaskID, ev.Delay, ev.Error)
	case orchestrator.EventTaskSucceeded:
		okColor.Printf("  + %s done\n", ev.TaskID)
	case orchestrator.EventTaskFailed:
		failColor.Printf("  x %s failed (%s): %v\n", ev.TaskID, ev.Message, ev.Error)
	case orchestrator.EventTaskSkipped:
		skippedColor.Printf("  - %s skipped\n", ev.TaskID)
	}
}

func printReport(report *models.Report) {
	fmt.Println()
	switch report.Status {
	case models.RunStatusCompleted:
		okColor.Printf("Run %s completed", report.RunID)
	case models.RunStatusAborted:
		failColor.Printf("Run %s aborted", report.RunID)
	default:
		retryColor.Printf("Run %s %s", report.RunID, report.Status)
	}
	fmt.Printf(": %d/%d agents succeeded in %s\n",
		report.Succeeded(), len(report.Tasks), report.Duration().Round(time.Millisecond))

	if report.InputTokens > 0 || report.OutputTokens > 0 {
		fmt.Printf("Tokens: %d in, %d out\n", report.InputTokens, report.OutputTokens)
	}

	for _, t := range report.Tasks {
		if t.Failure == nil {
			continue
		}
		failColor.Printf("  %s (%s): %s after %d attempt(s): %s\n",
			t.ID, t.Role, t.Failure.Kind, t.Failure.Attempts, t.Failure.Message)
	}
}
