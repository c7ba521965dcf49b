// Package loader reads crew files: YAML documents that describe the agents
// of a run, their dependencies, and run-level settings.
package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daicraft/dai/internal/agent"
	"github.com/daicraft/dai/pkg/models"
)

// Crew is a parsed crew file, ready to build a graph from.
type Crew struct {
	// Name labels the crew for reports and logs.
	Name string
	// Tasks holds one task per agent, in file order.
	Tasks []*models.Task
	// Run holds the effective run settings.
	Run models.RunConfig
}

// crewFile mirrors the YAML document structure.
type crewFile struct {
	Name   string      `yaml:"name"`
	Run    runSection  `yaml:"run"`
	Agents []agentSpec `yaml:"agents"`
}

// runSection overrides run defaults. Pointers distinguish "absent" from
// an explicit zero.
type runSection struct {
	MaxConcurrency *int   `yaml:"max_concurrency"`
	MaxRetries     *int   `yaml:"max_retries"`
	BackoffBase    string `yaml:"backoff_base"`
	FailurePolicy  string `yaml:"failure_policy"`
	CallTimeout    string `yaml:"call_timeout"`
}

// agentSpec is one agent entry. Role may name a built-in template; any
// inline fields override what the template provides.
type agentSpec struct {
	ID        string   `yaml:"id"`
	Role      string   `yaml:"role"`
	Name      string   `yaml:"name"`
	Backstory string   `yaml:"backstory"`
	Template  string   `yaml:"template"`
	Model     string   `yaml:"model"`
	Output    string   `yaml:"output"`
	DependsOn []string          `yaml:"depends_on"`
	Inputs    []string          `yaml:"inputs"`
	Bind      map[string]string `yaml:"bind"`
}

// Load reads and parses a crew file from disk. Settings absent from the
// file's run section fall back to defaults.
func Load(path string, defaults models.RunConfig) (*Crew, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading crew file: %w", err)
	}
	crew, err := Parse(data, defaults)
	if err != nil {
		return nil, fmt.Errorf("crew file %s: %w", path, err)
	}
	return crew, nil
}

// Parse parses a crew document and validates every agent entry.
func Parse(data []byte, defaults models.RunConfig) (*Crew, error) {
	var file crewFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("no agents defined")
	}

	run, err := file.Run.apply(defaults)
	if err != nil {
		return nil, err
	}

	crew := &Crew{Name: file.Name, Run: run}
	seen := make(map[string]bool, len(file.Agents))
	for i, spec := range file.Agents {
		task, err := spec.toTask()
		if err != nil {
			return nil, err
		}
		if seen[task.ID] {
			return nil, fmt.Errorf("agent %d: duplicate id %q", i, task.ID)
		}
		seen[task.ID] = true
		crew.Tasks = append(crew.Tasks, task)
	}
	return crew, nil
}

func (rs runSection) apply(defaults models.RunConfig) (models.RunConfig, error) {
	run := defaults
	if rs.MaxConcurrency != nil {
		run.MaxConcurrency = *rs.MaxConcurrency
	}
	if rs.MaxRetries != nil {
		run.MaxRetries = *rs.MaxRetries
	}
	if rs.BackoffBase != "" {
		d, err := time.ParseDuration(rs.BackoffBase)
		if err != nil {
			return run, fmt.Errorf("run.backoff_base: %w", err)
		}
		run.BackoffBase = d
	}
	if rs.FailurePolicy != "" {
		run.FailurePolicy = models.FailurePolicy(rs.FailurePolicy)
	}
	if rs.CallTimeout != "" {
		d, err := time.ParseDuration(rs.CallTimeout)
		if err != nil {
			return run, fmt.Errorf("run.call_timeout: %w", err)
		}
		run.CallTimeout = d
	}
	if err := run.Validate(); err != nil {
		return run, err
	}
	return run, nil
}

func (spec agentSpec) toTask() (*models.Task, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("agent with role %q: id is required", spec.Role)
	}

	var role models.Role
	if spec.Role != "" {
		builtin, err := agent.BuiltinRole(spec.Role)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.ID, err)
		}
		role = builtin
	}

	// Inline fields override the template.
	if spec.Name != "" {
		role.Name = spec.Name
	}
	if spec.Backstory != "" {
		role.Backstory = spec.Backstory
	}
	if spec.Template != "" {
		role.Template = spec.Template
	}
	if spec.Model != "" {
		role.Model = spec.Model
	}
	if spec.Output != "" {
		role.Output = models.OutputKind(spec.Output)
	}
	if role.Output == "" {
		role.Output = models.OutputText
	}
	role.Inputs = append(role.Inputs, spec.Inputs...)

	if role.Name == "" {
		return nil, fmt.Errorf("agent %s: name is required when no role template is set", spec.ID)
	}
	if role.Template == "" {
		return nil, fmt.Errorf("agent %s: prompt template is required", spec.ID)
	}
	if role.Model == "" {
		return nil, fmt.Errorf("agent %s: model is required", spec.ID)
	}
	if !role.Output.Valid() {
		return nil, fmt.Errorf("agent %s: invalid output kind %q", spec.ID, role.Output)
	}

	return &models.Task{
		ID:        spec.ID,
		Role:      role,
		DependsOn: spec.DependsOn,
		Bind:      spec.Bind,
	}, nil
}
