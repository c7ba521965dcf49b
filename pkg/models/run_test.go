package models

import (
	"testing"
	"time"
)

func TestRunConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr bool
	}{
		{"defaults are valid", func(c *RunConfig) {}, false},
		{"zero concurrency", func(c *RunConfig) { c.MaxConcurrency = 0 }, true},
		{"negative retries", func(c *RunConfig) { c.MaxRetries = -1 }, true},
		{"zero retries allowed", func(c *RunConfig) { c.MaxRetries = 0 }, false},
		{"negative backoff", func(c *RunConfig) { c.BackoffBase = -time.Second }, true},
		{"bad policy", func(c *RunConfig) { c.FailurePolicy = "maybe" }, true},
		{"zero timeout", func(c *RunConfig) { c.CallTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFailurePolicyValid(t *testing.T) {
	if !FailureStrict.Valid() || !FailureLenient.Valid() {
		t.Error("expected strict and lenient to be valid")
	}
	if FailurePolicy("").Valid() {
		t.Error("expected empty policy to be invalid")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	terminal := []RunStatus{RunStatusCompleted, RunStatusPartiallyFailed, RunStatusAborted}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunStatusIdle, RunStatusRunning} {
		if s.Terminal() {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}

func TestReportSucceeded(t *testing.T) {
	r := &Report{
		Tasks: []TaskReport{
			{ID: "a", Status: TaskStatusSucceeded},
			{ID: "b", Status: TaskStatusFailed},
			{ID: "c", Status: TaskStatusSucceeded},
			{ID: "d", Status: TaskStatusSkipped},
		},
	}
	if got := r.Succeeded(); got != 2 {
		t.Errorf("Succeeded() = %d, want 2", got)
	}
}
