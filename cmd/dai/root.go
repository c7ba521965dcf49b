package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dai",
	Short: "Dependency-aware multi-agent LLM orchestrator",
	Long: `dai runs a crew of role-playing LLM agents over a dependency graph.

A crew file declares agents (a persona, a prompt template, a model) and the
dependencies between them. dai builds the graph, runs independent agents in
parallel, feeds each agent the outputs of its predecessors, retries transient
provider failures, and prints a report when the graph is resolved.

Anthropic models (direct API or AWS Bedrock) and OpenAI models can be mixed
freely within one crew.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
