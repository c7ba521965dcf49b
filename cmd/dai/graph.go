package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daicraft/dai/internal/config"
	"github.com/daicraft/dai/internal/graph"
	"github.com/daicraft/dai/internal/loader"
	"github.com/daicraft/dai/pkg/models"
)

var graphCmd = &cobra.Command{
	Use:   "graph <crew-file>",
	Short: "Print the dependency graph of a crew file",
	Long: `Parse a crew file, build its dependency graph, and print it as a tree.

This validates the file without calling any provider: unknown dependencies,
duplicate ids, and cycles are reported the same way 'dai run' would report
them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		crew, err := loadCrew(args[0])
		if err != nil {
			return err
		}

		g, err := graph.Build(crew.Tasks, crew.Run.FailurePolicy == models.FailureLenient)
		if err != nil {
			return fmt.Errorf("building graph: %w", err)
		}

		if crew.Name != "" {
			fmt.Printf("%s (%d agents)\n\n", crew.Name, g.Size())
		}
		fmt.Print(g.Visualize())
		return nil
	},
}

// loadCrew loads a crew file using configured run defaults, falling back
// to built-in defaults when no config is readable.
func loadCrew(path string) (*loader.Crew, error) {
	defaults := models.DefaultRunConfig()
	if cfg, err := config.Load(); err == nil {
		if d, err := cfg.Run.ToRunConfig(); err == nil {
			defaults = d
		}
	}
	return loader.Load(path, defaults)
}
