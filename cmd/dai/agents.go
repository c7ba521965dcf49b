package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/daicraft/dai/internal/agent"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the built-in role templates",
	Long: `List the role templates that crew files can reference by name.

A crew entry with 'role: <name>' starts from the template's persona and
prompt; any inline fields in the entry override it.`,
	Run: func(cmd *cobra.Command, args []string) {
		nameColor := color.New(color.FgCyan, color.Bold)
		for _, name := range agent.BuiltinRoleNames() {
			role, err := agent.BuiltinRole(name)
			if err != nil {
				continue
			}
			nameColor.Printf("%s", name)
			fmt.Printf("  (%s)\n", role.Name)
			fmt.Printf("    %s\n", summarize(role.Backstory, 100))
		}
	},
}

// summarize returns the first sentence or maxLen characters, whichever is
// shorter.
func summarize(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, ". "); idx >= 0 {
		s = s[:idx+1]
	}
	if len(s) > maxLen {
		s = s[:maxLen-3] + "..."
	}
	return s
}
