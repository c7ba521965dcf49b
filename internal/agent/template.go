package agent

import (
	"fmt"
	"strings"

	"github.com/daicraft/dai/pkg/models"
)

// RenderPrompt renders a role's template against the given context values.
// Placeholders have the form {{key}}. Rendering is a single pass over the
// template, so substituted values are never rescanned: the same role and
// values always produce the same string, which is what makes retries safe.
// Placeholders with no matching value are left in place so a missing input
// is visible in the prompt rather than silently blank.
func RenderPrompt(role models.Role, values map[string]string) string {
	tmpl := role.Template
	var out strings.Builder
	out.Grow(len(tmpl))
	for {
		open := strings.Index(tmpl, "{{")
		if open < 0 {
			out.WriteString(tmpl)
			return out.String()
		}
		end := strings.Index(tmpl[open:], "}}")
		if end < 0 {
			out.WriteString(tmpl)
			return out.String()
		}
		end += open
		key := tmpl[open+2 : end]
		out.WriteString(tmpl[:open])
		if value, ok := values[key]; ok {
			out.WriteString(value)
		} else {
			out.WriteString(tmpl[open : end+2])
		}
		tmpl = tmpl[end+2:]
	}
}

// SystemPrompt builds the persona preamble sent as the system prompt.
func SystemPrompt(role models.Role) string {
	if role.Backstory == "" {
		return fmt.Sprintf("You are a %s.", role.Name)
	}
	return fmt.Sprintf("You are a %s. %s", role.Name, role.Backstory)
}
