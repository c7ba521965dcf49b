package agent

import (
	"fmt"
	"sort"

	"github.com/daicraft/dai/pkg/models"
)

// builtinRoles is the repository of reusable role templates for the core
// agent types a software-project crew is composed of.
var builtinRoles = map[string]models.Role{
	"product_manager": {
		Name: "Product Manager",
		Backstory: "You are an experienced Product Manager with expertise in software " +
			"product development. You excel at understanding user needs, defining " +
			"requirements, and ensuring the product meets both business goals and " +
			"user expectations.",
		Template: `Project: {{project_name}}

Your task is to define the requirements for this project based on the following description:

{{project_description}}

Please provide:
1. A clear project overview
2. User stories/requirements
3. Success criteria
4. Key features and priorities
5. Any constraints or considerations

Your output will be used by the Architecture Team to design the solution.`,
		Inputs: []string{"project_name", "project_description"},
		Output: models.OutputText,
	},
	"architect": {
		Name: "Solution Architect",
		Backstory: "You are a skilled Solution Architect with deep experience in software " +
			"design patterns, system architecture, and technical planning. You excel " +
			"at translating requirements into robust technical designs.",
		Template: `Project: {{project_name}}

Based on the following requirements defined by the Product Manager:

{{requirements}}

Please design a system architecture that addresses these requirements. Include:
1. High-level architecture overview
2. Component breakdown
3. Data model
4. API specifications
5. Technology stack recommendations
6. Key design decisions and their rationales`,
		Inputs: []string{"project_name", "requirements"},
		Output: models.OutputText,
	},
	"developer": {
		Name: "Senior Software Developer",
		Backstory: "You are an experienced software developer proficient in multiple " +
			"programming languages and frameworks. You write clean, maintainable, " +
			"and well-documented code following best practices.",
		Template: `Project: {{project_name}}

Based on the following architecture design:

{{architecture}}

Please implement the code for the requested component. Your code should be:
- Well-structured
- Following best practices for the language/framework
- Properly commented
- Testable
- Error-handled

Include any necessary explanations about implementation decisions.`,
		Inputs: []string{"project_name", "architecture"},
		Output: models.OutputText,
	},
	"qa_engineer": {
		Name: "QA Engineer",
		Backstory: "You are a detail-oriented Quality Assurance Engineer with expertise " +
			"in software testing methodologies. You excel at finding edge cases, " +
			"writing comprehensive tests, and ensuring software quality.",
		Template: `Project: {{project_name}}

Based on the following component implementation:

{{implementation}}

Please create a comprehensive test suite for this component. Include:
1. Unit tests
2. Integration tests
3. Edge cases and failure modes
4. A short test plan describing what is covered and what is not`,
		Inputs: []string{"project_name", "implementation"},
		Output: models.OutputText,
	},
}

// BuiltinRole returns the named built-in role template.
func BuiltinRole(name string) (models.Role, error) {
	role, ok := builtinRoles[name]
	if !ok {
		return models.Role{}, fmt.Errorf("unknown role template %q", name)
	}
	return role, nil
}

// BuiltinRoleNames returns the available template names, sorted.
func BuiltinRoleNames() []string {
	names := make([]string, 0, len(builtinRoles))
	for name := range builtinRoles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
