package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agentichat/agentichat-go/llm"
)

// defaultSystemPreamble describes the tool-calling convention and lists the
// registered tools' names and argument shapes. It
// is prepended to each request, without being added to the transcript, only
// when the transcript has no system message yet and the registry is nonempty.
func defaultSystemPreamble(workDir string, toolDefs []llm.ToolDef) string {
	var b strings.Builder
	b.WriteString("You are an agentic coding assistant running in a terminal. ")
	b.WriteString("You help with software engineering tasks by reading, writing, and ")
	b.WriteString("running code in the working directory below, using the tools provided.\n\n")
	fmt.Fprintf(&b, "Working directory: %s\n\n", workDir)

	b.WriteString("Call tools to take action rather than describing what you would do. ")
	b.WriteString("You may call several independent tools in one turn; wait for each ")
	b.WriteString("tool's result before depending on it in a later call.\n\n")

	if len(toolDefs) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range toolDefs {
			fmt.Fprintf(&b, "- %s(%s): %s\n", t.Name, argShape(t.Parameters), t.Description)
		}
	}

	return b.String()
}

// argShape renders a tool's top-level argument names from its JSON schema,
// sorted by name, e.g. "path, pattern, recursive".
func argShape(schema map[string]any) string {
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return ""
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
