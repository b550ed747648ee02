package agent

import (
	"fmt"
	"strings"

	"github.com/tessera-dev/tessera/internal/tools"
)

const observationPromptLimit = 2000

// buildSystemPrompt enumerates the available tools and the response grammar
// the planner must follow.
func buildSystemPrompt(schemas []tools.Schema) string {
	var b strings.Builder
	b.WriteString("You are Tessera, a coding agent operating inside a fixed workspace. ")
	b.WriteString("You solve tasks step by step by reasoning and invoking tools.\n\n")

	b.WriteString("Available tools:\n")
	for _, s := range schemas {
		fmt.Fprintf(&b, "- %s(%s): %s\n", s.Name, formatParams(s), s.Description)
	}

	b.WriteString(`
Respond in exactly one of two shapes.

To invoke a tool:
Thought: <reasoning>
Action: tool_name(arg="value", ...)

To finish the task:
Thought: <summary>
Answer: <final response>

All action arguments must be double-quoted strings. Never output anything
outside these shapes.`)
	return b.String()
}

func formatParams(s tools.Schema) string {
	parts := make([]string, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		name := p.Name
		if !p.Required {
			name += "?"
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}

// buildUserPrompt assembles the per-iteration planning input: session memory,
// pre-retrieved context, the step trace so far, and the task.
func buildUserPrompt(query, memoryContext, retrievalContext string, steps []Step) string {
	var b strings.Builder

	if memoryContext != "" {
		b.WriteString("Session memory:\n")
		b.WriteString(memoryContext)
		b.WriteString("\n\n")
	}
	if retrievalContext != "" {
		b.WriteString("Relevant workspace context:\n")
		b.WriteString(retrievalContext)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Task:\n%s\n", query)

	if len(steps) > 0 {
		b.WriteString("\nSteps so far:\n")
		for _, s := range steps {
			fmt.Fprintf(&b, "Step %d\nThought: %s\n", s.Number, s.Thought)
			if s.Action != nil {
				fmt.Fprintf(&b, "Action: %s\n", formatCall(*s.Action))
			}
			if s.Observation != "" {
				fmt.Fprintf(&b, "Observation: %s\n", truncateForPrompt(s.Observation, observationPromptLimit))
			}
		}
		b.WriteString("\nContinue from the last observation.")
	}
	return b.String()
}

func formatCall(call tools.Call) string {
	parts := make([]string, 0, len(call.Args))
	for k, v := range call.Args {
		parts = append(parts, fmt.Sprintf("%s=%q", k, fmt.Sprint(v)))
	}
	return fmt.Sprintf("%s(%s)", call.Name, strings.Join(parts, ", "))
}

func truncateForPrompt(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "... [truncated]"
}
