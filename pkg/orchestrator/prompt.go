package orchestrator

import (
	"fmt"
	"strings"

	"conclave/pkg/memory"
	"conclave/pkg/mode"
)

// systemPrompts gives each mode a short role statement. Modes not listed
// here fall back to a generic framing built from the mode name itself.
//
//nolint:gochecknoglobals // fixed mode->prompt table per spec
var systemPrompts = map[mode.Mode]string{
	mode.Architect:     "You are the architect. Decompose the task into a concrete plan before any code is written.",
	mode.Coder:         "You are the coder. Implement exactly what the task describes, nothing more.",
	mode.Tester:        "You are the tester. Write and reason about tests that would catch regressions.",
	mode.Debugger:      "You are the debugger. Find the root cause before proposing a fix.",
	mode.Security:      "You are the security reviewer. Look for exploitable defects, not style issues.",
	mode.Documentation: "You are the documentation writer. Explain behavior precisely and concisely.",
}

func systemPromptForMode(m mode.Mode) string {
	if p, ok := systemPrompts[m]; ok {
		return p
	}
	return fmt.Sprintf("You are operating in %s mode. Respond appropriately for that role.", m)
}

// buildUserPrompt prepends recalled memory context to the raw task
// description, matching the truncated-summary shape GetContext returns.
func buildUserPrompt(description string, ctx []memory.ContextSummary) string {
	if len(ctx) == 0 {
		return description
	}
	var b strings.Builder
	b.WriteString("Relevant context from prior work:\n")
	for _, c := range ctx {
		fmt.Fprintf(&b, "- [%s] %s\n", c.Type, c.Summary)
	}
	b.WriteString("\nTask:\n")
	b.WriteString(description)
	return b.String()
}
