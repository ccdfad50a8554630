package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"conclave/pkg/mode"
)

// maxDescriptionChars is the submission length ceiling, per spec.md §6.
const maxDescriptionChars = 10000

// forbiddenPatterns reject task descriptions that look like injected
// script content rather than task text.
//
//nolint:gochecknoglobals // fixed validation table per spec
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)function\(`),
}

// ValidationError reports a rejected task submission.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "orchestrator: " + e.Reason
}

// validateDescription trims whitespace and enforces the length ceiling and
// forbidden-content rules. The trimmed description is returned on success.
func validateDescription(desc string) (string, error) {
	trimmed := strings.TrimSpace(desc)
	if trimmed == "" {
		return "", &ValidationError{Reason: "task description must not be empty"}
	}
	if utf8.RuneCountInString(trimmed) > maxDescriptionChars {
		return "", &ValidationError{Reason: fmt.Sprintf("task description exceeds %d characters", maxDescriptionChars)}
	}
	for _, p := range forbiddenPatterns {
		if p.MatchString(trimmed) {
			return "", &ValidationError{Reason: "task description contains disallowed content"}
		}
	}
	return trimmed, nil
}

// validateMode parses m against the closed set of agent modes.
func validateMode(m string) (mode.Mode, error) {
	parsed, err := mode.Parse(m)
	if err != nil {
		return "", &ValidationError{Reason: err.Error()}
	}
	return parsed, nil
}

// validatePriority defaults an empty priority to medium and rejects anything
// outside the three-value closed set.
func validatePriority(p string) (mode.Priority, error) {
	if p == "" {
		return mode.Medium, nil
	}
	priority := mode.Priority(p)
	if !priority.IsValid() {
		return "", &ValidationError{Reason: fmt.Sprintf("unrecognized priority %q", p)}
	}
	return priority, nil
}
