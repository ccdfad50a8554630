// Package llmerrors classifies LLM-backend failures for retry policy and redacts
// secrets from error text before it reaches logs or orchestrator events.
package llmerrors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrorType categorizes an LLM-backend failure for retry purposes.
type ErrorType int8

const (
	// ErrorTypeRateLimit indicates the backend rejected the call as over its rate limit.
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient indicates a retryable network/5xx failure.
	ErrorTypeTransient
	// ErrorTypeAuth indicates an authentication/authorization failure (non-retryable).
	ErrorTypeAuth
	// ErrorTypeNetwork indicates a connection-level failure, recognized for diagnostics.
	ErrorTypeNetwork
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the lowercase name of the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error wraps an underlying LLM-backend failure with its classification.
type Error struct {
	Err  error
	Type ErrorType
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm error (%s): %v", e.Type, e.Err)
	}
	return fmt.Sprintf("llm error (%s)", e.Type)
}

// Unwrap exposes the wrapped error for errors.As/errors.Is.
func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps cause with the given classification.
func New(t ErrorType, cause error) *Error {
	return &Error{Err: cause, Type: t}
}

// Is reports whether err is classified as t.
func Is(err error, t ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == t
	}
	return false
}

// rateLimitMarkers are the case-insensitive substrings that mark a failure as
// rate-limit related, per the spec's classification rule.
//
//nolint:gochecknoglobals // fixed classification table
var rateLimitMarkers = []string{
	"rate limit", "quota exceeded", "429", "too many requests",
}

//nolint:gochecknoglobals // fixed classification table
var authMarkers = []string{
	"unauthorized", "forbidden", "401", "403", "invalid api key", "invalid_api_key",
}

//nolint:gochecknoglobals // fixed classification table
var networkMarkers = []string{
	"connection refused", "connection reset", "no such host", "eof", "timeout", "dial tcp",
}

// Classify inspects err's message and returns the matching ErrorType.
// Classification is substring-based and case-insensitive, per spec.md §4.A/§7.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, rateLimitMarkers) {
		return ErrorTypeRateLimit
	}
	if containsAny(msg, authMarkers) {
		return ErrorTypeAuth
	}
	if containsAny(msg, networkMarkers) {
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}

// IsRateLimit reports whether err should be treated as a rate-limit failure.
func IsRateLimit(err error) bool {
	return Classify(err) == ErrorTypeRateLimit
}

func containsAny(haystack string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(haystack, m) {
			return true
		}
	}
	return false
}

// secretPatterns match probable secrets in error/log text: long alphanumeric
// runs (API-key-shaped tokens) and Bearer-prefixed credentials.
//
//nolint:gochecknoglobals // compiled once, used by Redact on every surfaced error
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9._-]{8,}`),
	regexp.MustCompile(`\b[A-Za-z0-9_-]{24,}\b`),
}

// Redact replaces probable secrets in s with "[REDACTED]" before it is logged
// or surfaced through an orchestrator event, per spec.md §7.
func Redact(s string) string {
	out := s
	for _, pattern := range secretPatterns {
		out = pattern.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}
