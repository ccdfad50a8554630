package llm

import "context"

// Backend is the narrow contract every vendor implementation (Anthropic, OpenAI,
// Ollama, Gemini) satisfies. The Adapter is the only component that talks to
// a Backend directly; everything above it only sees the Adapter's public methods.
type Backend interface {
	// Name identifies the backend for logging and rate-limiter status reporting.
	Name() string

	// Complete performs a single synchronous completion call.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream performs a streaming completion call. The returned channel is
	// closed by the backend when the response ends or fails.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}
