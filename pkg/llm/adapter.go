package llm

import (
	"context"

	"conclave/pkg/llmerrors"
	"conclave/pkg/logx"
	"conclave/pkg/mode"
	"conclave/pkg/ratelimit"
)

// Adapter is the narrow façade over a vendor backend described in spec.md §4.B.
// Every call it makes to the backend is gated by both rate-limiter windows.
type Adapter struct {
	backend Backend
	limits  *ratelimit.Pair
	logger  *logx.Logger
}

// NewAdapter constructs an Adapter wired to backend and gated by limits.
func NewAdapter(backend Backend, limits *ratelimit.Pair, logger *logx.Logger) *Adapter {
	if logger == nil {
		logger = logx.NewLogger("llm")
	}
	return &Adapter{backend: backend, limits: limits, logger: logger}
}

// Execute builds a single-user-turn request with the mode's system prompt and
// fixed temperature, and returns the assembled response text.
func (a *Adapter) Execute(ctx context.Context, sysPrompt, userPrompt string, m mode.Mode) (string, error) {
	req := NewSingleUserTurn(sysPrompt, userPrompt, m)

	result, err := a.limits.Execute(func() (string, error) {
		resp, err := a.backend.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	})
	if err != nil {
		a.logClassified(err)
		return "", NewExecutionError(err)
	}
	return result, nil
}

// ExecuteMultimodal is like Execute but additionally attaches files as
// (mimeType, base64(data)). Files exceeding MaxFileSizeBytes are rejected
// before any backend call is made.
func (a *Adapter) ExecuteMultimodal(ctx context.Context, sysPrompt, userPrompt string, files []File, m mode.Mode) (string, error) {
	encoded := make([]EncodedFile, 0, len(files))
	for _, f := range files {
		ef, err := f.Encode()
		if err != nil {
			return "", err
		}
		encoded = append(encoded, ef)
	}

	req := NewSingleUserTurn(sysPrompt, userPrompt, m)
	req.Files = encoded

	result, err := a.limits.Execute(func() (string, error) {
		resp, err := a.backend.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	})
	if err != nil {
		a.logClassified(err)
		return "", NewExecutionError(err)
	}
	return result, nil
}

// StreamExecute returns a lazy, finite, non-restartable sequence of text chunks.
// Backend errors terminate the sequence with a StreamError on the final chunk.
func (a *Adapter) StreamExecute(ctx context.Context, sysPrompt, userPrompt string, m mode.Mode) (<-chan StreamChunk, error) {
	req := NewSingleUserTurn(sysPrompt, userPrompt, m)

	var raw <-chan StreamChunk
	_, err := a.limits.Execute(func() (string, error) {
		r, streamErr := a.backend.Stream(ctx, req)
		if streamErr != nil {
			return "", streamErr
		}
		raw = r
		return "", nil
	})
	if err != nil {
		a.logClassified(err)
		return nil, NewStreamError(err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for chunk := range raw {
			if chunk.Err != nil {
				out <- StreamChunk{Err: NewStreamError(chunk.Err), Done: true}
				return
			}
			out <- chunk
			if chunk.Done {
				return
			}
		}
	}()
	return out, nil
}

// CheckHealth performs a minimal prompt round-trip and reports whether a
// non-empty response arrived without error. It never raises.
func (a *Adapter) CheckHealth(ctx context.Context) bool {
	text, err := a.Execute(ctx, "You are a health check.", "Reply with the single word OK.", mode.Monitor)
	if err != nil {
		a.logger.Warn("health check failed: %v", err)
		return false
	}
	return text != ""
}

// logClassified logs the error's classification for diagnostics. RateLimit
// failures are not logged here since ratelimit.Pair.Execute already warned
// on every retry attempt; Transient, Auth, and Network classifications are
// recognized sub-classifications (spec.md §7) surfaced only for operator
// visibility, never retried by the adapter itself.
func (a *Adapter) logClassified(err error) {
	t := llmerrors.Classify(err)
	if t == llmerrors.ErrorTypeRateLimit {
		return
	}
	a.logger.Warn("llm call failed (%s): %v", t, err)
}

// RateLimitStatus returns the two window snapshots for status reporting.
func (a *Adapter) RateLimitStatus() (perMinute, perDay ratelimit.Status) {
	return a.limits.Status()
}

// BackendName identifies the wired vendor backend.
func (a *Adapter) BackendName() string {
	return a.backend.Name()
}
