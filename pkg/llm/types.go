// Package llm provides the LLM adapter: a narrow, rate-limited façade over a
// swappable vendor backend (Anthropic, OpenAI, Ollama, or Gemini).
package llm

import (
	"encoding/base64"
	"fmt"

	"conclave/pkg/mode"
)

// CompletionRole identifies the speaker of a message in a conversation.
type CompletionRole string

const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
)

// CompletionMessage is a single turn in a completion request.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
}

// File is a multimodal attachment. Data is raw bytes; the adapter base64-encodes
// it before it crosses into a backend request.
type File struct {
	MimeType string
	Data     []byte
}

// MaxFileSizeBytes is the multimodal attachment cap (10 MiB), per spec §8 boundary tests.
const MaxFileSizeBytes = 10 * 1024 * 1024

// EncodedFile is the wire-shape attached to multimodal backend requests.
type EncodedFile struct {
	MimeType   string
	Base64Data string
}

// Encode validates f's size and returns its base64-encoded wire form.
func (f File) Encode() (EncodedFile, error) {
	if len(f.Data) > MaxFileSizeBytes {
		return EncodedFile{}, fmt.Errorf("llm: file of %d bytes exceeds %d byte cap", len(f.Data), MaxFileSizeBytes)
	}
	return EncodedFile{MimeType: f.MimeType, Base64Data: base64.StdEncoding.EncodeToString(f.Data)}, nil
}

// CompletionRequest is a single-shot or multimodal completion request sent to a backend.
type CompletionRequest struct {
	Messages    []CompletionMessage
	Files       []EncodedFile
	Mode        mode.Mode
	Temperature float32
}

// CompletionResponse is a backend's synchronous reply.
type CompletionResponse struct {
	Content string
}

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// NewSingleUserTurn builds a single-user-turn request for mode m with system prompt sys.
func NewSingleUserTurn(sys, prompt string, m mode.Mode) CompletionRequest {
	return CompletionRequest{
		Messages: []CompletionMessage{
			{Role: RoleSystem, Content: sys},
			{Role: RoleUser, Content: prompt},
		},
		Mode:        m,
		Temperature: mode.Temperature(m),
	}
}
