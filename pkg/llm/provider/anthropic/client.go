// Package anthropic adapts the Anthropic Claude API to the llm.Backend contract.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"conclave/pkg/llm"
)

const defaultModel = anthropic.Model("claude-sonnet-4-20250514")

// Client wraps the Anthropic SDK client to implement llm.Backend.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New builds a Client authenticated with apiKey, using model if non-empty
// or defaultModel otherwise.
func New(apiKey, model string) *Client {
	m := defaultModel
	if model != "" {
		m = anthropic.Model(model)
	}
	return &Client{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0), // retries are handled by pkg/ratelimit
		),
		model: m,
	}
}

func (c *Client) Name() string { return "anthropic" }

// Complete sends req as a single-turn message, extracting system messages
// into the top-level system parameter the way the Anthropic API requires.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, userText, err := splitSystemAndUser(req.Messages)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   4096,
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userText)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("anthropic: empty response")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return llm.CompletionResponse{Content: text.String()}, nil
}

// Stream performs a synchronous Complete and replays it as a single chunk
// followed by a Done marker; the Anthropic SDK's native streaming is not
// wired in because no component above the adapter consumes partial text yet.
func (c *Client) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, req)
		if err != nil {
			ch <- llm.StreamChunk{Err: err, Done: true}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// splitSystemAndUser extracts system messages into a joined system prompt
// and concatenates the remaining messages into one user turn, matching the
// narrow single-user-turn shape llm.NewSingleUserTurn builds.
func splitSystemAndUser(messages []llm.CompletionMessage) (system, user string, err error) {
	var sys, usr []string
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			sys = append(sys, msg.Content)
		case llm.RoleUser, llm.RoleAssistant:
			usr = append(usr, msg.Content)
		}
	}
	if len(usr) == 0 {
		return "", "", fmt.Errorf("anthropic: no user content in request")
	}
	return strings.Join(sys, "\n\n"), strings.Join(usr, "\n\n"), nil
}
