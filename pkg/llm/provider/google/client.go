// Package google adapts the Gemini API (google.golang.org/genai) to the llm.Backend contract.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"conclave/pkg/llm"
)

const defaultModel = "gemini-2.0-flash"

// Client wraps a lazily-created genai.Client to implement llm.Backend.
type Client struct {
	client *genai.Client
	apiKey string
	model  string
}

// New builds a Client authenticated with apiKey, using model if non-empty
// or defaultModel otherwise. The underlying genai.Client is created on first
// use because its constructor requires a context.
func New(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{apiKey: apiKey, model: model}
}

func (c *Client) Name() string { return "google" }

func (c *Client) ensureClient(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("google: create client: %w", err)
	}
	c.client = client
	return nil
}

// Complete sends req as a single generate-content call, extracting system
// messages into the top-level system instruction the way the Gemini API expects.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := c.ensureClient(ctx); err != nil {
		return llm.CompletionResponse{}, err
	}

	var systemText, userText string
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			systemText += msg.Content
		default:
			userText += msg.Content
		}
	}

	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if systemText != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemText}}}
	}

	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: userText}}}}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("google: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return llm.CompletionResponse{}, fmt.Errorf("google: empty response")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	return llm.CompletionResponse{Content: text}, nil
}

// Stream performs a synchronous Complete and replays it as a single chunk;
// Gemini's native streaming is not wired in because no caller above the
// adapter consumes partial text yet.
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
