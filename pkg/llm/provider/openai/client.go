// Package openai adapts the official OpenAI Go SDK to the llm.Backend contract.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"conclave/pkg/llm"
)

const defaultModel = "gpt-4o"

// Client wraps the official OpenAI client to implement llm.Backend.
type Client struct {
	client openai.Client
	model  string
}

// New builds a Client authenticated with apiKey, using model if non-empty
// or defaultModel otherwise.
func New(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *Client) Name() string { return "openai" }

// Complete sends req as a chat completion, preserving message roles.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(float64(req.Temperature)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("openai: empty response")
	}
	return llm.CompletionResponse{Content: resp.Choices[0].Message.Content}, nil
}

// Stream performs a synchronous Complete and replays it as a single chunk;
// the SDK's native SSE streaming is not wired in because no caller above the
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
