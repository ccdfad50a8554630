// Package ollama adapts a local Ollama server to the llm.Backend contract.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"conclave/pkg/llm"
)

const defaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.Backend.
type Client struct {
	client *api.Client
	model  string
}

// New builds a Client pointed at hostURL (defaultHost if empty) running model.
func New(hostURL, model string) *Client {
	if hostURL == "" {
		hostURL = defaultHost
	}
	parsed, err := url.Parse(hostURL)
	if err != nil {
		parsed, _ = url.Parse(defaultHost)
	}
	return &Client{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

func (c *Client) Name() string { return "ollama" }

// Complete sends req as a non-streaming chat request.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, api.Message{Role: string(msg.Role), Content: msg.Content})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("ollama: %w", err)
	}
	return llm.CompletionResponse{Content: response.Message.Content}, nil
}

// Stream is not implemented; this Ollama wiring is used synchronously only.
func (c *Client) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, fmt.Errorf("ollama: streaming not implemented")
}
