// Package llm wraps an OpenAI-compatible chat-completion endpoint
// (OpenRouter, Ollama, or OpenAI itself) behind the single call the
// grading pipeline needs.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Defaults mirror the upstream feedback service's request shape.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 400
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api        *openai.Client
	model      string
	timeout    time.Duration
	configured bool
}

// New creates a new LLM client. An empty apiKey yields a client that
// reports itself unconfigured; callers degrade gracefully instead of
// crashing.
func New(baseURL, apiKey, modelName string, timeout time.Duration) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:        openai.NewClientWithConfig(config),
		model:      modelName,
		timeout:    timeout,
		configured: apiKey != "",
	}
}

// Configured reports whether an API credential is present.
func (c *Client) Configured() bool {
	return c.configured
}

// Generate sends one prompt to the generation service and returns the raw
// reply text. Each call is bounded by the configured timeout; no
// cancellation beyond that is supported.
func (c *Client) Generate(ctx context.Context, systemInstruction, prompt string) (string, error) {
	if !c.configured {
		return "", fmt.Errorf("LLM API key is not set")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// Ping verifies the endpoint is reachable. It is a no-op for an
// unconfigured client.
func (c *Client) Ping(ctx context.Context) error {
	if !c.configured {
		return nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	return nil
}
