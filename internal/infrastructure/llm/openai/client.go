// Package openai provides a text generator backed by the OpenAI chat API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/config"
)

// DefaultModel is used when the config names no model.
const DefaultModel = "gpt-4o-mini"

// Client implements the Generator interface using OpenAI.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewClient creates a new OpenAI LLM client.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := DefaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Generate runs one chat completion.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (ports.Generation, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return ports.Generation{}, fmt.Errorf("calling OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return ports.Generation{}, errors.New("no response from OpenAI")
	}

	return ports.Generation{
		Text: resp.Choices[0].Message.Content,
		Usage: ports.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
