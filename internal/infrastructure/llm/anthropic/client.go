// Package anthropic provides a text generator backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/config"
)

const (
	// DefaultModel is used when the config names no model.
	DefaultModel = "claude-3-5-haiku-latest"
	// DefaultMaxTokens caps a response when the config sets no limit.
	DefaultMaxTokens = 4096
)

// Client implements the Generator interface using Anthropic.
type Client struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewClient creates a new Anthropic client. Extra request options are
// appended after the config-derived ones.
func NewClient(cfg config.LLMConfig, opts ...aoption.RequestOption) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	reqOpts := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		reqOpts = append(reqOpts, aoption.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	model := DefaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}
	maxTokens := int64(DefaultMaxTokens)
	if cfg.MaxTokens > 0 {
		maxTokens = int64(cfg.MaxTokens)
	}

	return &Client{
		client:      anthropic.NewClient(reqOpts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float64(cfg.Temperature),
	}, nil
}

// Generate sends one message with a system prompt and returns the text reply.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (ports.Generation, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt))},
		Temperature: anthropic.Float(c.temperature),
	}
	if s := strings.TrimSpace(systemPrompt); s != "" {
		params.System = []anthropic.TextBlockParam{{Text: s}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return ports.Generation{}, fmt.Errorf("calling Anthropic: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	if text.Len() == 0 {
		return ports.Generation{}, errors.New("no text in Anthropic response")
	}

	return ports.Generation{
		Text: text.String(),
		Usage: ports.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}
