package ports

import "context"

// Usage reports the tokens consumed by one generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generation is the raw output of a text generator.
type Generation struct {
	Text  string
	Usage Usage
}

// Generator defines the interface for LLM text generation.
type Generator interface {
	// Generate runs one completion with a system and a user prompt.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error)
}
