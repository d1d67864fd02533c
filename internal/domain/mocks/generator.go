// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"sync"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
)

// Generator is a mock implementation of ports.Generator.
type Generator struct {
	mu sync.Mutex

	// Response is returned by Generate unless Err is set.
	Response string
	Usage    ports.Usage
	Err      error

	// Block makes Generate wait for context cancellation.
	Block bool

	// Call tracking
	CallCount      int
	LastSystem     string
	LastUserPrompt string
}

// Generate returns the configured response or error.
func (m *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (ports.Generation, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastSystem = systemPrompt
	m.LastUserPrompt = userPrompt
	block, resp, usage, err := m.Block, m.Response, m.Usage, m.Err
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return ports.Generation{}, ctx.Err()
	}
	if err != nil {
		return ports.Generation{}, err
	}
	return ports.Generation{Text: resp, Usage: usage}, nil
}

// Calls returns the number of Generate calls.
func (m *Generator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
