package mocks

import "context"

// CollectionManager is a mock implementation of ports.CollectionManager.
type CollectionManager struct {
	EnsureErr error
	DeleteErr error

	// Call tracking
	EnsureCallCount int
	DeleteCallCount int
	LastVectorSize  uint64
}

// EnsureCollection records the call.
func (m *CollectionManager) EnsureCollection(_ context.Context, vectorSize uint64) error {
	m.EnsureCallCount++
	m.LastVectorSize = vectorSize
	return m.EnsureErr
}

// DeleteCollection records the call.
func (m *CollectionManager) DeleteCollection(_ context.Context) error {
	m.DeleteCallCount++
	return m.DeleteErr
}
