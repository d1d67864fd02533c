package mocks

import (
	"context"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
)

// CanonIndex is a mock implementation of ports.CanonIndex.
type CanonIndex struct {
	Indexed map[string]ports.IndexedEntry

	// Hits is returned by Search, filtered by the request filter.
	Hits []ports.IndexHit
	Err  error

	// Call tracking
	UpsertCallCount int
	DeleteCallCount int
	LastFilter      ports.IndexFilter
	LastLimit       int
}

// NewCanonIndex creates an empty mock index.
func NewCanonIndex() *CanonIndex {
	return &CanonIndex{Indexed: make(map[string]ports.IndexedEntry)}
}

// Upsert records the entry.
func (m *CanonIndex) Upsert(_ context.Context, entry ports.IndexedEntry) error {
	m.UpsertCallCount++
	if m.Err != nil {
		return m.Err
	}
	m.Indexed[entry.EntryID] = entry
	return nil
}

// Delete forgets the entry.
func (m *CanonIndex) Delete(_ context.Context, entryID string) error {
	m.DeleteCallCount++
	if m.Err != nil {
		return m.Err
	}
	delete(m.Indexed, entryID)
	return nil
}

// Search returns the configured hits that match the filter.
func (m *CanonIndex) Search(_ context.Context, _ []float32, filter ports.IndexFilter, limit int) ([]ports.IndexHit, error) {
	m.LastFilter = filter
	m.LastLimit = limit
	if m.Err != nil {
		return nil, m.Err
	}
	var result []ports.IndexHit
	for _, h := range m.Hits {
		if ie, ok := m.Indexed[h.EntryID]; ok {
			if filter.ProjectID != "" && ie.ProjectID != filter.ProjectID {
				continue
			}
			if filter.Kind != "" && ie.Kind != filter.Kind {
				continue
			}
		}
		result = append(result, h)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
