package ports

import (
	"context"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

// IndexedEntry is the searchable projection of a canon entry.
type IndexedEntry struct {
	EntryID    string
	ProjectID  string
	TimelineID string
	Kind       entities.EntityKind
	Name       string
	Embedding  []float32
}

// IndexFilter narrows a semantic search. Empty fields match everything.
type IndexFilter struct {
	ProjectID string
	Kind      entities.EntityKind
}

// IndexHit is one search result.
type IndexHit struct {
	EntryID string
	Score   float32
}

// CanonIndex defines the interface for vector search over canon entries.
type CanonIndex interface {
	// Upsert stores or replaces an entry's embedding.
	Upsert(ctx context.Context, entry IndexedEntry) error

	// Delete removes an entry from the index.
	Delete(ctx context.Context, entryID string) error

	// Search returns the entries most similar to embedding.
	Search(ctx context.Context, embedding []float32, filter IndexFilter, limit int) ([]IndexHit, error)
}
