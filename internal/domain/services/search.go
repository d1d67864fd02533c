package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
)

// DefaultSearchLimit is the default number of results to return.
const DefaultSearchLimit = 10

// searchOverfetch widens index queries because hits on unrelated timelines
// are dropped after the search.
const searchOverfetch = 4

// SearchResult is a canon entry matched by a semantic search.
type SearchResult struct {
	Entry entities.ContextEntry `json:"entry"`
	Score float32               `json:"score"`
}

// SearchService handles semantic search over canon entries.
type SearchService struct {
	embedder ports.Embedder
	index    ports.CanonIndex
	store    ports.CanonStore
	loader   *ContextLoader
	logger   *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(embedder ports.Embedder, index ports.CanonIndex, store ports.CanonStore, loader *ContextLoader, logger *slog.Logger) *SearchService {
	return &SearchService{
		embedder: embedder,
		index:    index,
		store:    store,
		loader:   loader,
		logger:   orDiscard(logger),
	}
}

// Index embeds an entry and stores it in the index. Inactive entries are removed.
func (s *SearchService) Index(ctx context.Context, entry entities.CanonEntry) error {
	if !entry.Active {
		return s.Remove(ctx, entry.ID)
	}
	embedding, err := s.embedder.Embed(ctx, EntryText(&entry))
	if err != nil {
		return fmt.Errorf("generating entry embedding: %w", err)
	}
	if err := s.index.Upsert(ctx, indexedEntry(&entry, embedding)); err != nil {
		return fmt.Errorf("indexing entry: %w", err)
	}
	return nil
}

// Remove drops an entry from the index.
func (s *SearchService) Remove(ctx context.Context, entryID string) error {
	if err := s.index.Delete(ctx, entryID); err != nil {
		return fmt.Errorf("removing entry from index: %w", err)
	}
	return nil
}

// Reindex embeds every active entry of a project on every timeline.
func (s *SearchService) Reindex(ctx context.Context, projectID string) (int, error) {
	timelines, err := s.store.ListTimelines(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("listing timelines: %w", err)
	}
	timelineIDs := []string{""}
	for i := range timelines {
		if !timelines[i].IsMain {
			timelineIDs = append(timelineIDs, timelines[i].ID)
		}
	}

	count := 0
	for _, tid := range timelineIDs {
		list, err := s.store.ListEntries(ctx, projectID, tid)
		if err != nil {
			return count, fmt.Errorf("listing entries: %w", err)
		}
		if len(list) == 0 {
			continue
		}

		texts := make([]string, len(list))
		for i := range list {
			texts[i] = EntryText(&list[i])
		}
		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return count, fmt.Errorf("generating embeddings: %w", err)
		}
		if len(embeddings) != len(list) {
			return count, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(list))
		}

		for i := range list {
			if err := s.index.Upsert(ctx, indexedEntry(&list[i], embeddings[i])); err != nil {
				return count, fmt.Errorf("indexing entry %s: %w", list[i].ID, err)
			}
			count++
		}
	}
	s.logger.InfoContext(ctx, "project reindexed", "project_id", projectID, "entries", count)
	return count, nil
}

// Search finds entries semantically similar to the query among the canon
// visible from a timeline. An empty kind searches every kind.
func (s *SearchService) Search(ctx context.Context, projectID, timelineID, query string, kind entities.EntityKind, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, canonerr.InvalidArgument("search query is required")
	}
	if kind != "" && !kind.IsValid() {
		return nil, canonerr.InvalidArgument("unknown kind %q", kind)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	cc, err := s.loader.Load(ctx, projectID, timelineID)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("generating query embedding: %w", err)
	}

	hits, err := s.index.Search(ctx, embedding, ports.IndexFilter{ProjectID: projectID, Kind: kind}, limit*searchOverfetch)
	if err != nil {
		return nil, fmt.Errorf("searching entries: %w", err)
	}

	results := make([]SearchResult, 0, limit)
	for _, hit := range hits {
		entry, ok := cc.Entry(hit.EntryID)
		if !ok {
			continue
		}
		results = append(results, SearchResult{Entry: entry, Score: hit.Score})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// EntryText is the text embedded for an entry.
func EntryText(e *entities.CanonEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Name)
	if e.Description != "" {
		b.WriteString(". ")
		b.WriteString(e.Description)
	}
	for _, key := range e.Payload.Keys() {
		fmt.Fprintf(&b, "\n%s: %s", key, formatAttribute(e.Payload[key]))
	}
	return b.String()
}

func indexedEntry(e *entities.CanonEntry, embedding []float32) ports.IndexedEntry {
	return ports.IndexedEntry{
		EntryID:    e.ID,
		ProjectID:  e.ProjectID,
		TimelineID: e.TimelineID,
		Kind:       e.Kind,
		Name:       e.Name,
		Embedding:  embedding,
	}
}
