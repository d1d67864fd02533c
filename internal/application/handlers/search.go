package handlers

import (
	"context"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
)

// SearchHandler handles semantic canon search.
type SearchHandler struct {
	search *services.SearchService
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(search *services.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// SearchRequest is one semantic search.
type SearchRequest struct {
	ProjectID  string
	TimelineID string
	Query      string
	Kind       entities.EntityKind
	Limit      int
}

// SearchResponse holds ranked search results.
type SearchResponse struct {
	Query   string                  `json:"query"`
	Results []services.SearchResult `json:"results"`
}

// Handle runs a semantic search.
func (h *SearchHandler) Handle(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	results, err := h.search.Search(ctx, req.ProjectID, req.TimelineID, req.Query, req.Kind, req.Limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []services.SearchResult{}
	}
	return &SearchResponse{Query: req.Query, Results: results}, nil
}

// HandleReindex rebuilds the index for every timeline of a project.
func (h *SearchHandler) HandleReindex(ctx context.Context, projectID string) (int, error) {
	return h.search.Reindex(ctx, projectID)
}
