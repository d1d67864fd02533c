package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/parsers"
)

// ImportHandler handles importing canon entries from seed files.
type ImportHandler struct {
	service *services.ImportService
}

// NewImportHandler creates a new import handler.
func NewImportHandler(service *services.ImportService) *ImportHandler {
	return &ImportHandler{
		service: service,
	}
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	Format     string                    // "json", "csv", or "auto"
	DryRun     bool                      // Validate without saving
	OnConflict services.ConflictStrategy // How to handle existing entries
	TimelineID string                    // Empty imports onto main
	Actor      string
}

// Handle imports entries from a file into a project.
func (h *ImportHandler) Handle(ctx context.Context, projectID, filePath string, opts ImportOptions) (*services.ImportResult, error) {
	// Get parser
	var parser parsers.Parser
	if opts.Format == "" || opts.Format == "auto" {
		parser = parsers.ForFile(filePath)
	} else {
		parser = parsers.ForFormat(opts.Format)
	}

	if parser == nil {
		return nil, fmt.Errorf("unsupported format for file: %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	raws, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}

	if len(raws) == 0 {
		return &services.ImportResult{}, nil
	}

	return h.service.Import(ctx, projectID, raws, services.ImportOptions{
		DryRun:     opts.DryRun,
		OnConflict: opts.OnConflict,
		TimelineID: opts.TimelineID,
		Actor:      opts.Actor,
	})
}
