// Package parsers provides parsers for importing canon entries from various formats.
package parsers

import (
	"io"
	"path/filepath"
	"strings"
)

// RawEntry represents a canon entry parsed from an external source before validation.
type RawEntry struct {
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Lock        string         `json:"lock,omitempty"`   // unlocked, soft_locked or hard_locked
	Parent      string         `json:"parent,omitempty"` // Slug or name of the parent entry
	Attributes  map[string]any `json:"attributes,omitempty"`
	LineNum     int            `json:"-"` // Line number in source file (set by parser)
}

// Parser defines the interface for parsing canon entries from various formats.
type Parser interface {
	Parse(r io.Reader) ([]RawEntry, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return &JSONParser{}
	case ".csv":
		return &CSVParser{}
	default:
		return nil
	}
}
