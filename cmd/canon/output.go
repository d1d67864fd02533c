package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/parsers"
)

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printEntry writes a one-line summary of an entry.
func printEntry(w io.Writer, e *entities.CanonEntry) {
	lock := ""
	switch e.LockState {
	case entities.LockHard:
		lock = " [hard lock]"
	case entities.LockSoft:
		lock = " [soft lock]"
	}
	status := ""
	if !e.Active {
		status = " (deleted)"
	}
	fmt.Fprintf(w, "%s  %-12s %s (%s) v%d%s%s\n", e.ID, e.Kind, e.Name, e.Slug, e.Version, lock, status)
}

// parseAttributeFlags converts repeated key=value flags into typed attributes.
// An empty value removes the key when merged.
func parseAttributeFlags(kind entities.EntityKind, flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	attrs := make(map[string]any, len(flags))
	for _, f := range flags {
		key, raw, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q (expected key=value)", f)
		}
		if strings.TrimSpace(raw) == "" {
			attrs[key] = nil
			continue
		}
		value, err := parsers.ParseAttribute(kind, key, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
		}
		attrs[key] = value
	}
	return attrs, nil
}

// parseLockState accepts the short lock names used on the command line.
func parseLockState(s string) (entities.LockState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "unlocked":
		return entities.LockUnlocked, nil
	case "soft", "soft_locked":
		return entities.LockSoft, nil
	case "hard", "hard_locked":
		return entities.LockHard, nil
	default:
		return "", fmt.Errorf("invalid lock state %q (valid: none, soft, hard)", s)
	}
}
