package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/parsers"
)

// Valid export formats.
var validFormats = []string{"json", "csv", "markdown"}

type exportFlags struct {
	format   string
	output   string
	kind     string
	timeline string
}

func newExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the canon visible from a timeline",
		Long:  "Exports entries to JSON, CSV or markdown. JSON and CSV output can be read back with 'canon import'.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "Output format (json, csv, markdown)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&flags.kind, "kind", "k", "", "Filter by kind")
	cmd.Flags().StringVarP(&flags.timeline, "timeline", "t", "", "Timeline ID (defaults to main)")

	return cmd
}

func runExport(cmd *cobra.Command, flags exportFlags) error {
	if !contains(validFormats, flags.format) {
		return fmt.Errorf("invalid format %q, valid formats: %v", flags.format, validFormats)
	}
	kind := entities.EntityKind(flags.kind)
	if kind != "" && !kind.IsValid() {
		return fmt.Errorf("invalid kind %q, valid kinds: %v", flags.kind, entities.KindNames())
	}

	return withDeps(func(d *Deps) error {
		result, err := d.ConflictHandler.HandleContext(cmd.Context(), d.ProjectID, flags.timeline)
		if err != nil {
			return err
		}

		var list []entities.CanonEntry
		for _, e := range result.Context.Entries() {
			if kind == "" || e.Kind == kind {
				list = append(list, e.CanonEntry)
			}
		}
		if len(list) == 0 {
			return fmt.Errorf("no entries found to export")
		}

		return exportEntries(cmd, flags, list)
	})
}

func exportEntries(cmd *cobra.Command, flags exportFlags, list []entities.CanonEntry) (err error) {
	w := cmd.OutOrStdout()
	if flags.output != "" {
		f, openErr := os.OpenFile(flags.output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if openErr != nil {
			return fmt.Errorf("creating file: %w", openErr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		w = f
	}

	if err := formatEntries(w, flags.format, list); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if flags.output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(list), flags.output)
	}
	return nil
}

func formatEntries(w io.Writer, format string, list []entities.CanonEntry) error {
	switch format {
	case "json":
		return formatJSON(w, toRawEntries(list))
	case "csv":
		return formatCSV(w, toRawEntries(list))
	case "markdown":
		return formatMarkdown(w, list)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// toRawEntries converts entries to the import format, parents before
// children, with parents referenced by slug.
func toRawEntries(list []entities.CanonEntry) []parsers.RawEntry {
	slugs := make(map[string]string, len(list))
	for _, e := range list {
		slugs[e.ID] = e.Slug
	}

	raws := make([]parsers.RawEntry, 0, len(list))
	for _, e := range orderParentsFirst(list) {
		raws = append(raws, parsers.RawEntry{
			Kind:        string(e.Kind),
			Name:        e.Name,
			Description: e.Description,
			Lock:        string(e.LockState),
			Parent:      slugs[e.ParentID],
			Attributes:  e.Payload,
		})
	}
	return raws
}

// orderParentsFirst keeps the input order except that an entry never precedes
// its parent. Parents outside the list are ignored.
func orderParentsFirst(list []entities.CanonEntry) []entities.CanonEntry {
	inList := make(map[string]bool, len(list))
	for _, e := range list {
		inList[e.ID] = true
	}

	out := make([]entities.CanonEntry, 0, len(list))
	emitted := make(map[string]bool, len(list))
	for len(out) < len(list) {
		progressed := false
		for _, e := range list {
			if emitted[e.ID] {
				continue
			}
			if e.ParentID != "" && inList[e.ParentID] && !emitted[e.ParentID] {
				continue
			}
			out = append(out, e)
			emitted[e.ID] = true
			progressed = true
		}
		if !progressed {
			// Cycle: emit the rest as they are.
			for _, e := range list {
				if !emitted[e.ID] {
					out = append(out, e)
					emitted[e.ID] = true
				}
			}
		}
	}
	return out
}

func formatJSON(w io.Writer, raws []parsers.RawEntry) error {
	return writeJSON(w, raws)
}

func formatCSV(w io.Writer, raws []parsers.RawEntry) error {
	var attrNames []string
	seen := make(map[string]bool)
	for _, r := range raws {
		for name := range r.Attributes {
			if !seen[name] {
				seen[name] = true
				attrNames = append(attrNames, name)
			}
		}
	}
	sort.Strings(attrNames)

	writer := csv.NewWriter(w)

	header := []string{"kind", "name", "description", "lock", "parent"}
	for _, name := range attrNames {
		header = append(header, "attr."+name)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range raws {
		row := []string{r.Kind, r.Name, r.Description, r.Lock, r.Parent}
		for _, name := range attrNames {
			row = append(row, csvValue(r.Attributes[name]))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ";")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, csvValue(item))
		}
		return strings.Join(parts, ";")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func formatMarkdown(w io.Writer, list []entities.CanonEntry) error {
	if _, err := fmt.Fprintf(w, "# Canon\n\nTotal: %d entries\n", len(list)); err != nil {
		return err
	}

	var current entities.EntityKind
	for _, e := range list {
		if e.Kind != current {
			current = e.Kind
			if _, err := fmt.Fprintf(w, "\n## %s\n", current); err != nil {
				return err
			}
		}

		title := escapeMarkdown(e.Name)
		if e.IsLocked() {
			title += " (" + string(e.LockState) + ")"
		}
		if _, err := fmt.Fprintf(w, "\n### %s\n\n", title); err != nil {
			return err
		}
		if e.Description != "" {
			if _, err := fmt.Fprintf(w, "%s\n\n", escapeMarkdown(e.Description)); err != nil {
				return err
			}
		}

		keys := make([]string, 0, len(e.Payload))
		for k := range e.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			value := strings.ReplaceAll(csvValue(e.Payload[k]), ";", ", ")
			if _, err := fmt.Fprintf(w, "- **%s**: %s\n", k, escapeMarkdown(value)); err != nil {
				return err
			}
		}
	}

	return nil
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
