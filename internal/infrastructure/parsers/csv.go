package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

const (
	// attrPrefix marks CSV columns holding payload attributes.
	attrPrefix = "attr."
	// listSeparator splits list attribute values in a CSV cell.
	listSeparator = ";"
)

// CSVParser parses canon entries from CSV format.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed entries.
// Expected columns: kind, name, description, lock, parent, plus one attr.<name>
// column per payload attribute. List attributes separate items with ';'.
func (p *CSVParser) Parse(r io.Reader) ([]RawEntry, error) {
	reader := csv.NewReader(r)

	colIndex, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, colIndex)
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}

	requiredCols := []string{"kind", "name"}
	for _, col := range requiredCols {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	return colIndex, nil
}

// readRecords reads all data rows and converts them to RawEntries.
func (p *CSVParser) readRecords(reader *csv.Reader, colIndex map[string]int) ([]RawEntry, error) {
	var entries []RawEntry
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		entry, err := p.parseRecord(record, colIndex, lineNum)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// parseRecord converts a CSV record to a RawEntry.
func (p *CSVParser) parseRecord(record []string, colIndex map[string]int, lineNum int) (RawEntry, error) {
	entry := RawEntry{
		Kind:        strings.TrimSpace(getColumn(record, colIndex, "kind")),
		Name:        strings.TrimSpace(getColumn(record, colIndex, "name")),
		Description: getColumn(record, colIndex, "description"),
		Lock:        strings.TrimSpace(getColumn(record, colIndex, "lock")),
		Parent:      strings.TrimSpace(getColumn(record, colIndex, "parent")),
		LineNum:     lineNum,
	}

	schema := entities.KindSchemas[entities.EntityKind(entry.Kind)]
	for col := range colIndex {
		name, ok := strings.CutPrefix(col, attrPrefix)
		if !ok || name == "" {
			continue
		}
		raw := strings.TrimSpace(getColumn(record, colIndex, col))
		if raw == "" {
			continue
		}
		value, err := parseAttribute(schema[name], raw)
		if err != nil {
			return RawEntry{}, fmt.Errorf("line %d: invalid %s value %q: %w", lineNum, name, raw, err)
		}
		if entry.Attributes == nil {
			entry.Attributes = make(map[string]any)
		}
		entry.Attributes[name] = value
	}

	return entry, nil
}

// parseAttribute converts a cell to the attribute's declared type. Unknown
// attributes stay strings unless they hold a list.
func parseAttribute(t entities.AttrType, raw string) (any, error) {
	switch t {
	case entities.AttrNumber:
		return strconv.ParseFloat(raw, 64)
	case entities.AttrBool:
		return strconv.ParseBool(raw)
	case entities.AttrStringList:
		return splitList(raw), nil
	case entities.AttrString:
		return raw, nil
	default:
		if strings.Contains(raw, listSeparator) {
			return splitList(raw), nil
		}
		return raw, nil
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, listSeparator)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getColumn safely retrieves a column value from a record.
func getColumn(record []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(record) {
		return record[idx]
	}
	return ""
}

// ParseAttribute converts a textual value to the type kind declares for the
// attribute name.
func ParseAttribute(kind entities.EntityKind, name, raw string) (any, error) {
	return parseAttribute(entities.KindSchemas[kind][name], strings.TrimSpace(raw))
}
