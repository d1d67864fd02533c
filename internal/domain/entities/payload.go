package entities

import (
	"fmt"
	"sort"
)

// AttrType is the value type of a known payload attribute.
type AttrType string

const (
	AttrString     AttrType = "string"
	AttrStringList AttrType = "string_list"
	AttrNumber     AttrType = "number"
	AttrBool       AttrType = "bool"
)

// KindSchemas declares the known attributes of each entity kind. Attributes not
// listed here are accepted as extensions and stored untyped.
var KindSchemas = map[EntityKind]map[string]AttrType{
	KindCharacter: {
		"aliases":   AttrStringList,
		"age":       AttrNumber,
		"eyeColor":  AttrString,
		"hairColor": AttrString,
		"role":      AttrString,
		"species":   AttrString,
		"traits":    AttrStringList,
	},
	KindLocation: {
		"aliases":    AttrStringList,
		"region":     AttrString,
		"climate":    AttrString,
		"population": AttrNumber,
	},
	KindRule: {
		"scope":      AttrString,
		"exceptions": AttrStringList,
		"enforced":   AttrBool,
	},
	KindEvent: {
		"date":         AttrString,
		"order":        AttrNumber,
		"participants": AttrStringList,
		"location":     AttrString,
	},
	KindTheme: {
		"motifs": AttrStringList,
		"tone":   AttrString,
	},
	KindReference: {
		"source":   AttrString,
		"url":      AttrString,
		"citation": AttrString,
	},
	KindItem: {
		"aliases":    AttrStringList,
		"owner":      AttrString,
		"material":   AttrString,
		"properties": AttrStringList,
	},
	KindRelationship: {
		"source":        AttrString,
		"target":        AttrString,
		"relationType":  AttrString,
		"bidirectional": AttrBool,
	},
}

// Payload holds the kind-specific attributes of a canon entry. The owning
// entry's Kind is the variant tag; KindSchemas types the known attributes.
type Payload map[string]any

// Clone returns a deep copy of the payload. Lists are copied, other values are
// treated as immutable scalars.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		switch val := v.(type) {
		case []string:
			out[k] = append([]string(nil), val...)
		case []any:
			out[k] = append([]any(nil), val...)
		default:
			out[k] = v
		}
	}
	return out
}

// Merge returns a copy of p with patch applied. A nil value in the patch
// removes the attribute.
func (p Payload) Merge(patch map[string]any) Payload {
	out := p.Clone()
	if out == nil {
		out = Payload{}
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Keys returns the attribute names in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns a string attribute, or "" when absent or not a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Strings returns a list attribute as strings. Single strings are returned as a
// one-element list.
func (p Payload) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Validate type-checks the known attributes of the payload for the given kind.
func (p Payload) Validate(kind EntityKind) error {
	schema := KindSchemas[kind]
	for _, key := range p.Keys() {
		want, known := schema[key]
		if !known {
			continue
		}
		if !matchesType(p[key], want) {
			return fmt.Errorf("attribute %q of %s must be %s", key, kind, want)
		}
	}
	return nil
}

// matchesType reports whether value has the shape required by t.
func matchesType(value any, t AttrType) bool {
	switch t {
	case AttrString:
		_, ok := value.(string)
		return ok
	case AttrNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case AttrBool:
		_, ok := value.(bool)
		return ok
	case AttrStringList:
		switch v := value.(type) {
		case []string:
			return true
		case []any:
			for _, item := range v {
				if _, ok := item.(string); !ok {
					return false
				}
			}
			return true
		}
		return false
	default:
		return true
	}
}
