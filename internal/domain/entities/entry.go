// Package entities contains core domain data structures.
package entities

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EntityKind represents the category of a canon entry.
type EntityKind string

// Entity kinds supported by the canon engine.
const (
	KindCharacter    EntityKind = "character"
	KindLocation     EntityKind = "location"
	KindRule         EntityKind = "rule"
	KindEvent        EntityKind = "event"
	KindTheme        EntityKind = "theme"
	KindReference    EntityKind = "reference"
	KindItem         EntityKind = "item"
	KindRelationship EntityKind = "relationship"
)

// Kinds lists every entity kind in canonical display order.
var Kinds = []EntityKind{
	KindCharacter,
	KindLocation,
	KindRule,
	KindEvent,
	KindTheme,
	KindReference,
	KindItem,
	KindRelationship,
}

// IsValid checks if the kind is one of the supported entity kinds.
func (k EntityKind) IsValid() bool {
	for _, kind := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// KindNames returns the kind names as strings, in canonical order.
func KindNames() []string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return names
}

// LockState is the protection level of a canon entry.
type LockState string

const (
	LockUnlocked LockState = "unlocked"
	// LockSoft is advisory: it records author intent but does not block writes.
	LockSoft LockState = "soft_locked"
	// LockHard blocks every content mutation until the entry is unlocked.
	LockHard LockState = "hard_locked"
)

// IsValid checks if the lock state is known.
func (s LockState) IsValid() bool {
	switch s {
	case LockUnlocked, LockSoft, LockHard:
		return true
	default:
		return false
	}
}

// CanonEntry is one canonical fact unit owned by a project.
type CanonEntry struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Kind        EntityKind `json:"kind"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	Payload     Payload    `json:"payload,omitempty"`
	LockState   LockState  `json:"lock_state"`
	Version     int        `json:"version"`
	ParentID    string     `json:"parent_id,omitempty"`
	TimelineID  string     `json:"timeline_id,omitempty"` // Empty means the main timeline
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsLocked reports whether any lock, soft or hard, is set.
func (e *CanonEntry) IsLocked() bool {
	return e.LockState != "" && e.LockState != LockUnlocked
}

// IsHardLocked reports whether the entry rejects mutation.
func (e *CanonEntry) IsHardLocked() bool {
	return e.LockState == LockHard
}

// Clone returns a deep copy of the entry.
func (e *CanonEntry) Clone() CanonEntry {
	c := *e
	c.Payload = e.Payload.Clone()
	return c
}

// Snapshot captures the content fields tracked by version history.
func (e *CanonEntry) Snapshot() Snapshot {
	return Snapshot{
		Name:        e.Name,
		Description: e.Description,
		Payload:     e.Payload.Clone(),
	}
}

// slugLetters spells out letters that do not decompose into a base letter
// plus combining marks.
var slugLetters = strings.NewReplacer(
	"'", "", "’", "",
	"æ", "ae", "œ", "oe", "ø", "o", "ß", "ss",
	"đ", "d", "ð", "d", "ł", "l", "þ", "th", "ı", "i",
)

// Slugify derives the slug for a display name: lower case, accents removed,
// letters and digits of any script kept, everything else collapsed to '-'.
// "Elena Vasquez" becomes "elena-vasquez" and "José" becomes "jose".
func Slugify(name string) string {
	folded := slugLetters.Replace(strings.ToLower(strings.TrimSpace(name)))
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(stripMarks, folded); err == nil {
		folded = out
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
