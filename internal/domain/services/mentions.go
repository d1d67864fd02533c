package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

// Mention is an occurrence of an entry name or alias in text. Offsets are
// rune offsets into the scanned text, end exclusive.
type Mention struct {
	EntryID string `json:"entry_id"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Text    string `json:"text"`
}

// MentionIndex finds entry names and aliases in free text.
type MentionIndex struct {
	ac       *ahocorasick.Automaton
	patterns []string
	entries  [][]string // pattern index -> entry ids
}

// NewMentionIndex compiles the names and aliases of every entry in cc.
func NewMentionIndex(cc *entities.CanonContext) (*MentionIndex, error) {
	idx := &MentionIndex{}
	byPattern := make(map[string]int)

	for _, e := range cc.Entries() {
		surfaces := append([]string{e.Name}, e.Payload.Strings("aliases")...)
		for _, s := range surfaces {
			key := foldText(strings.TrimSpace(s))
			if key == "" {
				continue
			}
			if i, ok := byPattern[key]; ok {
				idx.entries[i] = appendUnique(idx.entries[i], e.ID)
				continue
			}
			byPattern[key] = len(idx.patterns)
			idx.patterns = append(idx.patterns, key)
			idx.entries = append(idx.entries, []string{e.ID})
		}
	}

	if len(idx.patterns) == 0 {
		return idx, nil
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(idx.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building mention automaton: %w", err)
	}
	idx.ac = ac
	return idx, nil
}

// Scan returns word-bounded mentions in text, ordered by position. Where
// matches overlap the longest one starting first wins.
func (m *MentionIndex) Scan(text string) []Mention {
	if m == nil || m.ac == nil || text == "" {
		return nil
	}

	runes := []rune(text)
	folded, runeAt := foldWithOffsets(runes)
	matches := m.ac.FindAllOverlapping([]byte(folded))

	type span struct{ start, end, pattern int }
	spans := make([]span, 0, len(matches))
	for _, match := range matches {
		start, end := runeAt[match.Start], runeAt[match.End]
		if start >= end || !wordBounded(runes, start, end) {
			continue
		}
		spans = append(spans, span{start: start, end: end, pattern: match.PatternID})
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end-spans[i].start > spans[j].end-spans[j].start
	})

	var out []Mention
	covered := 0
	for _, s := range spans {
		if s.start < covered {
			continue
		}
		covered = s.end
		for _, id := range m.entries[s.pattern] {
			out = append(out, Mention{
				EntryID: id,
				Start:   s.start,
				End:     s.end,
				Text:    string(runes[s.start:s.end]),
			})
		}
	}
	return out
}

// MentionedEntries returns the ids of entries mentioned in text, in order of
// first appearance.
func (m *MentionIndex) MentionedEntries(text string) []string {
	var ids []string
	for _, mention := range m.Scan(text) {
		ids = appendUnique(ids, mention.EntryID)
	}
	return ids
}

// FirstMention returns the first mention of entryID in text.
func (m *MentionIndex) FirstMention(entryID, text string) (Mention, bool) {
	for _, mention := range m.Scan(text) {
		if mention.EntryID == entryID {
			return mention, true
		}
	}
	return Mention{}, false
}

// foldRune maps a rune to its matching form. Every rune folds to exactly one
// rune so rune offsets survive folding.
func foldRune(r rune) rune {
	switch r {
	case '‘', '’', 'ʼ':
		return '\''
	case '–', '—':
		return '-'
	}
	return unicode.ToLower(r)
}

func foldText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(foldRune(r))
	}
	return b.String()
}

// foldWithOffsets folds runes and returns, for every byte offset of the
// folded string (plus its end), the rune offset it starts in.
func foldWithOffsets(runes []rune) (string, []int) {
	var b strings.Builder
	runeAt := make([]int, 0, len(runes)+1)
	for i, r := range runes {
		f := foldRune(r)
		b.WriteRune(f)
		for n := utf8.RuneLen(f); n > 0; n-- {
			runeAt = append(runeAt, i)
		}
	}
	runeAt = append(runeAt, len(runes))
	return b.String(), runeAt
}

func wordBounded(runes []rune, start, end int) bool {
	if start > 0 && isWordRune(runes[start-1]) {
		return false
	}
	if end < len(runes) && isWordRune(runes[end]) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
