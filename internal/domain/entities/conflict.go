package entities

// ConflictKind is the area of canon a conflict touches.
type ConflictKind string

const (
	ConflictCharacter ConflictKind = "character"
	ConflictLocation  ConflictKind = "location"
	ConflictRule      ConflictKind = "rule"
	ConflictEvent     ConflictKind = "event"
	ConflictTheme     ConflictKind = "theme"
	ConflictTimeline  ConflictKind = "timeline"
)

// IsValid checks if the conflict kind is known.
func (k ConflictKind) IsValid() bool {
	switch k {
	case ConflictCharacter, ConflictLocation, ConflictRule, ConflictEvent, ConflictTheme, ConflictTimeline:
		return true
	default:
		return false
	}
}

// Severity grades a conflict.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// IsValid checks if the severity is known.
func (s Severity) IsValid() bool {
	return s == SeverityWarning || s == SeverityError
}

// Span is a half-open range of character (rune) offsets into generated text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// IsZero reports whether the span selects nothing.
func (s Span) IsZero() bool {
	return s.Start == 0 && s.End == 0
}

// CanonConflict is an inconsistency between generated text and one canon entry.
// It lives only for the request that detected it.
type CanonConflict struct {
	Kind                ConflictKind `json:"kind"`
	Severity            Severity     `json:"severity"`
	Description         string       `json:"description"`
	EntryID             string       `json:"entry_id"`
	EntryName           string       `json:"entry_name"` // Cached; the entry may change later
	SuggestedResolution string       `json:"suggested_resolution,omitempty"`
	GeneratedText       string       `json:"generated_text"`
	Span                Span         `json:"span"`
}

// ResolutionKind selects one of the mutually exclusive conflict resolutions.
type ResolutionKind string

const (
	ResolutionKeepCanon    ResolutionKind = "keep_canon"
	ResolutionUpdateCanon  ResolutionKind = "update_canon"
	ResolutionForkTimeline ResolutionKind = "fork_timeline"
)

// EnforcementLevel controls which detected conflicts are reported.
type EnforcementLevel string

const (
	// EnforcementStrict reports every conflict.
	EnforcementStrict EnforcementLevel = "strict"
	// EnforcementModerate reports only error-severity conflicts.
	EnforcementModerate EnforcementLevel = "moderate"
	// EnforcementRelaxed skips detection entirely.
	EnforcementRelaxed EnforcementLevel = "relaxed"
)

// IsValid checks if the enforcement level is known.
func (l EnforcementLevel) IsValid() bool {
	switch l {
	case EnforcementStrict, EnforcementModerate, EnforcementRelaxed:
		return true
	default:
		return false
	}
}

// Admits reports whether a conflict of the given severity is kept at this level.
func (l EnforcementLevel) Admits(s Severity) bool {
	switch l {
	case EnforcementStrict:
		return true
	case EnforcementModerate:
		return s == SeverityError
	default:
		return false
	}
}
