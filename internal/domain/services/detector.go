package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
)

// DefaultDetectTimeout bounds a single detection call.
const DefaultDetectTimeout = 30 * time.Second

const detectionSystemPrompt = `You are a continuity editor for a story bible. You compare newly generated text against the established canon and report every contradiction.

Canon entries marked {LOCKED} are fixed facts; contradicting them is always severity "error".

Respond with a single JSON object and nothing else:
{"conflicts": [
  {
    "kind": "character" | "location" | "rule" | "event" | "theme" | "timeline",
    "severity": "warning" | "error",
    "description": "what contradicts canon and how",
    "conflictingEntryId": "id of the canon entry, copied from [brackets]",
    "conflictingEntryName": "name of the canon entry",
    "suggestedResolution": "how the text could be changed to agree with canon",
    "generatedText": "the exact excerpt of the text that conflicts",
    "offsetStart": 0,
    "offsetEnd": 0
  }
]}

offsetStart and offsetEnd are character offsets of generatedText within the text, end exclusive.
Report only contradictions with the canon given. New details that canon does not mention are not conflicts.
If there are no conflicts return {"conflicts": []}.`

const detectionUserPrompt = `<<<CANON>>>
%s<<<END CANON>>>

Canon entries mentioned in the text:
%s
<<<TEXT>>>
%s
<<<END TEXT>>>`

// ConflictDetector checks generated text against a canon context. It holds no
// mutable state; concurrent Detect calls are independent.
type ConflictDetector struct {
	gen     ports.Generator
	logger  *slog.Logger
	timeout time.Duration
}

// NewConflictDetector creates a new conflict detector. A non-positive timeout
// uses DefaultDetectTimeout.
func NewConflictDetector(gen ports.Generator, logger *slog.Logger, timeout time.Duration) *ConflictDetector {
	if timeout <= 0 {
		timeout = DefaultDetectTimeout
	}
	return &ConflictDetector{
		gen:     gen,
		logger:  orDiscard(logger),
		timeout: timeout,
	}
}

// Detect returns the conflicts between text and cc that level admits.
// Detection never fails: when the generator errors, times out or breaks the
// output contract the result is empty and the cause is logged.
func (d *ConflictDetector) Detect(ctx context.Context, text string, cc *entities.CanonContext, level entities.EnforcementLevel) []entities.CanonConflict {
	if !level.IsValid() {
		d.logger.WarnContext(ctx, "unknown enforcement level, using strict", "level", level)
		level = entities.EnforcementStrict
	}
	if level == entities.EnforcementRelaxed {
		return nil
	}
	if cc == nil || cc.Len() == 0 || strings.TrimSpace(text) == "" {
		return []entities.CanonConflict{}
	}

	mentions, err := NewMentionIndex(cc)
	if err != nil {
		d.logger.WarnContext(ctx, "mention index unavailable", "error", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	gen, err := d.gen.Generate(genCtx, detectionSystemPrompt, buildDetectionPrompt(text, cc, mentions))
	if err != nil {
		reason := "generator error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		return d.degraded(ctx, cc, reason, err)
	}
	d.logger.DebugContext(ctx, "detection completed",
		"project_id", cc.ProjectID(),
		"duration", time.Since(start),
		"prompt_tokens", gen.Usage.PromptTokens,
		"completion_tokens", gen.Usage.CompletionTokens,
		"total_tokens", gen.Usage.TotalTokens,
	)

	raws, err := parseDetection(gen.Text)
	if err != nil {
		return d.degraded(ctx, cc, "invalid response", err)
	}

	conflicts := make([]entities.CanonConflict, 0, len(raws))
	for i := range raws {
		c := raws[i].toConflict()
		if !level.Admits(c.Severity) {
			continue
		}
		repairEntryReference(&c, cc)
		repairSpan(&c, text, raws[i].OffsetStart, raws[i].OffsetEnd, mentions)
		conflicts = append(conflicts, c)
	}
	return conflicts
}

func (d *ConflictDetector) degraded(ctx context.Context, cc *entities.CanonContext, reason string, err error) []entities.CanonConflict {
	d.logger.WarnContext(ctx, "conflict detection degraded",
		"project_id", cc.ProjectID(),
		"reason", reason,
		"error", err,
	)
	return []entities.CanonConflict{}
}

func buildDetectionPrompt(text string, cc *entities.CanonContext, mentions *MentionIndex) string {
	var mentioned strings.Builder
	for _, id := range mentions.MentionedEntries(text) {
		if e, ok := cc.Entry(id); ok {
			fmt.Fprintf(&mentioned, "- [%s] %s (%s)\n", e.ID, e.Name, e.Kind)
		}
	}
	if mentioned.Len() == 0 {
		mentioned.WriteString("(none found by name)\n")
	}
	return fmt.Sprintf(detectionUserPrompt, RenderContext(cc), mentioned.String(), text)
}

// detectionResponse is the JSON object the generator must return.
type detectionResponse struct {
	Conflicts *[]rawConflict `json:"conflicts"`
}

// rawConflict is the JSON structure for one reported conflict.
type rawConflict struct {
	Kind                 string `json:"kind"`
	Severity             string `json:"severity"`
	Description          string `json:"description"`
	ConflictingEntryID   string `json:"conflictingEntryId"`
	ConflictingEntryName string `json:"conflictingEntryName"`
	SuggestedResolution  string `json:"suggestedResolution"`
	GeneratedText        string `json:"generatedText"`
	OffsetStart          *int   `json:"offsetStart"`
	OffsetEnd            *int   `json:"offsetEnd"`
}

func (r *rawConflict) toConflict() entities.CanonConflict {
	return entities.CanonConflict{
		Kind:                entities.ConflictKind(r.Kind),
		Severity:            entities.Severity(r.Severity),
		Description:         strings.TrimSpace(r.Description),
		EntryID:             strings.TrimSpace(r.ConflictingEntryID),
		EntryName:           strings.TrimSpace(r.ConflictingEntryName),
		SuggestedResolution: strings.TrimSpace(r.SuggestedResolution),
		GeneratedText:       r.GeneratedText,
	}
}

// parseDetection enforces the output contract. Any deviation rejects the
// whole response.
func parseDetection(content string) ([]rawConflict, error) {
	content = cleanJSONResponse(content)
	if content == "" {
		return nil, errors.New("empty response")
	}

	var resp detectionResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("parsing conflicts JSON: %w", err)
	}
	if resp.Conflicts == nil {
		return nil, errors.New("response has no conflicts array")
	}

	for i, rc := range *resp.Conflicts {
		if !entities.ConflictKind(rc.Kind).IsValid() {
			return nil, fmt.Errorf("conflict %d: unknown kind %q", i, rc.Kind)
		}
		if !entities.Severity(rc.Severity).IsValid() {
			return nil, fmt.Errorf("conflict %d: unknown severity %q", i, rc.Severity)
		}
	}
	return *resp.Conflicts, nil
}

// repairEntryReference points the conflict at a context entry when the
// reported id is unknown but the name matches one.
func repairEntryReference(c *entities.CanonConflict, cc *entities.CanonContext) {
	if e, ok := cc.Entry(c.EntryID); ok {
		if c.EntryName == "" {
			c.EntryName = e.Name
		}
		return
	}
	if e, ok := cc.EntryByName(c.EntryName); ok {
		c.EntryID = e.ID
		c.EntryName = e.Name
	}
}

// repairSpan makes the span select the excerpt. It tries the reported
// offsets, then the excerpt's first occurrence, then the entry's first
// mention, and otherwise leaves a zero span.
func repairSpan(c *entities.CanonConflict, text string, start, end *int, mentions *MentionIndex) {
	runes := []rune(text)

	if start != nil && end != nil && *start >= 0 && *start < *end && *end <= len(runes) {
		selected := string(runes[*start:*end])
		if c.GeneratedText == "" || selected == c.GeneratedText {
			c.GeneratedText = selected
			c.Span = entities.Span{Start: *start, End: *end}
			return
		}
	}

	if c.GeneratedText != "" {
		if i := strings.Index(text, c.GeneratedText); i >= 0 {
			s := utf8.RuneCountInString(text[:i])
			c.Span = entities.Span{Start: s, End: s + utf8.RuneCountInString(c.GeneratedText)}
			return
		}
	}

	if m, ok := mentions.FirstMention(c.EntryID, text); ok {
		c.Span = entities.Span{Start: m.Start, End: m.End}
		if c.GeneratedText == "" {
			c.GeneratedText = m.Text
		}
		return
	}

	c.Span = entities.Span{}
}

// cleanJSONResponse removes markdown code blocks if present.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	return strings.TrimSpace(content)
}
