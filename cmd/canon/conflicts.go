package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/application/handlers"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
)

func newContextCmd() *cobra.Command {
	var timeline string

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print the canon context a generator would see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				result, err := d.ConflictHandler.HandleContext(cmd.Context(), d.ProjectID, timeline)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), result.Rendered)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&timeline, "timeline", "t", "", "Timeline ID (defaults to main)")

	return cmd
}

type checkFlags struct {
	level    string
	timeline string
	out      string
	asJSON   bool
}

func newCheckCmd() *cobra.Command {
	var flags checkFlags

	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Check generated text against canon",
		Long: "Sends the text and the timeline's canon to the LLM and reports conflicts. " +
			"Use - to read from stdin. Detection failures report no conflicts and log a warning.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.level, "level", "l", "", "Enforcement level (strict, moderate, relaxed; defaults to config)")
	cmd.Flags().StringVarP(&flags.timeline, "timeline", "t", "", "Timeline ID (defaults to main)")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "Write the result as JSON to this file (input for 'canon resolve')")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func runCheck(cmd *cobra.Command, path string, flags checkFlags) error {
	level := entities.EnforcementLevel(flags.level)
	if level != "" && !level.IsValid() {
		return fmt.Errorf("invalid level %q (valid: strict, moderate, relaxed)", flags.level)
	}

	text, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	return withDeps(func(d *Deps) error {
		if d.GeneratorErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: conflict detection unavailable: %v\n", d.GeneratorErr)
		}

		result, err := d.ConflictHandler.HandleCheck(cmd.Context(), handlers.CheckRequest{
			ProjectID:  d.ProjectID,
			TimelineID: flags.timeline,
			Text:       text,
			Level:      level,
		})
		if err != nil {
			return fmt.Errorf("checking text: %w", err)
		}

		if flags.out != "" {
			if err := writeCheckResult(flags.out, result); err != nil {
				return err
			}
		}
		if flags.asJSON {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		printConflicts(cmd.OutOrStdout(), result.Conflicts, text)
		return nil
	})
}

func readInput(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}

func writeCheckResult(path string, result *handlers.CheckResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	if err := writeJSON(f, result); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}

func printConflicts(w io.Writer, conflicts []entities.CanonConflict, text string) {
	if len(conflicts) == 0 {
		fmt.Fprintln(w, "No conflicts found.")
		return
	}

	fmt.Fprintf(w, "Found %d conflicts:\n\n", len(conflicts))
	runes := []rune(text)
	for i, c := range conflicts {
		fmt.Fprintf(w, "%d. [%s] %s: %s\n", i+1, c.Severity, c.Kind, c.EntryName)
		fmt.Fprintf(w, "   %s\n", c.Description)
		if !c.Span.IsZero() && c.Span.End <= len(runes) {
			fmt.Fprintf(w, "   Text (%d-%d): %q\n", c.Span.Start, c.Span.End, string(runes[c.Span.Start:c.Span.End]))
		} else if c.GeneratedText != "" {
			fmt.Fprintf(w, "   Text: %q\n", c.GeneratedText)
		}
		if c.SuggestedResolution != "" {
			fmt.Fprintf(w, "   Suggestion: %s\n", c.SuggestedResolution)
		}
		fmt.Fprintln(w)
	}
}

type resolveFlags struct {
	index        int
	strategy     string
	set          []string
	timelineName string
	reason       string
	actor        string
	fromEntry    bool
}

func newResolveCmd() *cobra.Command {
	var flags resolveFlags

	cmd := &cobra.Command{
		Use:   "resolve <conflicts.json>",
		Short: "Resolve conflicts written by 'canon check --out'",
		Long: "Applies one resolution to the selected conflicts:\n" +
			"  keep    leave canon unchanged (fix the text instead)\n" +
			"  update  change the canon entry with --set key=value\n" +
			"  fork    copy the entry onto a new what-if timeline, optionally changed with --set",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], flags)
		},
	}

	cmd.Flags().IntVarP(&flags.index, "index", "i", 0, "Conflict number to resolve (1-based; 0 resolves all)")
	cmd.Flags().StringVarP(&flags.strategy, "strategy", "s", "keep", "Resolution (keep, update, fork)")
	cmd.Flags().StringArrayVar(&flags.set, "set", nil, "Attribute change as key=value (repeatable)")
	cmd.Flags().StringVar(&flags.timelineName, "timeline-name", "", "Name of the forked timeline")
	cmd.Flags().BoolVar(&flags.fromEntry, "from-entry-timeline", false, "Fork from the entry's own timeline instead of main")
	cmd.Flags().StringVarP(&flags.reason, "reason", "r", "", "Why canon changed")
	cmd.Flags().StringVar(&flags.actor, "actor", DefaultActor, "Who made the change")

	return cmd
}

func parseStrategy(s string) (entities.ResolutionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keep", string(entities.ResolutionKeepCanon):
		return entities.ResolutionKeepCanon, nil
	case "update", string(entities.ResolutionUpdateCanon):
		return entities.ResolutionUpdateCanon, nil
	case "fork", string(entities.ResolutionForkTimeline):
		return entities.ResolutionForkTimeline, nil
	default:
		return "", fmt.Errorf("invalid strategy %q (valid: keep, update, fork)", s)
	}
}

// selectConflicts returns the conflict at a 1-based index, or all when index is 0.
func selectConflicts(conflicts []entities.CanonConflict, index int) ([]entities.CanonConflict, error) {
	if index == 0 {
		return conflicts, nil
	}
	if index < 0 || index > len(conflicts) {
		return nil, fmt.Errorf("conflict %d out of range (file has %d)", index, len(conflicts))
	}
	return conflicts[index-1 : index], nil
}

func runResolve(cmd *cobra.Command, path string, flags resolveFlags) error {
	kind, err := parseStrategy(flags.strategy)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading conflicts file: %w", err)
	}
	var checked handlers.CheckResult
	if err := json.Unmarshal(data, &checked); err != nil {
		return fmt.Errorf("parsing conflicts file: %w", err)
	}
	selected, err := selectConflicts(checked.Conflicts, flags.index)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conflicts to resolve.")
		return nil
	}

	ctx := cmd.Context()
	return withDeps(func(d *Deps) error {
		if checked.ProjectID != "" && checked.ProjectID != d.ProjectID {
			return fmt.Errorf("conflicts file belongs to project %q, not %q", checked.ProjectID, d.ProjectID)
		}

		reqs := make([]services.ResolutionRequest, 0, len(selected))
		for _, c := range selected {
			req := services.ResolutionRequest{
				Conflict:  c,
				Kind:      kind,
				ProjectID: d.ProjectID,
				Actor:     flags.actor,
			}
			if kind != entities.ResolutionKeepCanon {
				payload, err := resolutionPayload(cmd, d, c, flags)
				if err != nil {
					return err
				}
				req.Payload = payload
			}
			reqs = append(reqs, req)
		}

		outcomes := d.ConflictHandler.HandleResolve(ctx, reqs)
		failed := printOutcomes(cmd.OutOrStdout(), outcomes)
		if failed > 0 {
			return fmt.Errorf("%d of %d resolutions failed", failed, len(outcomes))
		}
		return nil
	})
}

func resolutionPayload(cmd *cobra.Command, d *Deps, c entities.CanonConflict, flags resolveFlags) (*services.ResolutionPayload, error) {
	payload := &services.ResolutionPayload{
		TimelineName:      flags.timelineName,
		Reason:            flags.reason,
		FromEntryTimeline: flags.fromEntry,
	}
	if len(flags.set) == 0 {
		return payload, nil
	}
	kind, err := conflictEntryKind(cmd.Context(), d.EntryHandler, c)
	if err != nil {
		return nil, err
	}
	attrs, err := parseAttributeFlags(kind, flags.set)
	if err != nil {
		return nil, err
	}
	payload.Patch.Attributes = attrs
	return payload, nil
}

type entryShower interface {
	HandleShow(ctx context.Context, entryID string) (*handlers.EntryDetail, error)
}

// conflictEntryKind returns the kind used to type --set values. A missing
// entry yields an empty kind so the resolution itself reports NotFound.
func conflictEntryKind(ctx context.Context, entries entryShower, c entities.CanonConflict) (entities.EntityKind, error) {
	detail, err := entries.HandleShow(ctx, c.EntryID)
	if errors.Is(err, canonerr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("conflict on %q: %w", c.EntryName, err)
	}
	return detail.Entry.Kind, nil
}

func printOutcomes(w io.Writer, outcomes []services.ResolutionOutcome) int {
	failed := 0
	for i, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(w, "%d. %s on %s failed: %v\n", i+1, o.Kind, o.Conflict.EntryName, o.Err)
			continue
		}
		switch o.Kind {
		case entities.ResolutionKeepCanon:
			fmt.Fprintf(w, "%d. kept canon for %s\n", i+1, o.Conflict.EntryName)
		case entities.ResolutionUpdateCanon:
			fmt.Fprintf(w, "%d. updated %s to v%d\n", i+1, o.Entry.Name, o.Entry.Version)
		case entities.ResolutionForkTimeline:
			fmt.Fprintf(w, "%d. forked %s onto timeline %q (%s)\n", i+1, o.Entry.Name, o.Timeline.Name, o.Timeline.ID)
		}
	}
	return failed
}
