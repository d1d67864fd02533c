package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/application/handlers"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

type watchFlags struct {
	level    string
	timeline string
	out      string
}

func newWatchCmd() *cobra.Command {
	var flags watchFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Interactive mode with paragraph-by-paragraph conflict checking",
		Long:  "Enter text interactively and check each paragraph against canon. Conflicts are queued and can be saved for 'canon resolve'.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.level, "level", "l", "", "Enforcement level (strict, moderate, relaxed)")
	cmd.Flags().StringVarP(&flags.timeline, "timeline", "t", "", "Timeline ID (defaults to main)")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "conflicts.json", "File written by 'save'")

	return cmd
}

type watchState struct {
	check   func(ctx context.Context, text string) (*handlers.CheckResult, error)
	out     io.Writer
	path    string
	last    *handlers.CheckResult
	pending []entities.CanonConflict
}

func runWatch(cmd *cobra.Command, flags watchFlags) error {
	level := entities.EnforcementLevel(flags.level)
	if level != "" && !level.IsValid() {
		return fmt.Errorf("invalid level %q (valid: strict, moderate, relaxed)", flags.level)
	}

	return withDeps(func(d *Deps) error {
		if d.GeneratorErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: conflict detection unavailable: %v\n", d.GeneratorErr)
		}

		state := &watchState{
			check: func(ctx context.Context, text string) (*handlers.CheckResult, error) {
				return d.ConflictHandler.HandleCheck(ctx, handlers.CheckRequest{
					ProjectID:  d.ProjectID,
					TimelineID: flags.timeline,
					Text:       text,
					Level:      level,
				})
			},
			out:  cmd.OutOrStdout(),
			path: flags.out,
		}
		return state.runInputLoop(cmd.Context(), cmd.InOrStdin())
	})
}

func (s *watchState) runInputLoop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, "Canon watch mode. Enter text and press Enter on an empty line to check.")
	fmt.Fprintln(s.out, "Commands: 'list', 'save', 'discard', 'help', 'quit'")
	fmt.Fprintln(s.out)

	scanner := bufio.NewScanner(in)
	var buf strings.Builder

	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		if buf.Len() == 0 {
			if handled, exit := s.handleCommand(strings.ToLower(strings.TrimSpace(line)), scanner); handled {
				if exit {
					return nil
				}
				continue
			}
		}

		if strings.TrimSpace(line) != "" {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(line)
			continue
		}

		if err := s.flush(ctx, &buf); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return s.flush(ctx, &buf)
}

// handleCommand processes a command line. Returns (handled, shouldExit).
func (s *watchState) handleCommand(input string, scanner *bufio.Scanner) (bool, bool) {
	switch input {
	case "quit", "exit":
		return true, s.handleQuit(scanner)
	case "save":
		if err := s.save(); err != nil {
			fmt.Fprintf(s.out, "Error saving conflicts: %v\n", err)
		}
		return true, false
	case "discard":
		s.pending = nil
		fmt.Fprintln(s.out, "Pending conflicts discarded.")
		return true, false
	case "list":
		s.showPending()
		return true, false
	case "help":
		s.showHelp()
		return true, false
	default:
		return false, false
	}
}

func (s *watchState) handleQuit(scanner *bufio.Scanner) bool {
	if len(s.pending) > 0 {
		fmt.Fprintf(s.out, "Warning: %d pending conflicts are unsaved. Type 'quit' again to confirm.\n", len(s.pending))
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() || strings.ToLower(strings.TrimSpace(scanner.Text())) != "quit" {
			return false
		}
	}
	fmt.Fprintln(s.out, "Goodbye!")
	return true
}

func (s *watchState) showHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  list    - Show pending conflicts")
	fmt.Fprintf(s.out, "  save    - Write pending conflicts to %s\n", s.path)
	fmt.Fprintln(s.out, "  discard - Drop pending conflicts")
	fmt.Fprintln(s.out, "  quit    - Exit watch mode")
	fmt.Fprintln(s.out, "  help    - Show this help")
}

func (s *watchState) flush(ctx context.Context, buf *strings.Builder) error {
	text := strings.TrimSpace(buf.String())
	buf.Reset()
	if text == "" {
		return nil
	}

	result, err := s.check(ctx, text)
	if err != nil {
		return fmt.Errorf("checking text: %w", err)
	}
	s.last = result

	printConflicts(s.out, result.Conflicts, text)
	if len(result.Conflicts) > 0 {
		s.pending = append(s.pending, result.Conflicts...)
		fmt.Fprintf(s.out, "Conflicts queued (%d total pending). Use 'save' to write them for 'canon resolve'.\n", len(s.pending))
	}
	return nil
}

func (s *watchState) showPending() {
	if len(s.pending) == 0 {
		fmt.Fprintln(s.out, "No pending conflicts.")
		return
	}
	fmt.Fprintf(s.out, "Pending conflicts (%d):\n", len(s.pending))
	for i, c := range s.pending {
		fmt.Fprintf(s.out, "  %d. [%s] %s: %s\n", i+1, c.Severity, c.EntryName, c.Description)
	}
}

func (s *watchState) save() error {
	if len(s.pending) == 0 {
		fmt.Fprintln(s.out, "No pending conflicts to save.")
		return nil
	}

	result := handlers.CheckResult{Conflicts: s.pending}
	if s.last != nil {
		result.ProjectID = s.last.ProjectID
		result.TimelineID = s.last.TimelineID
		result.Level = s.last.Level
		result.EntriesInUse = s.last.EntriesInUse
	}
	if err := writeCheckResult(s.path, &result); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "Saved %d conflicts to %s.\n", len(s.pending), s.path)
	s.pending = nil
	return nil
}
