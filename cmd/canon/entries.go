package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
)

func newEntriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entries",
		Aliases: []string{"entry"},
		Short:   "Manage canon entries",
	}

	cmd.AddCommand(
		newEntriesCreateCmd(),
		newEntriesUpdateCmd(),
		newEntriesLockCmd(),
		newEntriesUnlockCmd(),
		newEntriesDeleteCmd(),
		newEntriesRestoreCmd(),
		newEntriesHistoryCmd(),
		newEntriesShowCmd(),
		newEntriesListCmd(),
		newEntriesFindCmd(),
	)

	return cmd
}

type createFlags struct {
	kind        string
	description string
	attrs       []string
	lock        string
	parent      string
	timeline    string
	actor       string
}

func newEntriesCreateCmd() *cobra.Command {
	var flags createFlags

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a canon entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntriesCreate(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.kind, "kind", "k", "", "Entry kind (character, location, rule, event, theme, reference, item, relationship)")
	cmd.Flags().StringVarP(&flags.description, "description", "d", "", "Entry description")
	cmd.Flags().StringArrayVarP(&flags.attrs, "attr", "a", nil, "Attribute as key=value (repeatable; lists use ';')")
	cmd.Flags().StringVar(&flags.lock, "lock", "none", "Lock state (none, soft, hard)")
	cmd.Flags().StringVar(&flags.parent, "parent", "", "Parent entry ID")
	cmd.Flags().StringVarP(&flags.timeline, "timeline", "t", "", "Timeline ID (defaults to main)")
	cmd.Flags().StringVar(&flags.actor, "actor", DefaultActor, "Who made the change")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func runEntriesCreate(cmd *cobra.Command, name string, flags createFlags) error {
	kind := entities.EntityKind(flags.kind)
	if !kind.IsValid() {
		return fmt.Errorf("invalid kind %q, valid kinds: %v", flags.kind, entities.KindNames())
	}
	lock, err := parseLockState(flags.lock)
	if err != nil {
		return err
	}
	attrs, err := parseAttributeFlags(kind, flags.attrs)
	if err != nil {
		return err
	}
	payload := entities.Payload{}
	for k, v := range attrs {
		if v != nil {
			payload[k] = v
		}
	}

	return withDeps(func(d *Deps) error {
		entry, err := d.EntryHandler.HandleCreate(cmd.Context(), services.NewEntry{
			ProjectID:   d.ProjectID,
			Kind:        kind,
			Name:        name,
			Description: flags.description,
			Payload:     payload,
			LockState:   lock,
			ParentID:    flags.parent,
			TimelineID:  flags.timeline,
			Actor:       flags.actor,
		})
		if err != nil {
			return fmt.Errorf("creating entry: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), "Created ")
		printEntry(cmd.OutOrStdout(), entry)
		return nil
	})
}

type updateFlags struct {
	name        string
	description string
	attrs       []string
	parent      string
	reason      string
	actor       string
}

func newEntriesUpdateCmd() *cobra.Command {
	var flags updateFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a canon entry, recording a new version",
		Long: "Applies a partial update. Attributes are merged: --attr key=value sets a value and " +
			"--attr key= removes it. Hard-locked entries cannot be updated.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntriesUpdate(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.name, "name", "", "New name")
	cmd.Flags().StringVarP(&flags.description, "description", "d", "", "New description")
	cmd.Flags().StringArrayVarP(&flags.attrs, "attr", "a", nil, "Attribute as key=value (repeatable; key= removes)")
	cmd.Flags().StringVar(&flags.parent, "parent", "", "New parent entry ID")
	cmd.Flags().Bool("clear-parent", false, "Remove the parent")
	cmd.Flags().StringVarP(&flags.reason, "reason", "r", "", "Why the entry changed")
	cmd.Flags().StringVar(&flags.actor, "actor", DefaultActor, "Who made the change")

	return cmd
}

func runEntriesUpdate(cmd *cobra.Command, entryID string, flags updateFlags) error {
	ctx := cmd.Context()

	return withDeps(func(d *Deps) error {
		current, err := d.EntryHandler.HandleShow(ctx, entryID)
		if err != nil {
			return err
		}

		var patch services.EntryPatch
		if cmd.Flags().Changed("name") {
			patch.Name = &flags.name
		}
		if cmd.Flags().Changed("description") {
			patch.Description = &flags.description
		}
		if cmd.Flags().Changed("parent") {
			patch.ParentID = &flags.parent
		}
		if clearParent, _ := cmd.Flags().GetBool("clear-parent"); clearParent {
			empty := ""
			patch.ParentID = &empty
		}
		patch.Attributes, err = parseAttributeFlags(current.Entry.Kind, flags.attrs)
		if err != nil {
			return err
		}

		entry, err := d.EntryHandler.HandleUpdate(ctx, entryID, patch, services.UpdateMeta{
			Actor:  flags.actor,
			Reason: flags.reason,
		})
		if err != nil {
			return fmt.Errorf("updating entry: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), "Updated ")
		printEntry(cmd.OutOrStdout(), entry)
		return nil
	})
}

func newEntriesLockCmd() *cobra.Command {
	var (
		soft  bool
		actor string
	)

	cmd := &cobra.Command{
		Use:   "lock <id>",
		Short: "Lock an entry (hard by default)",
		Long:  "A hard lock refuses every change. A soft lock allows changes but records an override in the audit log.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := entities.LockHard
			if soft {
				state = entities.LockSoft
			}
			return runEntriesLock(cmd, args[0], state, actor)
		},
	}

	cmd.Flags().BoolVar(&soft, "soft", false, "Apply a soft lock instead of a hard lock")
	cmd.Flags().StringVar(&actor, "actor", DefaultActor, "Who made the change")

	return cmd
}

func newEntriesUnlockCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "unlock <id>",
		Short: "Remove an entry's lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntriesLock(cmd, args[0], entities.LockUnlocked, actor)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", DefaultActor, "Who made the change")

	return cmd
}

func runEntriesLock(cmd *cobra.Command, entryID string, state entities.LockState, actor string) error {
	return withDeps(func(d *Deps) error {
		entry, err := d.EntryHandler.HandleLock(cmd.Context(), entryID, state, actor)
		if err != nil {
			return fmt.Errorf("changing lock: %w", err)
		}
		printEntry(cmd.OutOrStdout(), entry)
		return nil
	})
}

func newEntriesDeleteCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				if err := d.EntryHandler.HandleDelete(cmd.Context(), args[0], actor); err != nil {
					return fmt.Errorf("deleting entry: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", DefaultActor, "Who made the change")

	return cmd
}

func newEntriesRestoreCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "restore <id> <version>",
		Short: "Restore an earlier version as a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid version %q", args[1])
			}
			return withDeps(func(d *Deps) error {
				entry, err := d.EntryHandler.HandleRestore(cmd.Context(), args[0], n, actor)
				if err != nil {
					return fmt.Errorf("restoring entry: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored version %d as ", n)
				printEntry(cmd.OutOrStdout(), entry)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", DefaultActor, "Who made the change")

	return cmd
}

func newEntriesHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show every version of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				versions, err := d.EntryHandler.HandleHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, v := range versions {
					fmt.Fprintf(out, "v%d  %s  %-19s %s", v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"), v.ChangeType, v.Snapshot.Name)
					if v.Actor != "" {
						fmt.Fprintf(out, "  by %s", v.Actor)
					}
					if v.Reason != "" {
						fmt.Fprintf(out, "  (%s)", v.Reason)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
}

func newEntriesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an entry with its versions, audit trail and children as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				detail, err := d.EntryHandler.HandleShow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), detail)
			})
		},
	}
}

func newEntriesListCmd() *cobra.Command {
	var (
		kind     string
		timeline string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the active entries of a timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				result, err := d.EntryHandler.HandleList(cmd.Context(), d.ProjectID, timeline, entities.EntityKind(kind))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				if result.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No entries found.")
					return nil
				}
				for i := range result.Entries {
					printEntry(cmd.OutOrStdout(), &result.Entries[i])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d entries\n", result.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Filter by kind")
	cmd.Flags().StringVarP(&timeline, "timeline", "t", "", "Timeline ID (defaults to main)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

func newEntriesFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <attribute> <value>",
		Short: "Find entries whose attribute holds a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				result, err := d.EntryHandler.HandleFindByAttribute(cmd.Context(), d.ProjectID, args[0], args[1])
				if err != nil {
					return err
				}
				for i := range result.Entries {
					printEntry(cmd.OutOrStdout(), &result.Entries[i])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d entries\n", result.Total)
				return nil
			})
		},
	}
}
