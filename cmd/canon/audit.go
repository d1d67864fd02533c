package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
)

type auditFlags struct {
	action string
	limit  int
	asJSON bool
}

func newAuditCmd() *cobra.Command {
	var flags auditFlags

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit records of one action",
		Long:  "Lists the newest audit records for an action, e.g. conflict_resolved or soft_lock_overridden.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.action, "action", "a", entities.ActionConflictResolved,
		"Action to show ("+strings.Join(entities.AuditActions, ", ")+")")
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 20, "Maximum records (0 for all)")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Output as JSON")

	return cmd
}

func runAudit(cmd *cobra.Command, flags auditFlags) error {
	return withWorkspaceDeps(func(d *Deps) error {
		records, err := d.EntryHandler.HandleAudit(cmd.Context(), flags.action, flags.limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if flags.asJSON {
			return writeJSON(out, records)
		}
		if len(records) == 0 {
			fmt.Fprintf(out, "No %s records.\n", flags.action)
			return nil
		}
		for _, r := range records {
			fmt.Fprintf(out, "%s  %-22s %s%s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Action, r.EntryID, formatDetails(r.Details))
		}
		return nil
	})
}

// formatDetails renders audit details as sorted key=value pairs.
func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return "  " + strings.Join(parts, " ")
}
