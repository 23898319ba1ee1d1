package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove links whose branch no longer exists",
	Long: `Remove links whose branch has been deleted. Only links in the current
repository are verified; cross-project links pointing at other
repositories are left untouched. History entries survive with their
active flag cleared.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cleanupRun()
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func cleanupRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		stale, err := m.StalePreview(ctx)
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			ui.DryRunMsg("Nothing to clean up")
			return nil
		}
		for _, a := range stale {
			ui.DryRunMsg("Would remove %s -> %s (branch no longer exists)", a.TicketID, a.BranchName)
		}
		return nil
	}

	if !assumeYes {
		p := newTerminalPrompter()
		if !p.Confirm("Remove all links to deleted branches?") {
			ui.Info("Cleanup cancelled")
			return nil
		}
	}

	removed, err := m.CleanupStale(ctx)
	if err != nil {
		return err
	}
	if removed == 0 {
		ui.Info("Nothing to clean up")
		return nil
	}

	ui.Success("Removed %d stale link(s)", removed)
	return nil
}
