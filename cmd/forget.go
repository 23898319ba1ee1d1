package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/devbuddy/devbuddy/internal/output"
)

var forgetCmd = &cobra.Command{
	Use:   "forget [path]",
	Short: "Drop a project's workspace links and branch history",
	Long: `Drop every workspace link and history entry for a project. With no
argument the current project is forgotten; give a path to forget a
project that was deleted or moved. Cross-project links survive, so
tickets still resolve from other checkouts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := ""
		if len(args) > 0 {
			target = args[0]
		}
		return forgetRun(target)
	},
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}

func forgetRun(target string) error {
	if target == "" {
		target = projectPath
	} else {
		abs, err := filepath.Abs(target)
		if err != nil {
			return err
		}
		target = abs
	}

	if dryRun {
		ui.DryRunMsg("Would drop all workspace links for %s", target)
		return nil
	}

	if !assumeYes {
		p := newTerminalPrompter()
		if !p.Confirm(fmt.Sprintf("Drop every workspace link for %s?", target)) {
			ui.Info("Forget cancelled")
			return nil
		}
	}

	ctx := context.Background()
	if filepath.Clean(target) == projectPath {
		// The current project's ledger goes through the manager so the
		// drop is serialized with any other mutation.
		m, err := getManager()
		if err != nil {
			return err
		}
		if err := m.Forget(ctx); err != nil {
			return err
		}
	} else {
		d, err := getDB()
		if err != nil {
			return err
		}
		if err := d.DeleteWorkspace(ctx, target); err != nil {
			return err
		}
	}

	ui.Success("Dropped workspace links for %s (cross-project links kept)", output.Cyan(filepath.Base(target)))
	return nil
}
