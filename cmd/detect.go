package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/devbuddy/devbuddy/internal/output"
)

var (
	detectAll   bool
	detectApply bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect ticket keys in branch names",
	Long: `Detect the ticket key in the current branch name and link it. With
--all, every local branch is scanned and suggestions are shown for
tickets that have no link yet; add --apply to create them. Links you
made by hand are never overridden.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if detectAll {
			return detectAllRun()
		}
		return detectCurrentRun()
	},
}

func init() {
	detectCmd.Flags().BoolVar(&detectAll, "all", false, "Scan every local branch")
	detectCmd.Flags().BoolVar(&detectApply, "apply", false, "Create links for all suggestions (with --all)")
	rootCmd.AddCommand(detectCmd)
}

func detectCurrentRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}

	if dryRun {
		branch, err := gitClient.CurrentBranch(projectPath)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would scan branch %s for a ticket key", branch)
		return nil
	}

	a, err := m.AutoAssociateCurrentBranch(context.Background())
	if err != nil {
		return err
	}
	if a == nil {
		ui.Info("No ticket key in the current branch name")
		return nil
	}

	ui.Success("Linked %s -> %s (auto-detected)", output.Cyan(a.TicketID), a.BranchName)
	return nil
}

func detectAllRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}
	ctx := context.Background()

	suggestions, err := m.DetectAll(ctx)
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		ui.Info("No new ticket keys found in branch names")
		return nil
	}

	if !detectApply || dryRun {
		table := ui.Table([]string{"Ticket", "Branch"})
		for _, s := range suggestions {
			_ = table.Append([]string{output.Cyan(s.TicketID), s.BranchName})
		}
		_ = table.Render()
		if dryRun {
			ui.DryRunMsg("Would link %d ticket(s)", len(suggestions))
		} else {
			ui.Info("Run 'devbuddy detect --all --apply' to link these")
		}
		return nil
	}

	for _, s := range suggestions {
		if _, err := m.Associate(ctx, s.TicketID, s.BranchName, true); err != nil {
			return err
		}
		ui.Success("Linked %s -> %s", output.Cyan(s.TicketID), s.BranchName)
	}
	return nil
}
