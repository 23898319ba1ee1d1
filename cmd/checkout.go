package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devbuddy/devbuddy/internal/assoc"
	"github.com/devbuddy/devbuddy/internal/output"
)

var checkoutCmd = &cobra.Command{
	Use:     "checkout <ticket>",
	Aliases: []string{"co"},
	Short:   "Check out the branch linked to a ticket",
	Long: `Check out the branch linked to a ticket. If the working tree has
uncommitted changes you choose between stashing them, carrying them
across, or aborting. Nothing is touched when the linked branch no longer
exists or lives in a different repository.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkoutRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(checkoutCmd)
}

func checkoutRun(ticketID string) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	if dryRun {
		if a, found := m.BranchForTicket(context.Background(), ticketID); found {
			ui.DryRunMsg("Would check out %s for %s", a.BranchName, a.TicketID)
		} else {
			ui.DryRunMsg("No branch linked to %s; nothing to do", ticketID)
		}
		return nil
	}

	res := m.Checkout(context.Background(), ticketID)
	switch res.Outcome {
	case assoc.OutcomeCheckedOut:
		if res.Stashed {
			ui.Info("Stashed uncommitted changes (git stash pop to restore)")
		}
		ui.Success("Switched to %s", output.Cyan(res.Branch))
		return nil

	case assoc.OutcomeNoAssociation:
		ui.Warning("No branch linked to %s. Run 'devbuddy link %s <branch>' first.", ticketID, ticketID)
		return nil

	case assoc.OutcomeDifferentRepo:
		if res.TargetRepo != "" {
			ui.Warning("%s is linked to %s in repository %s", ticketID, res.Branch, output.Cyan(res.TargetRepo))
		} else {
			ui.Warning("%s is linked to %s in a different repository", ticketID, res.Branch)
		}
		if res.TargetPath != "" {
			ui.Info("cd %s && devbuddy checkout %s", res.TargetPath, ticketID)
		}
		return nil

	case assoc.OutcomeStaleBranch:
		if res.RemovedStale {
			ui.Success("Removed stale link to %s", res.Branch)
		} else {
			ui.Warning("Branch %s no longer exists; link kept", res.Branch)
		}
		return nil

	case assoc.OutcomeCancelled:
		ui.Info("Checkout cancelled")
		return nil

	case assoc.OutcomeGitError:
		return fmt.Errorf("checkout %s: %w", res.Branch, res.Err)
	}
	return nil
}
