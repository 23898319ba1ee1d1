package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devbuddy/devbuddy/internal/output"
	"github.com/devbuddy/devbuddy/internal/ticket"
)

var linkAuto bool

var linkCmd = &cobra.Command{
	Use:   "link <ticket> [branch]",
	Short: "Link a ticket to a branch",
	Long: `Link a ticket to a branch. With no branch argument the current branch
is used. Linking replaces any previous branch for the ticket; the old
branch stays in the ticket's history.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch := ""
		if len(args) > 1 {
			branch = args[1]
		}
		return linkRun(args[0], branch)
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <ticket>",
	Short: "Remove a ticket's branch link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return unlinkRun(args[0])
	},
}

func init() {
	linkCmd.Flags().BoolVar(&linkAuto, "auto", false, "Mark the link as auto-detected")
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
}

func linkRun(ticketID, branch string) error {
	id, err := ticket.Parse(ticketID)
	if err != nil {
		return err
	}

	if branch == "" {
		branch, err = gitClient.CurrentBranch(projectPath)
		if err != nil {
			return fmt.Errorf("read current branch: %w", err)
		}
	}

	if dryRun {
		ui.DryRunMsg("Would link %s -> %s", id.String(), branch)
		return nil
	}

	m, err := getManager()
	if err != nil {
		return err
	}

	a, err := m.Associate(context.Background(), id.String(), branch, linkAuto)
	if err != nil {
		return err
	}

	ui.Success("Linked %s -> %s", output.Cyan(a.TicketID), a.BranchName)
	return nil
}

func unlinkRun(ticketID string) error {
	id, err := ticket.Parse(ticketID)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would unlink %s", id.String())
		return nil
	}

	m, err := getManager()
	if err != nil {
		return err
	}

	removed, err := m.Remove(context.Background(), id.String())
	if err != nil {
		return err
	}
	if !removed {
		ui.Info("No link found for %s", id.String())
		return nil
	}

	ui.Success("Unlinked %s (history kept)", output.Cyan(id.String()))
	return nil
}
