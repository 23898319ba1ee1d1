package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/devbuddy/devbuddy/internal/output"
)

var historyCmd = &cobra.Command{
	Use:   "history <ticket>",
	Short: "Show every branch a ticket has been linked to",
	Long: `Show a ticket's branch history, newest first. At most one entry is
active; the rest record branches the ticket was linked to before.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func historyRun(ticketID string) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	h := m.History(context.Background(), ticketID)
	if h == nil || len(h.Branches) == 0 {
		ui.Info("No history for %s", ticketID)
		return nil
	}

	ui.Info("History for %s", output.Cyan(h.TicketID))
	table := ui.Table([]string{"Branch", "State", "First linked", "Last used"})
	for _, b := range h.Branches {
		state := ""
		if b.IsActive {
			state = output.AssociationState("active")
		}
		_ = table.Append([]string{
			b.BranchName,
			state,
			b.AssociatedAt.Format("2006-01-02"),
			b.LastUsed.Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()
	return nil
}
