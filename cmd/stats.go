package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devbuddy/devbuddy/internal/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show link analytics and cleanup suggestions",
	Long: `Show a read-only report over the link ledger: totals, stale and aged
links, the most-reused tickets, and branch names shared by more than one
ticket. Nothing is modified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statsRun()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func statsRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}
	ctx := context.Background()

	report, err := m.Report(ctx)
	if err != nil {
		return err
	}

	ui.Info("Links: %d total (%d manual, %d auto-detected)", report.Total, report.Manual, report.AutoDetected)
	if len(report.Stale) > 0 {
		ui.Warning("%d link(s) point at deleted branches", len(report.Stale))
	}
	if len(report.Old) > 0 {
		ui.Info("%d link(s) untouched for 30+ days", len(report.Old))
	}
	if len(report.Unverifiable) > 0 {
		ui.Info("%d link(s) in other repositories (not verified from here)", len(report.Unverifiable))
	}

	if len(report.MostReused) > 0 {
		fmt.Fprintln(ui.Out)
		ui.Info("Most reused tickets")
		table := ui.Table([]string{"Ticket", "Branches", "Active branch"})
		max := len(report.MostReused)
		if max > 10 {
			max = 10
		}
		for _, r := range report.MostReused[:max] {
			_ = table.Append([]string{
				output.Cyan(r.TicketID),
				strconv.Itoa(r.BranchCount),
				r.ActiveBranch,
			})
		}
		_ = table.Render()
	}

	if len(report.Duplicates) > 0 {
		fmt.Fprintln(ui.Out)
		ui.Warning("Branches linked to more than one ticket")
		table := ui.Table([]string{"Branch", "Tickets"})
		for _, d := range report.Duplicates {
			_ = table.Append([]string{d.BranchName, strings.Join(d.TicketIDs, ", ")})
		}
		_ = table.Render()
	}

	suggestions, err := m.CleanupSuggestions(ctx)
	if err != nil {
		return err
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(ui.Out)
		ui.Info("Cleanup suggestions (run 'devbuddy cleanup')")
		table := ui.Table([]string{"Ticket", "Reason"})
		for _, s := range suggestions {
			_ = table.Append([]string{output.Cyan(s.TicketID), s.Reason})
		}
		_ = table.Render()
	}

	return nil
}
