package cmd

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List ticket-branch links",
	Long: `List every ticket-branch link visible in the current storage mode.
Workspace links shadow cross-project links for the same ticket. The
state column marks links whose branch no longer exists as stale and
links in other repositories as cross-repo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRun()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func listRun() error {
	m, err := getManager()
	if err != nil {
		return err
	}

	assocs, err := m.Associations(context.Background())
	if err != nil {
		return err
	}
	if len(assocs) == 0 {
		ui.Info("No links yet. Use 'devbuddy link <ticket>' or 'devbuddy detect'.")
		return nil
	}

	sort.Slice(assocs, func(i, j int) bool { return assocs[i].TicketID < assocs[j].TicketID })

	table := ui.Table([]string{"Ticket", "Branch", "Repository", "State", "Updated"})
	for _, a := range assocs {
		repo := a.Repository
		if repo == "" {
			repo = filepath.Base(projectPath)
		}
		_ = table.Append([]string{
			output.Cyan(a.TicketID),
			a.BranchName,
			repo,
			output.AssociationState(associationState(&a)),
			a.LastUpdated.Format("2006-01-02"),
		})
	}
	_ = table.Render()
	return nil
}

// associationState classifies a link for display. Branch existence is
// only checked for links in the current repository.
func associationState(a *models.BranchAssociation) string {
	if a.RepositoryPath != "" && filepath.Clean(a.RepositoryPath) != projectPath {
		return "cross-repo"
	}
	exists, err := gitClient.BranchExists(projectPath, a.BranchName)
	if err != nil {
		return "unverified"
	}
	if !exists {
		return "stale"
	}
	if a.IsAutoDetected {
		return "auto"
	}
	return "active"
}
