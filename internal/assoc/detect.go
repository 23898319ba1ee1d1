package assoc

import (
	"context"
	"fmt"

	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/ticket"
)

// AutoAssociateCurrentBranch reads the current branch and, if its name
// carries a ticket key, records an auto-detected association. A branch
// without a ticket key is a no-op, not an error.
func (m *Manager) AutoAssociateCurrentBranch(ctx context.Context) (*models.BranchAssociation, error) {
	branch, err := m.gc.CurrentBranch(m.projectPath)
	if err != nil {
		return nil, fmt.Errorf("read current branch: %w", err)
	}

	id, ok := ticket.FromBranch(branch)
	if !ok {
		return nil, nil
	}
	return m.Associate(ctx, id.String(), branch, true)
}

// Suggestion is one candidate association produced by DetectAll.
type Suggestion struct {
	TicketID   string
	BranchName string
}

// DetectAll scans every local branch for ticket keys and returns
// suggestions for tickets that have no association yet. It is advisory
// only: nothing is written, and user-made associations are never
// overridden. The caller decides which suggestions to apply.
func (m *Manager) DetectAll(ctx context.Context) ([]Suggestion, error) {
	branches, err := m.gc.BranchList(m.projectPath)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	existing := make(map[string]bool)
	assocs, err := m.Associations(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range assocs {
		existing[a.TicketID] = true
	}

	var suggestions []Suggestion
	suggested := make(map[string]bool)
	for _, branch := range branches {
		id, ok := ticket.FromBranch(branch)
		if !ok {
			continue
		}
		key := id.String()
		if existing[key] || suggested[key] {
			continue
		}
		suggested[key] = true
		suggestions = append(suggestions, Suggestion{TicketID: key, BranchName: branch})
	}
	return suggestions, nil
}
