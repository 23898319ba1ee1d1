package assoc

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/store"
)

// CleanupStale verifies every association's branch still exists and
// drops the ones that do not. Workspace entries are always verifiable.
// Global entries are only verified when their repository path is the
// current project; associations pointing at other repositories cannot be
// checked without opening them and are left untouched. Returns the
// number of ledger entries removed; individual verification failures
// count as "branch missing" rather than aborting the sweep.
func (m *Manager) CleanupStale(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0

	if m.usesWorkspace() {
		var ledger []models.BranchAssociation
		if _, err := m.workspace.Get(ctx, store.KeyBranchAssociations, &ledger); err != nil {
			return 0, fmt.Errorf("read workspace ledger: %w", err)
		}

		kept := ledger[:0]
		var stale []string
		for _, a := range ledger {
			if m.branchExists(a.BranchName) {
				kept = append(kept, a)
			} else {
				stale = append(stale, a.TicketID)
			}
		}
		if len(stale) > 0 {
			if err := m.workspace.Put(ctx, store.KeyBranchAssociations, kept); err != nil {
				return removed, fmt.Errorf("write workspace ledger: %w", err)
			}
			for _, id := range stale {
				if err := m.deactivateHistory(ctx, m.workspace, store.KeyBranchHistory, id); err != nil {
					m.logf("assoc: deactivate history %s: %v", id, err)
				}
			}
			removed += len(stale)
		}
	}

	if m.usesGlobal() {
		var ledger []models.GlobalBranchAssociation
		if _, err := m.global.Get(ctx, store.KeyGlobalBranchAssociations, &ledger); err != nil {
			return removed, fmt.Errorf("read global ledger: %w", err)
		}

		kept := ledger[:0]
		var stale []string
		for _, a := range ledger {
			if a.RepositoryPath == "" || filepath.Clean(a.RepositoryPath) != m.projectPath {
				// Unverifiable from here; leave untouched.
				kept = append(kept, a)
				continue
			}
			if m.branchExists(a.BranchName) {
				kept = append(kept, a)
			} else {
				stale = append(stale, a.TicketID)
			}
		}
		if len(stale) > 0 {
			if err := m.global.Put(ctx, store.KeyGlobalBranchAssociations, kept); err != nil {
				return removed, fmt.Errorf("write global ledger: %w", err)
			}
			for _, id := range stale {
				if err := m.deactivateHistory(ctx, m.global, store.KeyGlobalBranchHistory, id); err != nil {
					m.logf("assoc: deactivate history %s: %v", id, err)
				}
			}
			removed += len(stale)
		}
	}

	return removed, nil
}

// StalePreview lists the associations CleanupStale would remove,
// without touching anything. Same verification rules: workspace entries
// always, global entries only when their repository path is the current
// project.
func (m *Manager) StalePreview(ctx context.Context) ([]models.BranchAssociation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.BranchAssociation
	seen := make(map[string]bool)

	if m.usesWorkspace() {
		var ledger []models.BranchAssociation
		if _, err := m.workspace.Get(ctx, store.KeyBranchAssociations, &ledger); err != nil {
			return nil, fmt.Errorf("read workspace ledger: %w", err)
		}
		for _, a := range ledger {
			if !m.branchExists(a.BranchName) {
				out = append(out, a)
				seen[a.TicketID] = true
			}
		}
	}

	if m.usesGlobal() {
		var ledger []models.GlobalBranchAssociation
		if _, err := m.global.Get(ctx, store.KeyGlobalBranchAssociations, &ledger); err != nil {
			return nil, fmt.Errorf("read global ledger: %w", err)
		}
		for _, a := range ledger {
			if a.RepositoryPath == "" || filepath.Clean(a.RepositoryPath) != m.projectPath {
				continue
			}
			if seen[a.TicketID] || m.branchExists(a.BranchName) {
				continue
			}
			out = append(out, models.BranchAssociation{
				TicketID:       a.TicketID,
				BranchName:     a.BranchName,
				LastUpdated:    a.LastUpdated,
				IsAutoDetected: a.IsAutoDetected,
				Repository:     a.Repository,
				RepositoryPath: a.RepositoryPath,
			})
		}
	}

	return out, nil
}

// branchExists treats any git failure as "missing" so one broken
// repository cannot wedge the sweep.
func (m *Manager) branchExists(branch string) bool {
	exists, err := m.gc.BranchExists(m.projectPath, branch)
	if err != nil {
		m.logf("assoc: verify branch %s: %v", branch, err)
		return false
	}
	return exists
}
