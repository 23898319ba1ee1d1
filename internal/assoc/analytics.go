package assoc

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/store"
)

// staleAfter is the age past which an untouched association counts as
// old in reports.
const staleAfter = 30 * 24 * time.Hour

// ReuseCount ranks tickets by how many distinct branches their history
// has accumulated.
type ReuseCount struct {
	TicketID     string
	BranchCount  int
	ActiveBranch string
}

// DuplicateBranch flags a branch name associated with more than one
// ticket, a signal of probable user error. Reporting only; nothing is
// auto-corrected.
type DuplicateBranch struct {
	BranchName string
	TicketIDs  []string
}

// Analytics is a read-only report over the ledger and history.
type Analytics struct {
	Total        int
	AutoDetected int
	Manual       int
	Stale        []models.BranchAssociation
	Old          []models.BranchAssociation // untouched for 30+ days
	MostReused   []ReuseCount
	Duplicates   []DuplicateBranch
	Unverifiable []models.BranchAssociation // cross-repo globals this project cannot check
}

// Report computes association analytics. Staleness is checked only for
// entries belonging to the current repository; cross-repo globals are
// listed as unverifiable instead.
func (m *Manager) Report(ctx context.Context) (*Analytics, error) {
	assocs, err := m.Associations(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	report := &Analytics{Total: len(assocs)}
	byBranch := make(map[string][]string)

	for _, a := range assocs {
		if a.IsAutoDetected {
			report.AutoDetected++
		} else {
			report.Manual++
		}
		byBranch[a.BranchName] = append(byBranch[a.BranchName], a.TicketID)

		// Aging applies to every entry; branch existence only to ones
		// this project can check.
		if now.Sub(a.LastUpdated) > staleAfter {
			report.Old = append(report.Old, a)
		}
		if a.RepositoryPath != "" && filepath.Clean(a.RepositoryPath) != m.projectPath {
			report.Unverifiable = append(report.Unverifiable, a)
			continue
		}
		if !m.branchExists(a.BranchName) {
			report.Stale = append(report.Stale, a)
		}
	}

	for branch, tickets := range byBranch {
		if len(tickets) > 1 {
			sort.Strings(tickets)
			report.Duplicates = append(report.Duplicates, DuplicateBranch{BranchName: branch, TicketIDs: tickets})
		}
	}
	sort.Slice(report.Duplicates, func(i, j int) bool {
		return report.Duplicates[i].BranchName < report.Duplicates[j].BranchName
	})

	report.MostReused = m.reuseCounts(ctx)
	return report, nil
}

// reuseCounts derives per-ticket branch churn from history, not the live
// ledger, so superseded branches still count.
func (m *Manager) reuseCounts(ctx context.Context) []ReuseCount {
	perTicket := make(map[string]map[string]bool)
	active := make(map[string]string)

	collect := func(s store.Store, key string) {
		var histories []models.BranchHistory
		if _, err := s.Get(ctx, key, &histories); err != nil {
			m.logf("assoc: read history: %v", err)
			return
		}
		for _, h := range histories {
			branches := perTicket[h.TicketID]
			if branches == nil {
				branches = make(map[string]bool)
				perTicket[h.TicketID] = branches
			}
			for _, b := range h.Branches {
				branches[b.BranchName] = true
				if b.IsActive {
					active[h.TicketID] = b.BranchName
				}
			}
		}
	}

	if m.usesWorkspace() {
		collect(m.workspace, store.KeyBranchHistory)
	}
	if m.usesGlobal() {
		collect(m.global, store.KeyGlobalBranchHistory)
	}

	counts := make([]ReuseCount, 0, len(perTicket))
	for ticketID, branches := range perTicket {
		counts = append(counts, ReuseCount{
			TicketID:     ticketID,
			BranchCount:  len(branches),
			ActiveBranch: active[ticketID],
		})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].BranchCount != counts[j].BranchCount {
			return counts[i].BranchCount > counts[j].BranchCount
		}
		return counts[i].TicketID < counts[j].TicketID
	})
	return counts
}

// CleanupSuggestion is one actionable finding from the report.
type CleanupSuggestion struct {
	TicketID string
	Reason   string
}

// CleanupSuggestions distills the report into a flat list a UI can
// present next to a cleanup action.
func (m *Manager) CleanupSuggestions(ctx context.Context) ([]CleanupSuggestion, error) {
	report, err := m.Report(ctx)
	if err != nil {
		return nil, err
	}

	var out []CleanupSuggestion
	for _, a := range report.Stale {
		out = append(out, CleanupSuggestion{
			TicketID: a.TicketID,
			Reason:   "branch " + a.BranchName + " no longer exists",
		})
	}
	for _, a := range report.Old {
		out = append(out, CleanupSuggestion{
			TicketID: a.TicketID,
			Reason:   "untouched since " + a.LastUpdated.Format("2006-01-02"),
		})
	}
	for _, d := range report.Duplicates {
		for _, id := range d.TicketIDs {
			out = append(out, CleanupSuggestion{
				TicketID: id,
				Reason:   "branch " + d.BranchName + " is shared with other tickets",
			})
		}
	}
	return out, nil
}
