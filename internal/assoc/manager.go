package assoc

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/devbuddy/devbuddy/internal/git"
	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/registry"
	"github.com/devbuddy/devbuddy/internal/store"
	"github.com/devbuddy/devbuddy/internal/ticket"
)

// Mode selects which storage tiers the manager reads and writes.
type Mode string

const (
	// ModeWorkspace uses only the per-project store. Natural for users
	// who work one project per machine: the ledger is garbage-collected
	// with the project.
	ModeWorkspace Mode = "workspace"
	// ModeGlobal uses only the cross-project store and returns
	// associations from every project the user has opened.
	ModeGlobal Mode = "global"
	// ModeBoth (the default) writes to both tiers and reads a merged
	// view, workspace entries first.
	ModeBoth Mode = "both"
)

// ParseMode validates a storage mode string, defaulting empty to both.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeBoth, nil
	case ModeWorkspace, ModeGlobal, ModeBoth:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid storage mode %q (want workspace, global, or both)", s)
}

// Config wires a Manager to its collaborators.
type Config struct {
	Mode        Mode
	ProjectPath string
	RepoName    string // display name for the current repository
	Workspace   store.Store
	Global      store.Store
	Git         git.Client
	Registry    *registry.Registry // may be nil when multi-repo is disabled
	Prompter    Prompter
	Logf        func(format string, args ...any)
}

// Manager owns the ticket-branch ledger and history at both storage
// tiers, detects staleness, and runs the guarded checkout protocol.
//
// The two tiers cannot be updated atomically; each is independently
// authoritative and every read path merges with workspace precedence, so
// a crash between the dual writes leaves a recoverable state.
type Manager struct {
	mode        Mode
	projectPath string
	repoName    string
	workspace   store.Store
	global      store.Store
	gc          git.Client
	reg         *registry.Registry
	prompt      Prompter
	logf        func(format string, args ...any)

	// mu serializes every ledger mutation. The read-modify-write of a
	// JSON array is not atomic across store calls, so two concurrent
	// Associate calls would otherwise silently drop one update.
	mu sync.Mutex
}

// New builds a Manager. Mode defaults to ModeBoth.
func New(cfg Config) *Manager {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeBoth
	}
	repoName := cfg.RepoName
	if repoName == "" {
		repoName = filepath.Base(cfg.ProjectPath)
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	prompt := cfg.Prompter
	if prompt == nil {
		prompt = DenyAllPrompter{}
	}
	return &Manager{
		mode:        mode,
		projectPath: filepath.Clean(cfg.ProjectPath),
		repoName:    repoName,
		workspace:   cfg.Workspace,
		global:      cfg.Global,
		gc:          cfg.Git,
		reg:         cfg.Registry,
		prompt:      prompt,
		logf:        logf,
	}
}

func (m *Manager) usesWorkspace() bool { return m.mode == ModeWorkspace || m.mode == ModeBoth }
func (m *Manager) usesGlobal() bool    { return m.mode == ModeGlobal || m.mode == ModeBoth }

// Associate is the single invariant-preserving entry point for binding a
// ticket to a branch: any existing association for the ticket is
// superseded, the history entry for (ticket, branch) becomes the only
// active one, and the write goes to every tier the mode covers. It is
// idempotent; re-associating the same pair only refreshes timestamps.
func (m *Manager) Associate(ctx context.Context, ticketID, branchName string, autoDetected bool) (*models.BranchAssociation, error) {
	id, err := ticket.Parse(ticketID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	assoc := &models.BranchAssociation{
		TicketID:       id.String(),
		BranchName:     branchName,
		LastUpdated:    now,
		IsAutoDetected: autoDetected,
		Repository:     m.repoName,
		RepositoryPath: m.projectPath,
	}

	if m.usesWorkspace() {
		if err := m.upsertWorkspace(ctx, assoc); err != nil {
			return nil, err
		}
		if err := m.touchHistory(ctx, m.workspace, store.KeyBranchHistory, assoc, now); err != nil {
			return nil, err
		}
	}

	// Dual-write: no ordering or atomicity across tiers, a failure here
	// leaves the workspace write in place.
	if m.usesGlobal() {
		if err := m.upsertGlobal(ctx, assoc); err != nil {
			return nil, err
		}
		if err := m.touchHistory(ctx, m.global, store.KeyGlobalBranchHistory, assoc, now); err != nil {
			return nil, err
		}
	}

	return assoc, nil
}

func (m *Manager) upsertWorkspace(ctx context.Context, assoc *models.BranchAssociation) error {
	var ledger []models.BranchAssociation
	if _, err := m.workspace.Get(ctx, store.KeyBranchAssociations, &ledger); err != nil {
		return fmt.Errorf("read workspace ledger: %w", err)
	}

	out := ledger[:0]
	for _, a := range ledger {
		if a.TicketID != assoc.TicketID {
			out = append(out, a)
		}
	}
	out = append(out, *assoc)

	if err := m.workspace.Put(ctx, store.KeyBranchAssociations, out); err != nil {
		return fmt.Errorf("write workspace ledger: %w", err)
	}
	return nil
}

func (m *Manager) upsertGlobal(ctx context.Context, assoc *models.BranchAssociation) error {
	var ledger []models.GlobalBranchAssociation
	if _, err := m.global.Get(ctx, store.KeyGlobalBranchAssociations, &ledger); err != nil {
		return fmt.Errorf("read global ledger: %w", err)
	}

	out := ledger[:0]
	for _, a := range ledger {
		if a.TicketID != assoc.TicketID {
			out = append(out, a)
		}
	}
	out = append(out, models.GlobalBranchAssociation{
		TicketID:       assoc.TicketID,
		BranchName:     assoc.BranchName,
		Repository:     m.repoName,
		RepositoryPath: m.projectPath,
		LastUpdated:    assoc.LastUpdated,
		IsAutoDetected: assoc.IsAutoDetected,
	})

	if err := m.global.Put(ctx, store.KeyGlobalBranchAssociations, out); err != nil {
		return fmt.Errorf("write global ledger: %w", err)
	}
	return nil
}

// touchHistory appends or refreshes the (ticket, branch) history entry
// and clears IsActive on every sibling, keeping at most one active entry
// per ticket.
func (m *Manager) touchHistory(ctx context.Context, s store.Store, key string, assoc *models.BranchAssociation, now time.Time) error {
	var histories []models.BranchHistory
	if _, err := s.Get(ctx, key, &histories); err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	idx := -1
	for i := range histories {
		if histories[i].TicketID == assoc.TicketID {
			idx = i
			break
		}
	}
	if idx == -1 {
		histories = append(histories, models.BranchHistory{TicketID: assoc.TicketID})
		idx = len(histories) - 1
	}

	h := &histories[idx]
	found := false
	for i := range h.Branches {
		if h.Branches[i].BranchName == assoc.BranchName {
			h.Branches[i].LastUsed = now
			h.Branches[i].IsActive = true
			h.Branches[i].Repository = assoc.Repository
			h.Branches[i].RepositoryPath = assoc.RepositoryPath
			found = true
		} else {
			h.Branches[i].IsActive = false
		}
	}
	if !found {
		h.Branches = append(h.Branches, models.HistoryBranch{
			BranchName:     assoc.BranchName,
			AssociatedAt:   now,
			LastUsed:       now,
			IsActive:       true,
			Repository:     assoc.Repository,
			RepositoryPath: assoc.RepositoryPath,
		})
	}

	if err := s.Put(ctx, key, histories); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Remove deletes the ticket's ledger entry from every active tier. The
// history entry survives with IsActive cleared, preserving the audit
// trail of branches once linked to the ticket. Returns whether any
// ledger entry was removed.
func (m *Manager) Remove(ctx context.Context, ticketID string) (bool, error) {
	id, err := ticket.Parse(ticketID)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(ctx, id.String())
}

func (m *Manager) removeLocked(ctx context.Context, ticketID string) (bool, error) {
	removed := false

	if m.usesWorkspace() {
		var ledger []models.BranchAssociation
		if _, err := m.workspace.Get(ctx, store.KeyBranchAssociations, &ledger); err != nil {
			return false, fmt.Errorf("read workspace ledger: %w", err)
		}
		out := ledger[:0]
		for _, a := range ledger {
			if a.TicketID == ticketID {
				removed = true
				continue
			}
			out = append(out, a)
		}
		if err := m.workspace.Put(ctx, store.KeyBranchAssociations, out); err != nil {
			return false, fmt.Errorf("write workspace ledger: %w", err)
		}
		if err := m.deactivateHistory(ctx, m.workspace, store.KeyBranchHistory, ticketID); err != nil {
			return removed, err
		}
	}

	if m.usesGlobal() {
		var ledger []models.GlobalBranchAssociation
		if _, err := m.global.Get(ctx, store.KeyGlobalBranchAssociations, &ledger); err != nil {
			return removed, fmt.Errorf("read global ledger: %w", err)
		}
		out := ledger[:0]
		for _, a := range ledger {
			if a.TicketID == ticketID {
				removed = true
				continue
			}
			out = append(out, a)
		}
		if err := m.global.Put(ctx, store.KeyGlobalBranchAssociations, out); err != nil {
			return removed, fmt.Errorf("write global ledger: %w", err)
		}
		if err := m.deactivateHistory(ctx, m.global, store.KeyGlobalBranchHistory, ticketID); err != nil {
			return removed, err
		}
	}

	return removed, nil
}

func (m *Manager) deactivateHistory(ctx context.Context, s store.Store, key, ticketID string) error {
	var histories []models.BranchHistory
	if _, err := s.Get(ctx, key, &histories); err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	changed := false
	for i := range histories {
		if histories[i].TicketID != ticketID {
			continue
		}
		for j := range histories[i].Branches {
			if histories[i].Branches[j].IsActive {
				histories[i].Branches[j].IsActive = false
				changed = true
			}
		}
	}
	if !changed {
		return nil
	}

	if err := s.Put(ctx, key, histories); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Forget drops this project's workspace ledger and history in one
// shot. Global entries survive: they may be the only record of where a
// ticket's branch lives once the project checkout is gone.
func (m *Manager) Forget(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.workspace.Delete(ctx, store.KeyBranchAssociations); err != nil {
		return fmt.Errorf("delete workspace ledger: %w", err)
	}
	if err := m.workspace.Delete(ctx, store.KeyBranchHistory); err != nil {
		return fmt.Errorf("delete workspace history: %w", err)
	}
	return nil
}

// Associations returns the ledger visible in the current mode. In both
// mode, workspace entries shadow global entries with the same ticket id;
// in global mode the cross-project ledger is returned unfiltered.
func (m *Manager) Associations(ctx context.Context) ([]models.BranchAssociation, error) {
	var merged []models.BranchAssociation
	seen := make(map[string]bool)

	if m.usesWorkspace() {
		var ledger []models.BranchAssociation
		if _, err := m.workspace.Get(ctx, store.KeyBranchAssociations, &ledger); err != nil {
			return nil, fmt.Errorf("read workspace ledger: %w", err)
		}
		for _, a := range ledger {
			merged = append(merged, a)
			seen[a.TicketID] = true
		}
	}

	if m.usesGlobal() {
		var ledger []models.GlobalBranchAssociation
		if _, err := m.global.Get(ctx, store.KeyGlobalBranchAssociations, &ledger); err != nil {
			return nil, fmt.Errorf("read global ledger: %w", err)
		}
		for _, g := range ledger {
			if seen[g.TicketID] {
				continue
			}
			merged = append(merged, models.BranchAssociation{
				TicketID:       g.TicketID,
				BranchName:     g.BranchName,
				LastUpdated:    g.LastUpdated,
				IsAutoDetected: g.IsAutoDetected,
				Repository:     g.Repository,
				RepositoryPath: g.RepositoryPath,
			})
		}
	}

	return merged, nil
}

// BranchForTicket resolves the active association for a ticket, or
// ok=false when none exists. A miss is an expected steady state, not an
// error.
func (m *Manager) BranchForTicket(ctx context.Context, ticketID string) (*models.BranchAssociation, bool) {
	id, err := ticket.Parse(ticketID)
	if err != nil {
		return nil, false
	}

	assocs, err := m.Associations(ctx)
	if err != nil {
		m.logf("assoc: read ledger: %v", err)
		return nil, false
	}
	for i := range assocs {
		if assocs[i].TicketID == id.String() {
			return &assocs[i], true
		}
	}
	return nil, false
}

// History returns the branch history for a ticket, merged across the
// active tiers (workspace entries win) and ordered by LastUsed
// descending. Returns nil when the ticket has no history.
func (m *Manager) History(ctx context.Context, ticketID string) *models.BranchHistory {
	id, err := ticket.Parse(ticketID)
	if err != nil {
		return nil
	}

	var result *models.BranchHistory
	seen := make(map[string]bool)

	collect := func(s store.Store, key string) {
		var histories []models.BranchHistory
		if _, err := s.Get(ctx, key, &histories); err != nil {
			m.logf("assoc: read history: %v", err)
			return
		}
		for i := range histories {
			if histories[i].TicketID != id.String() {
				continue
			}
			if result == nil {
				result = &models.BranchHistory{TicketID: id.String()}
			}
			for _, b := range histories[i].Branches {
				if seen[b.BranchName] {
					continue
				}
				seen[b.BranchName] = true
				result.Branches = append(result.Branches, b)
			}
		}
	}

	if m.usesWorkspace() {
		collect(m.workspace, store.KeyBranchHistory)
	}
	if m.usesGlobal() {
		collect(m.global, store.KeyGlobalBranchHistory)
	}

	if result != nil {
		sortHistoryByLastUsed(result.Branches)
	}
	return result
}

func sortHistoryByLastUsed(branches []models.HistoryBranch) {
	sort.SliceStable(branches, func(i, j int) bool {
		return branches[i].LastUsed.After(branches[j].LastUsed)
	})
}

// CrossRepoInfo answers whether a ticket's globally recorded branch
// lives in a different repository than the current project.
type CrossRepoInfo struct {
	IsDifferent    bool
	Repository     string
	RepositoryPath string
	BranchName     string
}

// IsTicketInDifferentRepository checks the global tier's repository path
// against the current project. No global association means "same
// repository"; the conservative default avoids false cross-repo prompts.
func (m *Manager) IsTicketInDifferentRepository(ctx context.Context, ticketID string) CrossRepoInfo {
	id, err := ticket.Parse(ticketID)
	if err != nil {
		return CrossRepoInfo{}
	}

	var ledger []models.GlobalBranchAssociation
	if _, err := m.global.Get(ctx, store.KeyGlobalBranchAssociations, &ledger); err != nil {
		m.logf("assoc: read global ledger: %v", err)
		return CrossRepoInfo{}
	}

	for _, g := range ledger {
		if g.TicketID != id.String() {
			continue
		}
		info := CrossRepoInfo{
			Repository:     g.Repository,
			RepositoryPath: g.RepositoryPath,
			BranchName:     g.BranchName,
		}
		if g.RepositoryPath != "" && filepath.Clean(g.RepositoryPath) != m.projectPath {
			info.IsDifferent = true
		}
		return info
	}
	return CrossRepoInfo{}
}
