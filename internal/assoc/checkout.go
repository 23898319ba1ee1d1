package assoc

import (
	"context"
	"fmt"
	"path/filepath"
)

// CheckoutOutcome identifies which exit the checkout protocol took.
type CheckoutOutcome string

const (
	// OutcomeCheckedOut means the checkout succeeded.
	OutcomeCheckedOut CheckoutOutcome = "checked_out"
	// OutcomeNoAssociation means the ticket has no linked branch.
	OutcomeNoAssociation CheckoutOutcome = "no_association"
	// OutcomeDifferentRepo means the linked branch lives in another
	// repository; no local checkout was attempted.
	OutcomeDifferentRepo CheckoutOutcome = "different_repo"
	// OutcomeStaleBranch means the linked branch no longer exists
	// locally.
	OutcomeStaleBranch CheckoutOutcome = "stale_branch"
	// OutcomeCancelled means the user declined the uncommitted-changes
	// prompt.
	OutcomeCancelled CheckoutOutcome = "cancelled"
	// OutcomeGitError means a git command failed; the error is carried
	// in Result.Err, never propagated.
	OutcomeGitError CheckoutOutcome = "git_error"
)

// CheckoutResult carries the protocol's outcome. Ok is true only for
// OutcomeCheckedOut; every other exit leaves the working tree untouched
// except a stash explicitly chosen by the user.
type CheckoutResult struct {
	Ok      bool
	Outcome CheckoutOutcome
	Branch  string
	Stashed bool

	// RemovedStale is set when the user confirmed removal of a stale
	// association.
	RemovedStale bool

	// TargetRepo/TargetPath name the other repository for
	// OutcomeDifferentRepo.
	TargetRepo string
	TargetPath string

	// Err holds the underlying git failure for OutcomeGitError.
	Err error
}

// Checkout runs the guarded checkout protocol for a ticket's linked
// branch. The guards run in a deliberate order: association lookup,
// cross-repository detection, branch existence, then dirty-tree
// handling, so a stale association never triggers a stash for a
// destination that cannot be reached. Git failures are converted into a
// result, never returned as an error.
func (m *Manager) Checkout(ctx context.Context, ticketID string) CheckoutResult {
	assoc, ok := m.BranchForTicket(ctx, ticketID)
	if !ok {
		return CheckoutResult{Outcome: OutcomeNoAssociation}
	}

	// The branch lives in a different repository: produce a navigable
	// answer instead of attempting a checkout that cannot succeed here.
	if assoc.RepositoryPath != "" && filepath.Clean(assoc.RepositoryPath) != m.projectPath {
		res := CheckoutResult{
			Outcome:    OutcomeDifferentRepo,
			Branch:     assoc.BranchName,
			TargetRepo: assoc.Repository,
			TargetPath: assoc.RepositoryPath,
		}
		if res.TargetRepo == "" && m.reg != nil {
			if repo := m.reg.RepositoryForTicket(ctx, ticketID); repo != nil {
				res.TargetRepo = repo.Name
				res.TargetPath = repo.Path
			}
		}
		return res
	}

	exists, err := m.gc.BranchExists(m.projectPath, assoc.BranchName)
	if err != nil {
		return CheckoutResult{Outcome: OutcomeGitError, Branch: assoc.BranchName, Err: err}
	}
	if !exists {
		res := CheckoutResult{Outcome: OutcomeStaleBranch, Branch: assoc.BranchName}
		msg := fmt.Sprintf("Branch %q no longer exists. Remove the association for %s?", assoc.BranchName, assoc.TicketID)
		if m.prompt.Confirm(msg) {
			if _, err := m.Remove(ctx, assoc.TicketID); err != nil {
				m.logf("assoc: remove stale association %s: %v", assoc.TicketID, err)
			} else {
				res.RemovedStale = true
			}
		}
		return res
	}

	current, err := m.gc.CurrentBranch(m.projectPath)
	if err != nil {
		return CheckoutResult{Outcome: OutcomeGitError, Branch: assoc.BranchName, Err: err}
	}

	status, err := m.gc.Status(m.projectPath)
	if err != nil {
		return CheckoutResult{Outcome: OutcomeGitError, Branch: assoc.BranchName, Err: err}
	}

	stashed := false
	if status.HasChanges() {
		switch m.prompt.UncommittedChanges(status, current, assoc.BranchName) {
		case ChoiceCancel:
			return CheckoutResult{Outcome: OutcomeCancelled, Branch: assoc.BranchName}
		case ChoiceStash:
			msg := fmt.Sprintf("devbuddy: switching %s -> %s", current, assoc.BranchName)
			if err := m.gc.StashPush(m.projectPath, msg); err != nil {
				return CheckoutResult{Outcome: OutcomeGitError, Branch: assoc.BranchName, Err: err}
			}
			stashed = true
		case ChoiceProceed:
			// user accepts carrying the changes across
		}
	}

	if err := m.gc.Checkout(m.projectPath, assoc.BranchName); err != nil {
		return CheckoutResult{Outcome: OutcomeGitError, Branch: assoc.BranchName, Stashed: stashed, Err: err}
	}

	// Refresh LastUsed on the active history entry so reuse analytics
	// reflect real navigation, not just association churn.
	if _, err := m.Associate(ctx, assoc.TicketID, assoc.BranchName, assoc.IsAutoDetected); err != nil {
		m.logf("assoc: refresh association %s: %v", assoc.TicketID, err)
	}

	return CheckoutResult{Ok: true, Outcome: OutcomeCheckedOut, Branch: assoc.BranchName, Stashed: stashed}
}
