package assoc

import "github.com/devbuddy/devbuddy/internal/git"

// CheckoutChoice is the user's answer to the uncommitted-changes prompt.
type CheckoutChoice int

const (
	// ChoiceCancel aborts the checkout with no mutation.
	ChoiceCancel CheckoutChoice = iota
	// ChoiceStash pushes a labeled stash before checking out.
	ChoiceStash
	// ChoiceProceed checks out without stashing; the user accepts the
	// conflict risk.
	ChoiceProceed
)

// Prompter is the interaction port for the checkout protocol's decision
// points. The cmd layer provides a terminal implementation; tests script
// the answers.
type Prompter interface {
	// Confirm asks a yes/no question, such as removing a stale
	// association.
	Confirm(message string) bool
	// UncommittedChanges presents the three-way stash/proceed/cancel
	// decision for a dirty working tree.
	UncommittedChanges(status *git.WorkingTreeStatus, fromBranch, toBranch string) CheckoutChoice
}

// DenyAllPrompter declines every prompt. It is the default for
// non-interactive runs: nothing is ever mutated on an assumed answer.
type DenyAllPrompter struct{}

func (DenyAllPrompter) Confirm(string) bool { return false }

func (DenyAllPrompter) UncommittedChanges(*git.WorkingTreeStatus, string, string) CheckoutChoice {
	return ChoiceCancel
}
