package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/devbuddy/devbuddy/internal/assoc"
	"github.com/devbuddy/devbuddy/internal/git"
)

// terminalPrompter answers the association manager's decision points
// from stdin. With --yes it picks the safe answers (confirm, stash)
// without asking.
type terminalPrompter struct {
	in        *bufio.Reader
	assumeYes bool
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(os.Stdin), assumeYes: assumeYes}
}

func (p *terminalPrompter) Confirm(message string) bool {
	if p.assumeYes {
		return true
	}

	fmt.Fprintf(os.Stderr, "%s [y/N] ", message)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (p *terminalPrompter) UncommittedChanges(status *git.WorkingTreeStatus, from, to string) assoc.CheckoutChoice {
	if p.assumeYes {
		return assoc.ChoiceStash
	}

	fmt.Fprintf(os.Stderr, "You have %d uncommitted change(s) on %s.\n", status.ChangeCount(), from)
	fmt.Fprintf(os.Stderr, "  [s] Stash & checkout %s\n", to)
	fmt.Fprintf(os.Stderr, "  [c] Checkout anyway (carry changes across)\n")
	fmt.Fprintf(os.Stderr, "  [a] Abort\n")
	fmt.Fprint(os.Stderr, "Choice [s/c/A]: ")

	line, err := p.in.ReadString('\n')
	if err != nil {
		return assoc.ChoiceCancel
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "stash":
		return assoc.ChoiceStash
	case "c", "checkout":
		return assoc.ChoiceProceed
	default:
		return assoc.ChoiceCancel
	}
}
