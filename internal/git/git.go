package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// WorkingTreeStatus holds parsed output of `git status --porcelain`.
type WorkingTreeStatus struct {
	Modified  []string
	Added     []string
	Deleted   []string
	Renamed   []string
	Staged    []string
	Untracked []string
}

// HasChanges reports whether any tracked file is modified, created,
// deleted, renamed, or staged. Untracked files don't block a checkout.
func (s *WorkingTreeStatus) HasChanges() bool {
	return len(s.Modified)+len(s.Added)+len(s.Deleted)+len(s.Renamed)+len(s.Staged) > 0
}

// ChangeCount returns the number of tracked files with pending changes.
func (s *WorkingTreeStatus) ChangeCount() int {
	return len(s.Modified) + len(s.Added) + len(s.Deleted) + len(s.Renamed) + len(s.Staged)
}

// Client defines the interface for git operations on arbitrary repos.
// All methods take a path parameter since devbuddy routes tickets across
// multiple repositories.
type Client interface {
	IsRepo(path string) bool
	RepoRoot(path string) (string, error)
	CurrentBranch(path string) (string, error)
	BranchList(path string) ([]string, error)
	BranchExists(path, name string) (bool, error)
	Status(path string) (*WorkingTreeStatus, error)
	Checkout(path, name string) error
	StashPush(path, message string) error
	RemoteURL(path string) (string, error)
}

// RealClient implements Client using real git commands. Every command
// runs under Timeout so a hung git process cannot block the checkout
// protocol indefinitely.
type RealClient struct {
	Timeout time.Duration
}

// NewClient returns a RealClient with the given command timeout.
// A zero timeout falls back to 10 seconds.
func NewClient(timeout time.Duration) *RealClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RealClient{Timeout: timeout}
}

func (c *RealClient) gitCmd(path string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("git %s: timed out after %s", strings.Join(args, " "), c.Timeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) IsRepo(path string) bool {
	out, err := c.gitCmd(path, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return c.gitCmd(path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) CurrentBranch(path string) (string, error) {
	return c.gitCmd(path, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *RealClient) BranchList(path string) ([]string, error) {
	out, err := c.gitCmd(path, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

func (c *RealClient) BranchExists(path, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	err := exec.CommandContext(ctx, "git", "-C", path, "show-ref", "--verify", "--quiet", "refs/heads/"+name).Run()
	if err == nil {
		return true, nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return false, fmt.Errorf("git show-ref: timed out after %s", c.Timeout)
	}

	// show-ref exits 1 for a missing ref; that's an answer, not a
	// failure. Any other exit (not a repo, permission denied) is.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git show-ref refs/heads/%s: %w", name, err)
}

func (c *RealClient) Status(path string) (*WorkingTreeStatus, error) {
	out, err := c.gitCmd(path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseStatusPorcelain(out), nil
}

func (c *RealClient) Checkout(path, name string) error {
	_, err := c.gitCmd(path, "checkout", name)
	return err
}

func (c *RealClient) StashPush(path, message string) error {
	_, err := c.gitCmd(path, "stash", "push", "-m", message)
	return err
}

func (c *RealClient) RemoteURL(path string) (string, error) {
	out, err := c.gitCmd(path, "remote", "get-url", "origin")
	if err != nil {
		return "", nil // no remote is not an error
	}
	return out, nil
}

// ParseStatusPorcelain parses `git status --porcelain` output into a
// WorkingTreeStatus. The two-letter XY code has the index state in X and
// the worktree state in Y.
func ParseStatusPorcelain(output string) *WorkingTreeStatus {
	status := &WorkingTreeStatus{}
	if output == "" {
		return status
	}

	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		x, y := line[0], line[1]
		file := strings.TrimSpace(line[3:])

		switch {
		case x == '?' && y == '?':
			status.Untracked = append(status.Untracked, file)
			continue
		case x == 'R' || y == 'R':
			status.Renamed = append(status.Renamed, file)
		case x == 'D' || y == 'D':
			status.Deleted = append(status.Deleted, file)
		case x == 'A':
			status.Added = append(status.Added, file)
		case x == 'M' || y == 'M':
			status.Modified = append(status.Modified, file)
		default:
			continue
		}
		if x != ' ' && x != '?' {
			status.Staged = append(status.Staged, file)
		}
	}
	return status
}
