package registry

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/ticket"
)

// newULID generates a new ULID string for discovered repository records.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Discover scans the immediate subdirectories of parentDir for git
// repositories and infers each one's ticket prefixes from its local
// branch names. Results are advisory: records are flagged
// IsAutoDiscovered and nothing is persisted until the caller registers
// them. Discovery is best-effort; unreadable directories and failing git
// commands just mean that candidate is skipped.
func (r *Registry) Discover(parentDir string) []*models.RepositoryInfo {
	parentDir = normalizePath(parentDir)
	entries, err := os.ReadDir(parentDir)
	if err != nil {
		r.logf("registry: discover %s: %v", parentDir, err)
		return nil
	}

	var repos []*models.RepositoryInfo
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(parentDir, entry.Name())
		if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
			continue
		}

		info := r.Describe(path)
		info.IsAutoDiscovered = true
		repos = append(repos, info)
	}

	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })
	return repos
}

// Describe builds a registry record for one repository path, inferring
// the name from the directory, the remote from origin, and the ticket
// prefixes from local branch names.
func (r *Registry) Describe(path string) *models.RepositoryInfo {
	path = normalizePath(path)
	info := &models.RepositoryInfo{
		ID:   newULID(),
		Name: filepath.Base(path),
		Path: path,
	}

	if remote, err := r.gc.RemoteURL(path); err == nil {
		info.Remote = remote
	}

	branches, err := r.gc.BranchList(path)
	if err != nil {
		r.logf("registry: list branches in %s: %v", path, err)
	}
	info.TicketPrefixes = ticket.PrefixesFromBranches(branches)
	sort.Strings(info.TicketPrefixes)
	return info
}
