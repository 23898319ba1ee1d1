package registry

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/devbuddy/devbuddy/internal/git"
	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/store"
	"github.com/devbuddy/devbuddy/internal/ticket"
)

// Settings is the user-settings configuration layer, read on demand so
// edits to the config file take effect without restarting.
type Settings struct {
	Repositories map[string]*models.RepositoryInfo
	AutoDiscover bool
	ParentDir    string
}

// SettingsFunc supplies the user-settings layer. The cmd layer binds
// this to viper; tests pass a literal.
type SettingsFunc func() Settings

// Registry resolves ticket prefixes to repositories by merging three
// configuration layers in ascending precedence: user settings, the
// cross-project store, and a .devbuddy/repos.json manifest found in a
// parent directory. The merged view is cached until Invalidate.
type Registry struct {
	projectPath string
	global      store.Store
	gc          git.Client
	settings    SettingsFunc
	logf        func(format string, args ...any)

	mu     sync.Mutex
	cached *models.RegistryConfig
}

// New builds a Registry for the project rooted at projectPath. logf
// receives diagnostics for sources that failed to load; pass nil to
// discard them.
func New(projectPath string, global store.Store, gc git.Client, settings SettingsFunc, logf func(string, ...any)) *Registry {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Registry{
		projectPath: normalizePath(projectPath),
		global:      global,
		gc:          gc,
		settings:    settings,
		logf:        logf,
	}
}

// Invalidate drops the cached merge. Every mutation path (registering
// repositories, writing a manifest, editing settings) must call this.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// Config returns the merged repository configuration. A layer that fails
// to load contributes nothing; Config itself never fails.
func (r *Registry) Config(ctx context.Context) *models.RegistryConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		return r.cached
	}

	settings := r.settings()
	cfg := &models.RegistryConfig{
		Repositories: make(map[string]*models.RepositoryInfo),
		AutoDiscover: settings.AutoDiscover,
		ParentDir:    settings.ParentDir,
	}

	// Layer 1 (lowest): user settings. Relative paths resolve against
	// the project root.
	for id, info := range settings.Repositories {
		cfg.Repositories[id] = r.normalizeRecord(id, info, r.projectPath)
	}

	// Layer 2: repositories registered in the cross-project store.
	var registered map[string]*models.RepositoryInfo
	if _, err := r.global.Get(ctx, store.KeyRegisteredRepositories, &registered); err != nil {
		r.logf("registry: read registered repositories: %v", err)
	} else {
		for id, info := range registered {
			cfg.Repositories[id] = r.normalizeRecord(id, info, r.projectPath)
		}
	}

	// Layer 3 (highest): shared manifest from a parent directory. Its
	// relative paths resolve against the manifest's own directory.
	if manifest, dir, err := FindManifest(r.projectPath); err != nil {
		r.logf("registry: read manifest: %v", err)
	} else if manifest != nil {
		for id, info := range manifest.Repositories {
			cfg.Repositories[id] = r.normalizeRecord(id, info, dir)
		}
		if cfg.ParentDir == "" {
			cfg.ParentDir = dir
		}
	}

	r.cached = cfg
	return cfg
}

// RepositoryForTicket resolves the repository owning the ticket's prefix.
// Returns nil when the ticket is malformed or no repository claims the
// prefix; callers treat that as "unknown, assume current".
func (r *Registry) RepositoryForTicket(ctx context.Context, ticketID string) *models.RepositoryInfo {
	id, err := ticket.Parse(ticketID)
	if err != nil {
		return nil
	}

	cfg := r.Config(ctx)
	// Map iteration is unordered; sort ids so duplicate-prefix conflicts
	// resolve the same way every call.
	ids := make([]string, 0, len(cfg.Repositories))
	for repoID := range cfg.Repositories {
		ids = append(ids, repoID)
	}
	sort.Strings(ids)

	for _, repoID := range ids {
		if cfg.Repositories[repoID].HasPrefix(id.Prefix) {
			return cfg.Repositories[repoID]
		}
	}
	return nil
}

// RepositoryForPath returns the configured repository whose path matches
// the given directory, or nil.
func (r *Registry) RepositoryForPath(ctx context.Context, path string) *models.RepositoryInfo {
	want := normalizePath(path)
	for _, info := range r.Config(ctx).Repositories {
		if normalizePath(info.Path) == want {
			return info
		}
	}
	return nil
}

// CrossRepoCheck is the answer to "does this ticket's branch live in a
// different repository than the current project?".
type CrossRepoCheck struct {
	IsDifferent bool
	CurrentRepo *models.RepositoryInfo
	TicketRepo  *models.RepositoryInfo
}

// IsTicketInDifferentRepo compares the current project's repository with
// the ticket's repository by normalized path. Either side unresolved
// means "assume same repository" so unknown prefixes never trigger
// cross-repo prompts.
func (r *Registry) IsTicketInDifferentRepo(ctx context.Context, ticketID string) CrossRepoCheck {
	check := CrossRepoCheck{
		CurrentRepo: r.RepositoryForPath(ctx, r.projectPath),
		TicketRepo:  r.RepositoryForTicket(ctx, ticketID),
	}
	if check.CurrentRepo == nil || check.TicketRepo == nil {
		return check
	}
	check.IsDifferent = normalizePath(check.CurrentRepo.Path) != normalizePath(check.TicketRepo.Path)
	return check
}

// Register persists repositories into the cross-project store layer and
// invalidates the cache. Records whose path matches an already-known
// repository are skipped so discovery re-runs don't pile up duplicates.
func (r *Registry) Register(ctx context.Context, repos ...*models.RepositoryInfo) (int, error) {
	known := make(map[string]bool)
	for _, info := range r.Config(ctx).Repositories {
		known[normalizePath(info.Path)] = true
	}

	var registered map[string]*models.RepositoryInfo
	if _, err := r.global.Get(ctx, store.KeyRegisteredRepositories, &registered); err != nil {
		return 0, err
	}
	if registered == nil {
		registered = make(map[string]*models.RepositoryInfo)
	}

	now := time.Now().UTC()
	added := 0
	for _, info := range repos {
		if known[normalizePath(info.Path)] {
			continue
		}
		rec := *info
		rec.LastAccessed = &now
		registered[rec.ID] = &rec
		known[normalizePath(rec.Path)] = true
		added++
	}
	if added == 0 {
		return 0, nil
	}

	if err := r.global.Put(ctx, store.KeyRegisteredRepositories, registered); err != nil {
		return 0, err
	}
	r.Invalidate()
	return added, nil
}

// normalizeRecord fills in the record id from its map key and resolves a
// relative path against baseDir.
func (r *Registry) normalizeRecord(id string, info *models.RepositoryInfo, baseDir string) *models.RepositoryInfo {
	rec := *info
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.Name == "" {
		rec.Name = filepath.Base(rec.Path)
	}
	if rec.Path != "" && !filepath.IsAbs(rec.Path) {
		rec.Path = filepath.Join(baseDir, rec.Path)
	}
	rec.Path = normalizePath(rec.Path)
	return &rec
}

// normalizePath produces the OS-normalized absolute form used for all
// repository identity comparisons.
func normalizePath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}
