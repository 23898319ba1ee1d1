package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devbuddy/devbuddy/internal/models"
)

// ManifestDirName is the dot-directory holding the shared manifest.
const ManifestDirName = ".devbuddy"

// ManifestFileName is the repository map inside ManifestDirName. Teams
// commit it one level above their repos so everyone resolves ticket
// prefixes identically without per-machine configuration.
const ManifestFileName = "repos.json"

// maxManifestDepth bounds the upward walk from the project root.
const maxManifestDepth = 4

// Manifest is the on-disk repository map.
type Manifest struct {
	Repositories map[string]*models.RepositoryInfo `json:"repositories"`
}

// manifestEntry is the persisted shape of one repository: just the
// shareable fields, no machine-local bookkeeping.
type manifestEntry struct {
	Path           string   `json:"path"`
	Name           string   `json:"name,omitempty"`
	TicketPrefixes []string `json:"ticketPrefixes,omitempty"`
	Remote         string   `json:"remote,omitempty"`
}

// FindManifest walks from projectPath up through at most four parent
// directories looking for .devbuddy/repos.json. Returns the parsed
// manifest and its containing directory, or (nil, "", nil) when no
// manifest exists. A manifest that exists but cannot be parsed is an
// error so the caller can log it and degrade.
func FindManifest(projectPath string) (*Manifest, string, error) {
	dir := normalizePath(projectPath)
	for i := 0; i <= maxManifestDepth; i++ {
		path := filepath.Join(dir, ManifestDirName, ManifestFileName)
		if _, err := os.Stat(path); err == nil {
			m, err := loadManifest(path)
			if err != nil {
				return nil, "", err
			}
			return m, dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, "", nil
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Repositories == nil {
		m.Repositories = make(map[string]*models.RepositoryInfo)
	}
	return &m, nil
}

// WriteManifest writes .devbuddy/repos.json under parentDir. Paths
// inside parentDir are rewritten as ./relative so the manifest stays
// valid when the tree is checked out elsewhere; paths escaping it are
// kept absolute.
func WriteManifest(parentDir string, repos map[string]*models.RepositoryInfo) (string, error) {
	parentDir = normalizePath(parentDir)

	entries := make(map[string]manifestEntry, len(repos))
	for id, info := range repos {
		entries[id] = manifestEntry{
			Path:           manifestPath(parentDir, info.Path),
			Name:           info.Name,
			TicketPrefixes: sortedUpper(info.TicketPrefixes),
			Remote:         info.Remote,
		}
	}

	dir := filepath.Join(parentDir, ManifestDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{"repositories": entries}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// manifestPath rewrites abs as manifest-root-relative when it lives
// under parentDir.
func manifestPath(parentDir, abs string) string {
	abs = normalizePath(abs)
	rel, err := filepath.Rel(parentDir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return "./" + filepath.ToSlash(rel)
}

func sortedUpper(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, strings.ToUpper(p))
	}
	sort.Strings(out)
	return out
}
