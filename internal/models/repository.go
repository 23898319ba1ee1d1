package models

import (
	"strings"
	"time"
)

// RepositoryInfo describes one known repository. Path is the ownership
// key: two records with the same resolved absolute path are the same
// repository regardless of ID.
type RepositoryInfo struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Path             string     `json:"path"`
	Remote           string     `json:"remote,omitempty"`
	TicketPrefixes   []string   `json:"ticketPrefixes"`
	LastAccessed     *time.Time `json:"lastAccessed,omitempty"`
	IsAutoDiscovered bool       `json:"isAutoDiscovered,omitempty"`
}

// HasPrefix reports whether the repository claims the given ticket
// prefix, case-insensitively.
func (r *RepositoryInfo) HasPrefix(prefix string) bool {
	for _, p := range r.TicketPrefixes {
		if strings.EqualFold(p, prefix) {
			return true
		}
	}
	return false
}

// RegistryConfig is the merged view over the three repository
// configuration layers.
type RegistryConfig struct {
	Repositories map[string]*RepositoryInfo `json:"repositories"`
	AutoDiscover bool                       `json:"autoDiscover"`
	ParentDir    string                     `json:"parentDir,omitempty"`
}
