package store

import "context"

// Logical keys for persisted state. Workspace-scoped keys live in a
// per-project namespace; global keys live in the shared namespace.
const (
	KeyBranchAssociations       = "branchAssociations"
	KeyBranchHistory            = "branchHistory"
	KeyGlobalBranchAssociations = "globalBranchAssociations"
	KeyGlobalBranchHistory      = "globalBranchHistory"
	KeyRegisteredRepositories   = "registeredRepositories"
)

// Store is a string-keyed JSON blob store. Two lifetimes exist behind the
// same contract: a workspace store namespaced to one project path, and a
// global store shared by every project the user opens. The association
// manager and registry only ever talk to this port, never to a concrete
// persistence API.
type Store interface {
	// Get unmarshals the value for key into v. found is false when the
	// key has never been written.
	Get(ctx context.Context, key string, v any) (found bool, err error)
	Put(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}
