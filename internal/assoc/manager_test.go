package assoc

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devbuddy/devbuddy/internal/git"
	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/store"
)

// mockGitClient implements git.Client with scripted state for one repo.
type mockGitClient struct {
	mu            sync.Mutex
	current       string
	branches      []string
	status        *git.WorkingTreeStatus
	checkoutErr   error
	statusErr     error
	stashErr      error
	stashMessages []string
	checkouts     []string
}

func (m *mockGitClient) IsRepo(path string) bool               { return true }
func (m *mockGitClient) RepoRoot(path string) (string, error)  { return path, nil }
func (m *mockGitClient) CurrentBranch(path string) (string, error) {
	return m.current, nil
}
func (m *mockGitClient) BranchList(path string) ([]string, error) { return m.branches, nil }
func (m *mockGitClient) BranchExists(path, name string) (bool, error) {
	for _, b := range m.branches {
		if b == name {
			return true, nil
		}
	}
	return false, nil
}
func (m *mockGitClient) Status(path string) (*git.WorkingTreeStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if m.status == nil {
		return &git.WorkingTreeStatus{}, nil
	}
	return m.status, nil
}
func (m *mockGitClient) Checkout(path, name string) error {
	if m.checkoutErr != nil {
		return m.checkoutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkouts = append(m.checkouts, name)
	m.current = name
	return nil
}
func (m *mockGitClient) StashPush(path, message string) error {
	if m.stashErr != nil {
		return m.stashErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stashMessages = append(m.stashMessages, message)
	m.status = &git.WorkingTreeStatus{}
	return nil
}
func (m *mockGitClient) RemoteURL(path string) (string, error) { return "", nil }

// scriptedPrompter returns canned answers and records what was asked.
type scriptedPrompter struct {
	confirm  bool
	choice   CheckoutChoice
	confirms []string
	prompted int
}

func (p *scriptedPrompter) Confirm(message string) bool {
	p.confirms = append(p.confirms, message)
	return p.confirm
}

func (p *scriptedPrompter) UncommittedChanges(status *git.WorkingTreeStatus, from, to string) CheckoutChoice {
	p.prompted++
	return p.choice
}

type testEnv struct {
	manager   *Manager
	workspace *store.MemStore
	global    *store.MemStore
	gc        *mockGitClient
	prompt    *scriptedPrompter
}

func newTestEnv(t *testing.T, mode Mode) *testEnv {
	t.Helper()
	env := &testEnv{
		workspace: store.NewMemStore(),
		global:    store.NewMemStore(),
		gc:        &mockGitClient{current: "main", branches: []string{"main"}},
		prompt:    &scriptedPrompter{},
	}
	env.manager = New(Config{
		Mode:        mode,
		ProjectPath: "/repos/frontend-app",
		Workspace:   env.workspace,
		Global:      env.global,
		Git:         env.gc,
		Prompter:    env.prompt,
	})
	return env
}

func (e *testEnv) workspaceLedger(t *testing.T) []models.BranchAssociation {
	t.Helper()
	var ledger []models.BranchAssociation
	_, err := e.workspace.Get(context.Background(), store.KeyBranchAssociations, &ledger)
	require.NoError(t, err)
	return ledger
}

func (e *testEnv) globalLedger(t *testing.T) []models.GlobalBranchAssociation {
	t.Helper()
	var ledger []models.GlobalBranchAssociation
	_, err := e.global.Get(context.Background(), store.KeyGlobalBranchAssociations, &ledger)
	require.NoError(t, err)
	return ledger
}

func (e *testEnv) workspaceHistory(t *testing.T) []models.BranchHistory {
	t.Helper()
	var histories []models.BranchHistory
	_, err := e.workspace.Get(context.Background(), store.KeyBranchHistory, &histories)
	require.NoError(t, err)
	return histories
}

func TestAssociate_WritesBothTiers(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()

	a, err := env.manager.Associate(ctx, "ENG-42", "feature/eng-42-x", false)
	require.NoError(t, err)
	assert.Equal(t, "ENG-42", a.TicketID)
	assert.Equal(t, "/repos/frontend-app", a.RepositoryPath)

	ws := env.workspaceLedger(t)
	require.Len(t, ws, 1)
	assert.Equal(t, "feature/eng-42-x", ws[0].BranchName)

	gl := env.globalLedger(t)
	require.Len(t, gl, 1)
	assert.Equal(t, "frontend-app", gl[0].Repository, "global entries must carry the repository")
	assert.Equal(t, "/repos/frontend-app", gl[0].RepositoryPath)
}

func TestAssociate_NormalizesTicketID(t *testing.T) {
	env := newTestEnv(t, ModeWorkspace)

	a, err := env.manager.Associate(context.Background(), "eng-42", "feature/x", false)
	require.NoError(t, err)
	assert.Equal(t, "ENG-42", a.TicketID)
}

func TestAssociate_InvalidTicketID(t *testing.T) {
	env := newTestEnv(t, ModeBoth)

	_, err := env.manager.Associate(context.Background(), "not a ticket", "feature/x", false)
	assert.Error(t, err)
	assert.Empty(t, env.workspaceLedger(t))
}

func TestAssociate_AtMostOnePerTicket(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/first", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-42", "feature/second", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-43", "feature/other", false)
	require.NoError(t, err)

	ws := env.workspaceLedger(t)
	counts := map[string]int{}
	for _, a := range ws {
		counts[a.TicketID]++
	}
	assert.Equal(t, 1, counts["ENG-42"], "re-association must supersede, not duplicate")
	assert.Equal(t, 1, counts["ENG-43"])

	gl := env.globalLedger(t)
	counts = map[string]int{}
	for _, a := range gl {
		counts[a.TicketID]++
	}
	assert.Equal(t, 1, counts["ENG-42"])

	a, ok := env.manager.BranchForTicket(ctx, "ENG-42")
	require.True(t, ok)
	assert.Equal(t, "feature/second", a.BranchName)
}

func TestAssociate_Idempotent(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/x", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-42", "feature/x", false)
	require.NoError(t, err)

	assert.Len(t, env.workspaceLedger(t), 1)

	histories := env.workspaceHistory(t)
	require.Len(t, histories, 1)
	assert.Len(t, histories[0].Branches, 1, "same pair twice must not duplicate history")
}

func TestAssociate_HistorySingleActive(t *testing.T) {
	env := newTestEnv(t, ModeWorkspace)
	ctx := context.Background()

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/first", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-42", "feature/second", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-42", "feature/first", false)
	require.NoError(t, err)

	histories := env.workspaceHistory(t)
	require.Len(t, histories, 1)
	require.Len(t, histories[0].Branches, 2, "history is append-only per branch")

	active := 0
	for _, b := range histories[0].Branches {
		if b.IsActive {
			active++
			assert.Equal(t, "feature/first", b.BranchName)
		}
	}
	assert.Equal(t, 1, active, "at most one active history entry per ticket")
}

func TestRemove_KeepsHistoryInactive(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/x", false)
	require.NoError(t, err)

	removed, err := env.manager.Remove(ctx, "ENG-42")
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Empty(t, env.workspaceLedger(t))
	assert.Empty(t, env.globalLedger(t))

	histories := env.workspaceHistory(t)
	require.Len(t, histories, 1)
	require.Len(t, histories[0].Branches, 1)
	assert.False(t, histories[0].Branches[0].IsActive)
	assert.Equal(t, "feature/x", histories[0].Branches[0].BranchName)
}

func TestRemove_MissingTicket(t *testing.T) {
	env := newTestEnv(t, ModeBoth)

	removed, err := env.manager.Remove(context.Background(), "ENG-99")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestForget_DropsWorkspaceKeepsGlobal(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/eng-42-x", false)
	require.NoError(t, err)

	require.NoError(t, env.manager.Forget(ctx))

	assert.Empty(t, env.workspaceLedger(t))
	assert.Empty(t, env.workspaceHistory(t))
	require.Len(t, env.globalLedger(t), 1, "global tier must survive a forget")
	assert.Equal(t, "ENG-42", env.globalLedger(t)[0].TicketID)
}

func TestBranchForTicket_Lifecycle(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()

	_, ok := env.manager.BranchForTicket(ctx, "ENG-42")
	assert.False(t, ok, "no association yet is a miss, not an error")

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/eng-42-x", false)
	require.NoError(t, err)

	a, ok := env.manager.BranchForTicket(ctx, "ENG-42")
	require.True(t, ok)
	assert.Equal(t, "feature/eng-42-x", a.BranchName)
}

func TestAssociations_MergeWorkspaceFirst(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()

	// Global tier has two entries, one shadowed by a workspace entry.
	require.NoError(t, env.global.Put(ctx, store.KeyGlobalBranchAssociations, []models.GlobalBranchAssociation{
		{TicketID: "ENG-42", BranchName: "global/stale", Repository: "backend", RepositoryPath: "/repos/backend-api"},
		{TicketID: "BE-7", BranchName: "fix/be-7-y", Repository: "backend", RepositoryPath: "/repos/backend-api"},
	}))
	require.NoError(t, env.workspace.Put(ctx, store.KeyBranchAssociations, []models.BranchAssociation{
		{TicketID: "ENG-42", BranchName: "feature/eng-42-x"},
	}))

	assocs, err := env.manager.Associations(ctx)
	require.NoError(t, err)
	require.Len(t, assocs, 2)

	byTicket := map[string]models.BranchAssociation{}
	for _, a := range assocs {
		byTicket[a.TicketID] = a
	}
	assert.Equal(t, "feature/eng-42-x", byTicket["ENG-42"].BranchName, "workspace entry shadows global")
	assert.Equal(t, "fix/be-7-y", byTicket["BE-7"].BranchName, "unshadowed global entries fall through")
}

func TestAssociations_GlobalModeUnfiltered(t *testing.T) {
	env := newTestEnv(t, ModeGlobal)
	ctx := context.Background()

	require.NoError(t, env.global.Put(ctx, store.KeyGlobalBranchAssociations, []models.GlobalBranchAssociation{
		{TicketID: "BE-7", BranchName: "fix/be-7-y", Repository: "backend", RepositoryPath: "/repos/backend-api"},
	}))
	// Workspace tier must be ignored entirely in global mode.
	require.NoError(t, env.workspace.Put(ctx, store.KeyBranchAssociations, []models.BranchAssociation{
		{TicketID: "ENG-42", BranchName: "feature/eng-42-x"},
	}))

	assocs, err := env.manager.Associations(ctx)
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, "BE-7", assocs[0].TicketID)
	assert.Equal(t, "/repos/backend-api", assocs[0].RepositoryPath)
}

func TestWorkspaceMode_NeverTouchesGlobal(t *testing.T) {
	env := newTestEnv(t, ModeWorkspace)
	ctx := context.Background()

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/x", false)
	require.NoError(t, err)

	assert.Len(t, env.workspaceLedger(t), 1)
	assert.Empty(t, env.globalLedger(t))
}

func TestIsTicketInDifferentRepository(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()

	require.NoError(t, env.global.Put(ctx, store.KeyGlobalBranchAssociations, []models.GlobalBranchAssociation{
		{TicketID: "BE-7", BranchName: "fix/be-7-y", Repository: "backend-api", RepositoryPath: "/repos/backend-api"},
		{TicketID: "FE-1", BranchName: "feat/fe-1-x", Repository: "frontend-app", RepositoryPath: "/repos/frontend-app"},
	}))

	info := env.manager.IsTicketInDifferentRepository(ctx, "BE-7")
	assert.True(t, info.IsDifferent)
	assert.Equal(t, "/repos/backend-api", info.RepositoryPath)
	assert.Equal(t, "fix/be-7-y", info.BranchName)

	info = env.manager.IsTicketInDifferentRepository(ctx, "FE-1")
	assert.False(t, info.IsDifferent)

	// Absent global association: conservative default.
	info = env.manager.IsTicketInDifferentRepository(ctx, "OPS-9")
	assert.False(t, info.IsDifferent)
}

func TestHistory_OrderedByLastUsedDesc(t *testing.T) {
	env := newTestEnv(t, ModeWorkspace)
	ctx := context.Background()

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/first", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-42", "feature/second", false)
	require.NoError(t, err)

	h := env.manager.History(ctx, "ENG-42")
	require.NotNil(t, h)
	require.Len(t, h.Branches, 2)
	assert.Equal(t, "feature/second", h.Branches[0].BranchName, "most recently used first")

	assert.Nil(t, env.manager.History(ctx, "ENG-99"))
}

func TestAssociate_ConcurrentCallsDoNotDropUpdates(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := []string{"ENG-1", "ENG-2", "ENG-3", "ENG-4", "ENG-5"}[n%5]
			_, err := env.manager.Associate(ctx, id, "feature/"+id, false)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ws := env.workspaceLedger(t)
	assert.Len(t, ws, 5, "interleaved read-modify-write must not lose tickets")
	gl := env.globalLedger(t)
	assert.Len(t, gl, 5)
}
