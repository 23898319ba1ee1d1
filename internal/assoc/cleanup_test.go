package assoc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/store"
)

func TestCleanupStale_Workspace(t *testing.T) {
	env := newTestEnv(t, ModeWorkspace)
	ctx := context.Background()
	env.gc.branches = []string{"main", "feature/eng-42-x", "feature/eng-43-y"}

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/eng-42-x", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-43", "feature/eng-43-y", false)
	require.NoError(t, err)

	// One branch gets deleted.
	env.gc.branches = []string{"main", "feature/eng-43-y"}

	removed, err := env.manager.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ledger := env.workspaceLedger(t)
	require.Len(t, ledger, 1)
	assert.Equal(t, "ENG-43", ledger[0].TicketID)

	// History for the dropped association survives, inactive.
	histories := env.workspaceHistory(t)
	for _, h := range histories {
		if h.TicketID != "ENG-42" {
			continue
		}
		require.Len(t, h.Branches, 1)
		assert.False(t, h.Branches[0].IsActive)
	}
}

func TestCleanupStale_GlobalLeavesOtherReposUntouched(t *testing.T) {
	env := newTestEnv(t, ModeGlobal)
	ctx := context.Background()
	env.gc.branches = []string{"main"}

	require.NoError(t, env.global.Put(ctx, store.KeyGlobalBranchAssociations, []models.GlobalBranchAssociation{
		// Belongs to this project, branch gone: removable.
		{TicketID: "FE-1", BranchName: "feat/fe-1-x", Repository: "frontend-app", RepositoryPath: "/repos/frontend-app"},
		// Belongs to another repository: cannot be verified from here.
		{TicketID: "BE-7", BranchName: "fix/be-7-y", Repository: "backend-api", RepositoryPath: "/repos/backend-api"},
	}))

	removed, err := env.manager.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ledger := env.globalLedger(t)
	require.Len(t, ledger, 1)
	assert.Equal(t, "BE-7", ledger[0].TicketID, "cross-repo entries must be left alone")
}

func TestCleanupStale_NothingStale(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()
	env.gc.branches = []string{"main", "feature/eng-42-x"}

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/eng-42-x", false)
	require.NoError(t, err)

	removed, err := env.manager.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Len(t, env.workspaceLedger(t), 1)
}

func TestStalePreview_MatchesWhatCleanupRemoves(t *testing.T) {
	env := newTestEnv(t, ModeWorkspace)
	ctx := context.Background()
	env.gc.branches = []string{"main", "feature/eng-42-x", "feature/shared"}

	// Old-but-existing and duplicate-branch entries are report material,
	// not cleanup material; only the deleted branch may be previewed.
	old := models.BranchAssociation{
		TicketID:    "ENG-42",
		BranchName:  "feature/eng-42-x",
		LastUpdated: time.Now().UTC().Add(-45 * 24 * time.Hour),
	}
	require.NoError(t, env.workspace.Put(ctx, store.KeyBranchAssociations, []models.BranchAssociation{old}))
	_, err := env.manager.Associate(ctx, "ENG-43", "feature/shared", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-44", "feature/shared", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-45", "feature/deleted", false)
	require.NoError(t, err)
	env.gc.branches = []string{"main", "feature/eng-42-x", "feature/shared"}

	preview, err := env.manager.StalePreview(ctx)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, "ENG-45", preview[0].TicketID)
	assert.Len(t, env.workspaceLedger(t), 4, "preview must not remove anything")

	removed, err := env.manager.CleanupStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(preview), removed)
}

func TestStalePreview_GlobalRestrictedToCurrentRepo(t *testing.T) {
	env := newTestEnv(t, ModeGlobal)
	ctx := context.Background()
	env.gc.branches = []string{"main"}

	require.NoError(t, env.global.Put(ctx, store.KeyGlobalBranchAssociations, []models.GlobalBranchAssociation{
		{TicketID: "FE-1", BranchName: "feat/fe-1-x", Repository: "frontend-app", RepositoryPath: "/repos/frontend-app"},
		{TicketID: "BE-7", BranchName: "fix/be-7-y", Repository: "backend-api", RepositoryPath: "/repos/backend-api"},
	}))

	preview, err := env.manager.StalePreview(ctx)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, "FE-1", preview[0].TicketID, "cross-repo entries are never previewed for removal")
}

func TestReport(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()
	env.gc.branches = []string{"main", "feature/eng-42-x", "feature/shared"}

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/eng-42-x", true)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-43", "feature/shared", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-44", "feature/shared", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-45", "feature/deleted", false)
	require.NoError(t, err)

	// Simulate the branch disappearing after association.
	env.gc.branches = []string{"main", "feature/eng-42-x", "feature/shared"}

	report, err := env.manager.Report(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.AutoDetected)
	assert.Equal(t, 3, report.Manual)

	require.Len(t, report.Stale, 1)
	assert.Equal(t, "ENG-45", report.Stale[0].TicketID)

	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, "feature/shared", report.Duplicates[0].BranchName)
	assert.Equal(t, []string{"ENG-43", "ENG-44"}, report.Duplicates[0].TicketIDs)
}

func TestReport_OldAssociations(t *testing.T) {
	env := newTestEnv(t, ModeWorkspace)
	ctx := context.Background()
	env.gc.branches = []string{"main", "feature/eng-42-x"}

	old := models.BranchAssociation{
		TicketID:    "ENG-42",
		BranchName:  "feature/eng-42-x",
		LastUpdated: time.Now().UTC().Add(-45 * 24 * time.Hour),
	}
	require.NoError(t, env.workspace.Put(ctx, store.KeyBranchAssociations, []models.BranchAssociation{old}))

	report, err := env.manager.Report(ctx)
	require.NoError(t, err)
	require.Len(t, report.Old, 1)
	assert.Equal(t, "ENG-42", report.Old[0].TicketID)
	assert.Empty(t, report.Stale, "existing branch is old but not stale")
}

func TestReport_UnverifiableCrossRepo(t *testing.T) {
	env := newTestEnv(t, ModeGlobal)
	ctx := context.Background()

	require.NoError(t, env.global.Put(ctx, store.KeyGlobalBranchAssociations, []models.GlobalBranchAssociation{
		{TicketID: "BE-7", BranchName: "fix/be-7-y", Repository: "backend-api", RepositoryPath: "/repos/backend-api"},
	}))

	report, err := env.manager.Report(ctx)
	require.NoError(t, err)
	require.Len(t, report.Unverifiable, 1)
	assert.Equal(t, "BE-7", report.Unverifiable[0].TicketID)
	assert.Empty(t, report.Stale, "unverifiable entries must not be counted stale")
}

func TestReport_AgedCrossRepoIsOldAndUnverifiable(t *testing.T) {
	env := newTestEnv(t, ModeGlobal)
	ctx := context.Background()

	stamp := time.Now().UTC().Add(-45 * 24 * time.Hour)
	require.NoError(t, env.global.Put(ctx, store.KeyGlobalBranchAssociations, []models.GlobalBranchAssociation{
		{TicketID: "BE-7", BranchName: "fix/be-7-y", Repository: "backend-api", RepositoryPath: "/repos/backend-api", LastUpdated: stamp},
	}))

	report, err := env.manager.Report(ctx)
	require.NoError(t, err)
	require.Len(t, report.Old, 1, "aging applies to cross-repo entries too")
	assert.Equal(t, "BE-7", report.Old[0].TicketID)
	require.Len(t, report.Unverifiable, 1)
}

func TestReuseCounts_FromHistoryNotLedger(t *testing.T) {
	env := newTestEnv(t, ModeWorkspace)
	ctx := context.Background()
	env.gc.branches = []string{"main"}

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/first", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-42", "feature/second", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-43", "feature/only", false)
	require.NoError(t, err)

	report, err := env.manager.Report(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, report.MostReused)
	assert.Equal(t, "ENG-42", report.MostReused[0].TicketID)
	assert.Equal(t, 2, report.MostReused[0].BranchCount, "superseded branches still count via history")
	assert.Equal(t, "feature/second", report.MostReused[0].ActiveBranch)
}

func TestCleanupSuggestions(t *testing.T) {
	env := newTestEnv(t, ModeWorkspace)
	ctx := context.Background()
	env.gc.branches = []string{"main", "feature/eng-42-x"}

	_, err := env.manager.Associate(ctx, "ENG-42", "feature/eng-42-x", false)
	require.NoError(t, err)
	_, err = env.manager.Associate(ctx, "ENG-45", "feature/deleted", false)
	require.NoError(t, err)
	env.gc.branches = []string{"main", "feature/eng-42-x"}

	suggestions, err := env.manager.CleanupSuggestions(ctx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "ENG-45", suggestions[0].TicketID)
	assert.Contains(t, suggestions[0].Reason, "feature/deleted")
}

func TestDetectAll(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()
	env.gc.branches = []string{"main", "feat/FE-1-header", "fix/BE-9-timeout", "feat/FE-1-alt"}

	// FE-1 already has a user-made association; it must not be suggested.
	_, err := env.manager.Associate(ctx, "FE-1", "feat/FE-1-header", false)
	require.NoError(t, err)

	suggestions, err := env.manager.DetectAll(ctx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "BE-9", suggestions[0].TicketID)
	assert.Equal(t, "fix/BE-9-timeout", suggestions[0].BranchName)

	assert.Len(t, env.workspaceLedger(t), 1, "DetectAll is advisory and must not write")
}

func TestAutoAssociateCurrentBranch(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	ctx := context.Background()
	env.gc.current = "feature/eng-42-login"
	env.gc.branches = []string{"main", "feature/eng-42-login"}

	a, err := env.manager.AutoAssociateCurrentBranch(ctx)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "ENG-42", a.TicketID)
	assert.True(t, a.IsAutoDetected)
}

func TestAutoAssociateCurrentBranch_NoTicketIsNoop(t *testing.T) {
	env := newTestEnv(t, ModeBoth)
	env.gc.current = "main"

	a, err := env.manager.AutoAssociateCurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Empty(t, env.workspaceLedger(t))
}
