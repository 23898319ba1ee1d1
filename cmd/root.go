package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/devbuddy/devbuddy/internal/assoc"
	"github.com/devbuddy/devbuddy/internal/git"
	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/output"
	"github.com/devbuddy/devbuddy/internal/registry"
	"github.com/devbuddy/devbuddy/internal/store"
	"github.com/devbuddy/devbuddy/internal/ticket"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI
	db *store.DB

	gitClient   git.Client
	projectPath string

	verbose   bool
	dryRun    bool
	assumeYes bool
)

var rootCmd = &cobra.Command{
	Use:   "devbuddy",
	Short: "devbuddy - link work-tracker tickets to git branches",
	Long: `devbuddy remembers which branch belongs to which ticket, across one or
many repositories. It detects ticket keys in branch names, routes ticket
prefixes to the right repository, and switches branches safely when the
working tree has uncommitted changes.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Assume safe answers to prompts (stash, confirm)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/devbuddy/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "devbuddy")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DEVBUDDY")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "devbuddy")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "devbuddy.db"))
	viper.SetDefault("storage.mode", string(assoc.ModeBoth))
	viper.SetDefault("multi_repo.enabled", true)
	viper.SetDefault("multi_repo.auto_discover", false)
	viper.SetDefault("multi_repo.parent_dir", "")
	viper.SetDefault("git.timeout", "10s")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	gitClient = git.NewClient(viper.GetDuration("git.timeout"))

	// The current project is the enclosing git repository, or the cwd
	// when devbuddy runs outside one.
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	if root, err := gitClient.RepoRoot(cwd); err == nil && root != "" {
		projectPath = root
	} else {
		abs, _ := filepath.Abs(cwd)
		projectPath = abs
	}

	// Open the store lazily — only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// getDB returns the shared database, opening it on first call.
func getDB() (*store.DB, error) {
	if db != nil {
		return db, nil
	}

	d, err := store.Open(viper.GetString("db_path"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := d.Migrate(context.Background()); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	db = d
	return db, nil
}

// getRegistry builds the repository registry over the global store tier.
func getRegistry() (*registry.Registry, error) {
	d, err := getDB()
	if err != nil {
		return nil, err
	}
	return registry.New(projectPath, d.Global(), gitClient, settingsFromViper, ui.VerboseLog), nil
}

// settingsFromViper reads the user-settings registry layer on demand.
func settingsFromViper() registry.Settings {
	var repos map[string]*models.RepositoryInfo
	if err := viper.UnmarshalKey("repositories", &repos); err != nil {
		repos = nil
	}
	return registry.Settings{
		Repositories: repos,
		AutoDiscover: viper.GetBool("multi_repo.auto_discover"),
		ParentDir:    viper.GetString("multi_repo.parent_dir"),
	}
}

// getManager wires the association manager for the current project.
func getManager() (*assoc.Manager, error) {
	d, err := getDB()
	if err != nil {
		return nil, err
	}

	mode, err := assoc.ParseMode(viper.GetString("storage.mode"))
	if err != nil {
		return nil, err
	}

	var reg *registry.Registry
	if viper.GetBool("multi_repo.enabled") {
		if reg, err = getRegistry(); err != nil {
			return nil, err
		}
	}

	return assoc.New(assoc.Config{
		Mode:        mode,
		ProjectPath: projectPath,
		Workspace:   d.Workspace(projectPath),
		Global:      d.Global(),
		Git:         gitClient,
		Registry:    reg,
		Prompter:    newTerminalPrompter(),
		Logf:        ui.VerboseLog,
	}), nil
}

// rootRun handles `devbuddy` with no subcommand: show where we are and
// what is linked to the current branch's ticket.
func rootRun() error {
	branch, err := gitClient.CurrentBranch(projectPath)
	if err != nil {
		ui.Info("Not inside a git repository (%s)", projectPath)
		return nil
	}

	ui.Info("Repository: %s", output.Cyan(filepath.Base(projectPath)))
	ui.Info("Branch:     %s", output.Cyan(branch))

	id, ok := ticket.FromBranch(branch)
	if !ok {
		ui.Info("No ticket key in the current branch name")
		return nil
	}

	m, err := getManager()
	if err != nil {
		return err
	}

	if a, found := m.BranchForTicket(context.Background(), id.String()); found {
		state := "active"
		if a.IsAutoDetected {
			state = "auto"
		}
		ui.Info("Ticket:     %s -> %s (%s)", output.Cyan(id.String()), a.BranchName, output.AssociationState(state))
	} else {
		ui.Info("Ticket:     %s (not linked; run 'devbuddy detect' or 'devbuddy link %s')", output.Cyan(id.String()), id.String())
	}
	return nil
}
