package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/devbuddy/devbuddy/internal/models"
	"github.com/devbuddy/devbuddy/internal/output"
	"github.com/devbuddy/devbuddy/internal/registry"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the repository registry",
	Long: `Manage the repository registry that routes ticket prefixes to
repositories. The registry merges three layers: repositories from the
config file, repositories registered on this machine, and a shared
.devbuddy/repos.json manifest found in a parent directory. The manifest
wins conflicts, then registered repositories, then the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return repoListRun()
	},
}

var repoListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List configured repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return repoListRun()
	},
}

var repoDiscoverCmd = &cobra.Command{
	Use:   "discover [dir]",
	Short: "Scan a parent directory for git repositories",
	Long: `Scan the immediate subdirectories of dir for git repositories and
infer each one's ticket prefixes from its branch names. With no argument
the configured parent directory is scanned. Nothing is persisted; use
--register to save the results.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		return repoDiscoverRun(dir)
	},
}

var repoDiscoverRegister bool

var (
	repoRegisterName     string
	repoRegisterPrefixes []string
)

var repoRegisterCmd = &cobra.Command{
	Use:   "register <path>",
	Short: "Register a single repository",
	Long: `Register one repository so its ticket prefixes route to it. Prefixes
are inferred from the repository's branch names unless --prefixes is
given. The record lands in this machine's registry, not the shared
manifest.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return repoRegisterRun(args[0])
	},
}

var repoInitCmd = &cobra.Command{
	Use:   "init <dir>",
	Short: "Write a shareable .devbuddy/repos.json manifest",
	Long: `Discover the repositories under dir and write them to
dir/.devbuddy/repos.json. Commit the manifest so everyone who checks out
the tree resolves ticket prefixes the same way. Paths inside dir are
stored relative so the manifest survives being checked out elsewhere.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return repoInitRun(args[0])
	},
}

func init() {
	repoDiscoverCmd.Flags().BoolVar(&repoDiscoverRegister, "register", false, "Register the discovered repositories")
	repoRegisterCmd.Flags().StringVar(&repoRegisterName, "name", "", "Display name (default: directory name)")
	repoRegisterCmd.Flags().StringSliceVar(&repoRegisterPrefixes, "prefixes", nil, "Ticket prefixes, e.g. FE,WEB (default: inferred from branches)")
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoDiscoverCmd)
	repoCmd.AddCommand(repoRegisterCmd)
	repoCmd.AddCommand(repoInitCmd)
	rootCmd.AddCommand(repoCmd)
}

func repoListRun() error {
	reg, err := getRegistry()
	if err != nil {
		return err
	}

	cfg := reg.Config(context.Background())
	if len(cfg.Repositories) == 0 {
		ui.Info("No repositories configured. Use 'devbuddy repo discover <dir>' to find some.")
		return nil
	}

	ids := make([]string, 0, len(cfg.Repositories))
	for id := range cfg.Repositories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return cfg.Repositories[ids[i]].Name < cfg.Repositories[ids[j]].Name
	})

	table := ui.Table([]string{"Name", "Prefixes", "Path", "Remote"})
	for _, id := range ids {
		info := cfg.Repositories[id]
		_ = table.Append([]string{
			output.Cyan(info.Name),
			strings.Join(info.TicketPrefixes, ", "),
			info.Path,
			info.Remote,
		})
	}
	_ = table.Render()
	return nil
}

func repoDiscoverRun(dir string) error {
	reg, err := getRegistry()
	if err != nil {
		return err
	}

	if dir == "" {
		dir = viper.GetString("multi_repo.parent_dir")
	}
	if dir == "" {
		return fmt.Errorf("no directory given and multi_repo.parent_dir is not configured")
	}

	repos := reg.Discover(dir)
	if len(repos) == 0 {
		ui.Info("No git repositories found under %s", dir)
		return nil
	}

	table := ui.Table([]string{"Name", "Prefixes", "Path"})
	for _, info := range repos {
		_ = table.Append([]string{
			output.Cyan(info.Name),
			strings.Join(info.TicketPrefixes, ", "),
			info.Path,
		})
	}
	_ = table.Render()

	if !repoDiscoverRegister {
		ui.Info("Run 'devbuddy repo discover %s --register' to save these", dir)
		return nil
	}
	if dryRun {
		ui.DryRunMsg("Would register %d repositories", len(repos))
		return nil
	}

	added, err := reg.Register(context.Background(), repos...)
	if err != nil {
		return err
	}
	if added == 0 {
		ui.Info("All discovered repositories were already registered")
		return nil
	}

	ui.Success("Registered %d repositories", added)
	return nil
}

func repoRegisterRun(path string) error {
	if !gitClient.IsRepo(path) {
		return fmt.Errorf("not a git repository: %s", path)
	}

	reg, err := getRegistry()
	if err != nil {
		return err
	}

	info := reg.Describe(path)
	if repoRegisterName != "" {
		info.Name = repoRegisterName
	}
	if len(repoRegisterPrefixes) > 0 {
		prefixes := make([]string, 0, len(repoRegisterPrefixes))
		for _, p := range repoRegisterPrefixes {
			prefixes = append(prefixes, strings.ToUpper(strings.TrimSpace(p)))
		}
		sort.Strings(prefixes)
		info.TicketPrefixes = prefixes
	}

	if dryRun {
		ui.DryRunMsg("Would register %s (%s)", info.Name, strings.Join(info.TicketPrefixes, ", "))
		return nil
	}

	added, err := reg.Register(context.Background(), info)
	if err != nil {
		return err
	}
	if added == 0 {
		ui.Info("%s is already registered", info.Name)
		return nil
	}

	ui.Success("Registered %s (%s)", output.Cyan(info.Name), strings.Join(info.TicketPrefixes, ", "))
	return nil
}

func repoInitRun(dir string) error {
	reg, err := getRegistry()
	if err != nil {
		return err
	}

	repos := reg.Discover(dir)
	if len(repos) == 0 {
		ui.Info("No git repositories found under %s; nothing to write", dir)
		return nil
	}

	// Key manifest entries by name: directory names under one parent are
	// unique and make the file readable in review.
	byName := make(map[string]*models.RepositoryInfo, len(repos))
	for _, info := range repos {
		byName[info.Name] = info
	}

	if dryRun {
		ui.DryRunMsg("Would write manifest for %d repositories under %s", len(repos), dir)
		return nil
	}

	path, err := registry.WriteManifest(dir, byName)
	if err != nil {
		return err
	}
	reg.Invalidate()

	ui.Success("Wrote %s (%d repositories)", path, len(repos))
	ui.Info("Commit it so the whole team resolves ticket prefixes the same way")
	return nil
}
