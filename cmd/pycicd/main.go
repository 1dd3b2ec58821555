package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pycicd/internal/config"
	"pycicd/internal/logging"
	"pycicd/internal/paths"
	"pycicd/internal/tactile"
)

var (
	// Global flags
	configPath string
	workspace  string
	verbose    bool

	// current is the project resolved for this invocation.
	current *project

	// newExecutor builds the executor every command runs through. Tests swap it.
	newExecutor = func(cfg *config.Config, root string) tactile.Executor {
		ec := cfg.ExecutorConfig(root)
		ec.StreamStdout = os.Stdout
		ec.StreamStderr = os.Stderr
		return tactile.NewDirectExecutorWithConfig(ec)
	}
)

// project bundles what every subcommand needs.
type project struct {
	cfg      *config.Config
	paths    *paths.ProjectPaths
	executor tactile.Executor
}

var rootCmd = &cobra.Command{
	Use:   "pycicd",
	Short: "CI/CD for Python projects",
	Long: `pycicd runs the release pipeline of a Python project:

  reformat -> docs -> version -> tests -> commit -> push -> build app -> deploy

Every step is gated by cicd.yaml (or PYCICD_* environment variables and flags).
Tests run across every configured virtualenv, WSL ones last, and the first
failure stops the whole pipeline.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		return initLogging(p.cfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <project root>/"+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Project directory (default: current)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(venvCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(readmeTestsCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// loadProject resolves the project root, loads its config and caches both.
func loadProject() (*project, error) {
	if current != nil {
		return current, nil
	}

	start := workspace
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		start = cwd
	}

	path := configPath
	if path == "" {
		path = filepath.Join(paths.FindRoot(start), config.DefaultConfigFile)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	pp, err := paths.Resolve(start, cfg.Paths)
	if err != nil {
		return nil, err
	}

	current = &project{cfg: cfg, paths: pp, executor: newExecutor(cfg, pp.Root)}
	return current, nil
}

func initLogging(cfg *config.Config) error {
	if err := logging.Initialize(cfg.Logging.Options(verbose)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.BootDebug("Project root %s", current.paths.Root)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
