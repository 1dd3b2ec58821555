package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pycicd/internal/config"
	"pycicd/internal/tactile"
	"pycicd/internal/venv"
)

// Venv flags
var (
	venvWSL          bool
	venvRequirements []string
	venvInfer        bool
)

var venvCmd = &cobra.Command{
	Use:   "venv",
	Short: "Manage test virtualenvs",
}

var venvPrepareCmd = &cobra.Command{
	Use:   "prepare [versions...]",
	Short: "Create missing test virtualenvs",
	Long: `Creates one virtualenv per version under test.prepare_test_venvs_path.
A "wsl-" prefix creates the environment inside WSL. Existing environments are
left untouched. Without arguments test.prepare_test_venvs is used.

Example:
  pycicd venv prepare 3.10 wsl-3.10`,
	RunE: runVenvPrepare,
}

var venvSyncCmd = &cobra.Command{
	Use:   "sync <path>",
	Short: "Install requirements into a virtualenv",
	Long: `Installs the configured requirement files (test.sync_test_requirements) and
test.self_packages into the environment at path in a single pip call.`,
	Args: cobra.ExactArgs(1),
	RunE: runVenvSync,
}

func init() {
	venvSyncCmd.Flags().BoolVar(&venvWSL, "wsl", false, "The environment lives inside WSL")
	venvSyncCmd.Flags().StringSliceVarP(&venvRequirements, "requirements", "r", nil, "Requirement files (overrides config)")
	venvSyncCmd.Flags().BoolVar(&venvInfer, "infer", false, "Use every requirements*.txt found")

	venvCmd.AddCommand(venvPrepareCmd)
	venvCmd.AddCommand(venvSyncCmd)
}

func runVenvPrepare(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	versions := args
	if len(versions) == 0 {
		versions = p.cfg.Test.PrepareTestVenvs
	}
	if len(versions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No versions to prepare.")
		return nil
	}

	base := p.paths.Abs(p.cfg.Test.PrepareTestVenvsPath)
	if err := venv.Prepare(commandContext(cmd), p.executor, base, versions, p.cfg.Venv); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d virtualenvs in %s\n", okStyle.Render("Prepared"), len(versions), base)
	return nil
}

func runVenvSync(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	var opts []venv.Option
	if venvWSL {
		opts = append(opts, venv.WithWSL(p.cfg.Venv.WSLDistribution))
	}
	v := venv.New(p.paths.Abs(args[0]), p.executor, opts...)
	if !v.Installed() {
		return &tactile.EnvironmentMissingError{Path: v.Path}
	}

	sources := p.cfg.Test.SyncTestRequirements
	switch {
	case venvInfer:
		sources = config.Infer()
	case len(venvRequirements) > 0:
		sources = config.Files(venvRequirements...)
	}

	folder := p.paths.Root
	if p.cfg.Test.SyncTestRequirementsPath != "" {
		folder = p.paths.Abs(p.cfg.Test.SyncTestRequirementsPath)
	}
	if err := v.SyncRequirements(commandContext(cmd), sources, folder, p.cfg.Test.SelfPackages); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("Synced"), v.Path)
	return nil
}
