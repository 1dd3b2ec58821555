package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pycicd/internal/packages"
	"pycicd/internal/tactile"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Read or change the package __version__",
}

var versionGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current version",
	Args:  cobra.NoArgs,
	RunE:  runVersionGet,
}

var versionSetCmd = &cobra.Command{
	Use:   "set <x.y.z>",
	Short: "Set the version",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionSet,
}

var versionBumpCmd = &cobra.Command{
	Use:       "bump <major|minor|patch>",
	Short:     "Increment one part of the version",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"major", "minor", "patch"},
	RunE:      runVersionBump,
}

func init() {
	versionCmd.AddCommand(versionGetCmd)
	versionCmd.AddCommand(versionSetCmd)
	versionCmd.AddCommand(versionBumpCmd)
}

func initFile() (string, error) {
	p, err := loadProject()
	if err != nil {
		return "", err
	}
	if p.paths.Init == "" {
		return "", &tactile.ConfigError{Field: "paths.init", Header: "Version not found."}
	}
	return p.paths.Init, nil
}

func runVersionGet(cmd *cobra.Command, args []string) error {
	path, err := initFile()
	if err != nil {
		return err
	}
	v, err := packages.GetVersion(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runVersionSet(cmd *cobra.Command, args []string) error {
	return changeVersion(cmd, func(string) (string, error) {
		if !packages.IsValidVersion(args[0]) {
			return "", fmt.Errorf("invalid version %q", args[0])
		}
		return args[0], nil
	})
}

func runVersionBump(cmd *cobra.Command, args []string) error {
	return changeVersion(cmd, func(v string) (string, error) {
		return packages.BumpVersion(v, args[0])
	})
}

// changeVersion writes next(current) to the package __init__.py.
func changeVersion(cmd *cobra.Command, next func(current string) (string, error)) error {
	path, err := initFile()
	if err != nil {
		return err
	}
	currentVersion, err := packages.GetVersion(path)
	if err != nil {
		return err
	}
	v, err := next(currentVersion)
	if err != nil {
		return err
	}
	if err := packages.SetVersion(path, v); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", currentVersion, okStyle.Render(v))
	return nil
}
