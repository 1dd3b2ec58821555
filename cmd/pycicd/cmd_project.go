package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pycicd/internal/docs"
	"pycicd/internal/readme"
	"pycicd/internal/tactile"
)

var readmeTestsCmd = &cobra.Command{
	Use:   "readme-tests",
	Short: "Generate pytest tests from the README code blocks",
	Long: `Writes tests/test_readme_generated-<mtime>.py with one test per python code
block of the README. A block followed by an unlabeled block is checked against
that output. Nothing happens when the README has not changed since the last
generation.`,
	Args: cobra.NoArgs,
	RunE: runReadmeTests,
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Regenerate the sphinx API docs",
	Args:  cobra.NoArgs,
	RunE:  runDocs,
}

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Print the resolved project paths",
	Args:  cobra.NoArgs,
	RunE:  showPaths,
}

func runReadmeTests(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	if p.paths.Readme == "" {
		return &tactile.ConfigError{Field: "paths.readme", Header: "README not found."}
	}

	path, generated, err := readme.AddReadmeTests(p.paths.Readme, p.paths.Tests)
	if err != nil {
		return err
	}
	if generated {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("Generated"), path)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", skipStyle.Render("Unchanged"), path)
	}
	return nil
}

func runDocs(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	if p.paths.App == "" {
		return &tactile.ConfigError{Field: "paths.app", Header: docs.FailureHeader}
	}

	err = docs.Regenerate(commandContext(cmd), p.executor, docs.Options{
		DocsDir:   p.paths.Docs,
		SourceDir: p.cfg.Docs.SourceDir,
		AppDir:    p.paths.App,
		Keep:      p.cfg.Docs.Keep,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("Regenerated"), p.paths.Docs)
	return nil
}

func showPaths(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, row := range [][2]string{
		{"root", p.paths.Root},
		{"app", p.paths.App},
		{"init", p.paths.Init},
		{"tests", p.paths.Tests},
		{"docs", p.paths.Docs},
		{"readme", p.paths.Readme},
	} {
		value := row[1]
		if value == "" {
			value = skipStyle.Render("(none)")
		}
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render(row[0]), value)
	}
	return nil
}
