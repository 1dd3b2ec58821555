// Package docs regenerates the sphinx API documentation of the project.
package docs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pycicd/internal/logging"
	"pycicd/internal/paths"
	"pycicd/internal/tactile"
)

// FailureHeader tags a sphinx-apidoc failure.
const FailureHeader = "Documentation generation failed."

// Options configures Regenerate.
type Options struct {
	DocsDir   string
	SourceDir string // relative to DocsDir, "source" by default
	AppDir    string

	// Keep lists .rst file names preserved besides index.rst.
	Keep []string
}

// Regenerate deletes the generated .rst files of the docs source folder and
// runs sphinx-apidoc over the application package. Subfolders are untouched.
func Regenerate(ctx context.Context, ex tactile.Executor, opts Options) error {
	if err := paths.ValidatePath(opts.DocsDir, "paths.docs"); err != nil {
		return err
	}
	if err := paths.ValidatePath(opts.AppDir, "paths.app"); err != nil {
		return err
	}

	sourceDir := opts.SourceDir
	if sourceDir == "" {
		sourceDir = "source"
	}
	source := filepath.Join(opts.DocsDir, sourceDir)
	if err := os.MkdirAll(source, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", source, err)
	}

	removed, err := CleanGenerated(source, opts.Keep)
	if err != nil {
		return err
	}
	logging.DocsDebug("Removed %d generated .rst files from %s", removed, source)

	cmd := tactile.Command{
		Binary:           "sphinx-apidoc",
		Arguments:        []string{"-e", "-M", "-o", source, opts.AppDir},
		WorkingDirectory: opts.DocsDir,
	}
	logging.Docs("Regenerating docs for %s", filepath.Base(opts.AppDir))
	_, err = tactile.Run(ctx, ex, cmd, FailureHeader)
	return err
}

// CleanGenerated removes every .rst file directly in dir except index.rst
// and the names in keep. It returns how many files were removed.
func CleanGenerated(dir string, keep []string) (int, error) {
	preserve := map[string]bool{"index.rst": true}
	for _, k := range keep {
		preserve[k] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".rst") || preserve[name] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}
