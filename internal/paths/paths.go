// Package paths locates the parts of a Python project by convention: the root,
// the application package with its __init__.py, tests, docs and the README.
// Every path can be overridden from config.PathsConfig.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pycicd/internal/config"
	"pycicd/internal/logging"
	"pycicd/internal/tactile"
)

// rootMarkers identify a project root, checked from cwd upwards.
var rootMarkers = []string{".git", "setup.py", "pyproject.toml"}

// ignoredDirs are never taken as the application package.
var ignoredDirs = map[string]bool{
	"tests": true, "test": true, "docs": true, "venv": true, "build": true,
	"dist": true, "node_modules": true, "site-packages": true, "__pycache__": true,
}

// ProjectPaths holds resolved absolute project paths. Missing optional parts
// (no package, no README) are left empty.
type ProjectPaths struct {
	Root   string
	Init   string
	App    string
	Docs   string
	Readme string
	Tests  string

	overrides config.PathsConfig
	start     string
}

// Resolve resolves project paths starting from start (usually cwd).
func Resolve(start string, overrides config.PathsConfig) (*ProjectPaths, error) {
	p := &ProjectPaths{overrides: overrides, start: start}
	if err := p.Reset(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reset re-resolves every path, e.g. after the working directory changed.
func (p *ProjectPaths) Reset() error {
	start, err := filepath.Abs(p.start)
	if err != nil {
		return fmt.Errorf("failed to resolve start directory: %w", err)
	}

	root := p.overrides.Root
	if root != "" {
		root = absUnder(start, root)
		if err := ValidatePath(root, "paths.root"); err != nil {
			return err
		}
	} else {
		root = FindRoot(start)
	}
	p.Root = root

	p.App = overrideOr(root, p.overrides.App, func() string { return findApp(root) })
	p.Init = overrideOr(root, p.overrides.Init, func() string {
		if p.App == "" {
			return ""
		}
		return filepath.Join(p.App, "__init__.py")
	})
	p.Tests = overrideOr(root, p.overrides.Tests, func() string { return filepath.Join(root, "tests") })
	p.Docs = overrideOr(root, p.overrides.Docs, func() string { return filepath.Join(root, "docs") })
	p.Readme = overrideOr(root, p.overrides.Readme, func() string { return findReadme(root) })

	logging.BootDebug("Project paths: root=%s app=%s tests=%s docs=%s readme=%s",
		p.Root, p.App, p.Tests, p.Docs, p.Readme)
	return nil
}

// Abs resolves a possibly relative path against the project root.
func (p *ProjectPaths) Abs(path string) string {
	return absUnder(p.Root, path)
}

// AppName is the import name of the application package.
func (p *ProjectPaths) AppName() string {
	if p.App == "" {
		return ""
	}
	return filepath.Base(p.App)
}

// FindRoot returns the nearest ancestor of start containing a root marker,
// or start itself.
func FindRoot(start string) string {
	dir := start
	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// ValidatePath returns a *tactile.ConfigError when path does not exist.
func ValidatePath(path, field string) error {
	if _, err := os.Stat(path); err != nil {
		return &tactile.ConfigError{Field: field, Path: path}
	}
	return nil
}

// findApp returns the first top-level directory holding __init__.py,
// preferring a src/ layout.
func findApp(root string) string {
	for _, base := range []string{filepath.Join(root, "src"), root} {
		entries, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			if ignoredDirs[name] || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".egg-info") {
				continue
			}
			if _, err := os.Stat(filepath.Join(base, name, "__init__.py")); err == nil {
				return filepath.Join(base, name)
			}
		}
	}
	return ""
}

// findReadme matches README.md case-insensitively.
func findReadme(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), "readme.md") {
			return filepath.Join(root, e.Name())
		}
	}
	return ""
}

func overrideOr(root, override string, detect func() string) string {
	if override != "" {
		return absUnder(root, override)
	}
	return detect()
}

func absUnder(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
