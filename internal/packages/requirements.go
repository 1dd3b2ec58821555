package packages

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pycicd/internal/config"
	"pycicd/internal/tactile"
)

// GetRequirements parses a requirements file, skipping comments, blank lines,
// options and nested -r includes.
func GetRequirements(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open requirements %s: %w", path, err)
	}
	defer f.Close()

	var reqs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, " #"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		reqs = append(reqs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read requirements %s: %w", path, err)
	}
	return reqs, nil
}

// FindRequirementFiles returns every requirements*.txt in folder, sorted.
func FindRequirementFiles(folder string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(folder, "requirements*.txt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ResolveRequirementFiles applies a sync policy. Explicit files are resolved
// against folder and must exist. The result is de-duplicated, order kept.
func ResolveRequirementFiles(sources config.RequirementSources, folder string) ([]string, error) {
	var files []string
	switch sources.Mode {
	case config.SourcesNone:
		return nil, nil
	case config.SourcesInfer:
		found, err := FindRequirementFiles(folder)
		if err != nil {
			return nil, err
		}
		files = found
	case config.SourcesFiles:
		for _, f := range sources.Files {
			if !filepath.IsAbs(f) {
				f = filepath.Join(folder, f)
			}
			if _, err := os.Stat(f); err != nil {
				return nil, &tactile.ConfigError{Field: "sync_test_requirements", Path: f}
			}
			files = append(files, f)
		}
	}
	return dedupe(files), nil
}

// InstallCommand composes a pip invocation installing every file with -r
// followed by extra packages. Paths must already be in the form the target
// shell sees, and quote must match that shell.
func InstallCommand(files, extra []string, upgrade bool, quote func(string) string) string {
	if quote == nil {
		quote = tactile.QuoteArg
	}
	parts := []string{"python", "-m", "pip", "install"}
	if upgrade {
		parts = append(parts, "--upgrade")
	}
	for _, f := range files {
		parts = append(parts, "-r", quote(f))
	}
	for _, pkg := range dedupe(extra) {
		parts = append(parts, quote(pkg))
	}
	return strings.Join(parts, " ")
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return items
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
