// Package packages holds the Python packaging helpers: the __version__ string,
// requirement files, pyproject.toml metadata, and building and uploading
// distributions.
package packages

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"pycicd/internal/logging"
)

var (
	versionLine = regexp.MustCompile(`(?m)^(__version__\s*=\s*)(["'])([^"']*)(["'])`)
	semver      = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)([.\-+]?[0-9A-Za-z.]+)?$`)
)

// IsValidVersion reports whether v looks like x.y.z with an optional suffix.
func IsValidVersion(v string) bool {
	return semver.MatchString(v)
}

// GetVersion reads __version__ from an __init__.py.
func GetVersion(initPath string) (string, error) {
	data, err := os.ReadFile(initPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", initPath, err)
	}
	m := versionLine.FindSubmatch(data)
	if m == nil {
		return "", fmt.Errorf("no __version__ found in %s", initPath)
	}
	return string(m[3]), nil
}

// SetVersion rewrites only the version string inside __init__.py.
func SetVersion(initPath, version string) error {
	if !IsValidVersion(version) {
		return fmt.Errorf("invalid version %q: expected x.y.z", version)
	}

	info, err := os.Stat(initPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", initPath, err)
	}
	data, err := os.ReadFile(initPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", initPath, err)
	}

	loc := versionLine.FindSubmatchIndex(data)
	if loc == nil {
		return fmt.Errorf("no __version__ found in %s", initPath)
	}

	// loc[6]:loc[7] is the quoted value.
	updated := make([]byte, 0, len(data)+len(version))
	updated = append(updated, data[:loc[6]]...)
	updated = append(updated, version...)
	updated = append(updated, data[loc[7]:]...)

	if err := os.WriteFile(initPath, updated, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", initPath, err)
	}
	logging.Packages("Version set to %s in %s", version, initPath)
	return nil
}

// BumpVersion increments part ("major", "minor" or "patch") of v and drops
// any pre-release suffix.
func BumpVersion(v, part string) (string, error) {
	m := semver.FindStringSubmatch(v)
	if m == nil {
		return "", fmt.Errorf("cannot bump invalid version %q", v)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])

	switch part {
	case "major":
		major, minor, patch = major+1, 0, 0
	case "minor":
		minor, patch = minor+1, 0
	case "patch", "increment":
		patch++
	default:
		return "", fmt.Errorf("unknown version part %q", part)
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch), nil
}

// ResolveVersion turns a pipeline version target into a concrete version.
// "increment" bumps the patch number; an empty target keeps current.
func ResolveVersion(current, target string) (string, error) {
	switch strings.TrimSpace(target) {
	case "":
		return current, nil
	case "increment", "major", "minor", "patch":
		return BumpVersion(current, target)
	}
	if !IsValidVersion(target) {
		return "", fmt.Errorf("invalid version %q", target)
	}
	return target, nil
}
