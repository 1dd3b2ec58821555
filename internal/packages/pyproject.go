package packages

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// PyProject is the subset of pyproject.toml pycicd reads.
type PyProject struct {
	Project     ProjectTable     `toml:"project"`
	BuildSystem BuildSystemTable `toml:"build-system"`
}

// ProjectTable is the PEP 621 [project] table.
type ProjectTable struct {
	Name                 string              `toml:"name"`
	Version              string              `toml:"version"`
	Dynamic              []string            `toml:"dynamic"`
	Dependencies         []string            `toml:"dependencies"`
	OptionalDependencies map[string][]string `toml:"optional-dependencies"`
}

// BuildSystemTable is the [build-system] table.
type BuildSystemTable struct {
	Requires     []string `toml:"requires"`
	BuildBackend string   `toml:"build-backend"`
}

// ReadPyProject parses root/pyproject.toml. A missing file returns (nil, nil).
func ReadPyProject(root string) (*PyProject, error) {
	path := filepath.Join(root, "pyproject.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var pp PyProject
	if err := toml.Unmarshal(data, &pp); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &pp, nil
}

// HasStaticVersion reports whether the version lives in pyproject.toml
// rather than in the package's __init__.py.
func (p *PyProject) HasStaticVersion() bool {
	if p == nil || p.Project.Version == "" {
		return false
	}
	for _, d := range p.Project.Dynamic {
		if d == "version" {
			return false
		}
	}
	return true
}
