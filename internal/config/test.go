package config

import (
	"fmt"
	"runtime"

	"gopkg.in/yaml.v3"

	"pycicd/internal/tactile"
)

// TestConfig configures the test orchestrator.
type TestConfig struct {
	// RunTests disables the whole test step when false.
	RunTests bool `yaml:"run_tests"`

	// TestedPath is the directory pytest runs in. Empty means the project root.
	TestedPath string `yaml:"tested_path"`

	// TestsPath holds the tests and coverage.xml. Empty means the detected tests folder.
	TestsPath string `yaml:"tests_path"`

	// PrepareTestVenvs lists versions created under PrepareTestVenvsPath before
	// running, e.g. "3.10" or "wsl-3.10". Existing venvs are left alone.
	PrepareTestVenvs     []string `yaml:"prepare_test_venvs"`
	PrepareTestVenvsPath string   `yaml:"prepare_test_venvs_path"`

	// TestCoverage collects coverage on the first environment only.
	TestCoverage bool `yaml:"test_coverage"`

	// StopOnFirstError passes -x to pytest.
	StopOnFirstError bool `yaml:"stop_on_first_error"`

	// Virtualenvs are run in order, followed by WSLVirtualenvs. Both empty
	// means the active environment.
	Virtualenvs    []string `yaml:"virtualenvs"`
	WSLVirtualenvs []string `yaml:"wsl_virtualenvs"`

	// SyncTestRequirements is null, "infer", a path or a list of paths,
	// resolved against SyncTestRequirementsPath.
	SyncTestRequirements     RequirementSources `yaml:"sync_test_requirements"`
	SyncTestRequirementsPath string             `yaml:"sync_test_requirements_path"`

	// Verbosity is 0 (quiet, line tracebacks), 1 (short tracebacks) or 2 (streamed, full).
	Verbosity int `yaml:"verbosity"`

	// ExtraArgs are appended to pytest verbatim.
	ExtraArgs []string `yaml:"extra_args"`

	// SelfPackages are installed into every environment so pytest is present.
	SelfPackages []string `yaml:"self_packages"`
}

// DefaultTestConfig returns the default test configuration.
func DefaultTestConfig() TestConfig {
	return TestConfig{
		RunTests:             true,
		PrepareTestVenvs:     []string{"3.7", "3.10", "wsl-3.7", "wsl-3.10"},
		PrepareTestVenvsPath: "tests/venv",
		TestCoverage:         true,
		StopOnFirstError:     true,
		Virtualenvs:          []string{"tests/venv/3.7", "tests/venv/3.10"},
		WSLVirtualenvs:       []string{"tests/venv/wsl-3.7", "tests/venv/wsl-3.10"},
		SyncTestRequirements: Files("requirements.txt"),
		Verbosity:            1,
		SelfPackages:         []string{"pytest", "pytest-cov"},
	}
}

// Validate checks the test configuration invariants.
func (t TestConfig) Validate() error {
	if t.Verbosity < 0 || t.Verbosity > 2 {
		return fmt.Errorf("test.verbosity=%d: %w", t.Verbosity, tactile.ErrInvalidVerbosity)
	}
	return nil
}

func defaultPythonCommand() string {
	if runtime.GOOS == "windows" {
		return "py -{version}"
	}
	return "python{version}"
}

// SourceMode selects how requirement files are found.
type SourceMode int

const (
	// SourcesNone disables syncing.
	SourcesNone SourceMode = iota
	// SourcesInfer uses every requirements*.txt in the requirements folder.
	SourcesInfer
	// SourcesFiles uses the listed files.
	SourcesFiles
)

// RequirementSources is the dependency sync policy: none, infer or explicit files.
type RequirementSources struct {
	Mode  SourceMode
	Files []string
}

// Infer returns the "infer" policy.
func Infer() RequirementSources {
	return RequirementSources{Mode: SourcesInfer}
}

// Files returns an explicit file list policy.
func Files(files ...string) RequirementSources {
	if len(files) == 0 {
		return RequirementSources{}
	}
	return RequirementSources{Mode: SourcesFiles, Files: files}
}

// Enabled reports whether any sync is configured.
func (r RequirementSources) Enabled() bool {
	return r.Mode != SourcesNone
}

func (r RequirementSources) String() string {
	switch r.Mode {
	case SourcesInfer:
		return "infer"
	case SourcesFiles:
		return fmt.Sprint(r.Files)
	}
	return "none"
}

// UnmarshalYAML accepts null, "infer", a single path or a list of paths.
func (r *RequirementSources) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" || node.Value == "" {
			*r = RequirementSources{}
			return nil
		}
		if node.Value == "infer" {
			*r = Infer()
			return nil
		}
		*r = Files(node.Value)
		return nil
	case yaml.SequenceNode:
		var files []string
		if err := node.Decode(&files); err != nil {
			return fmt.Errorf("sync requirements: %w", err)
		}
		*r = Files(files...)
		return nil
	}
	return fmt.Errorf("line %d: sync requirements must be null, \"infer\", a path or a list of paths", node.Line)
}

// MarshalYAML writes the policy back in the same shapes UnmarshalYAML accepts.
func (r RequirementSources) MarshalYAML() (interface{}, error) {
	switch r.Mode {
	case SourcesInfer:
		return "infer", nil
	case SourcesFiles:
		return r.Files, nil
	}
	return nil, nil
}
