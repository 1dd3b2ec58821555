package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pycicd/internal/logging"
	"pycicd/internal/tactile"
)

// DefaultConfigFile is looked up in the project root when --config is not given.
const DefaultConfigFile = "cicd.yaml"

// StepNames lists pipeline steps in execution order. do_only must name one of them.
var StepNames = []string{"reformat", "docs", "version", "test", "commit", "push", "build", "deploy"}

// Config holds all pycicd configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Test      TestConfig      `yaml:"test"`
	Venv      VenvConfig      `yaml:"venv"`
	Docs      DocsConfig      `yaml:"docs"`
	Format    FormatConfig    `yaml:"format"`
	Build     BuildConfig     `yaml:"build"`
	Deploy    DeployConfig    `yaml:"deploy"`
	Readme    ReadmeConfig    `yaml:"readme"`
	Execution ExecutionConfig `yaml:"execution"`
	Logging   LoggingConfig   `yaml:"logging"`
	History   HistoryConfig   `yaml:"history"`
}

// PathsConfig overrides conventional project paths. Empty means detect.
type PathsConfig struct {
	Root   string `yaml:"root"`
	App    string `yaml:"app"`
	Init   string `yaml:"init"`
	Docs   string `yaml:"docs"`
	Readme string `yaml:"readme"`
	Tests  string `yaml:"tests"`
}

// PipelineConfig gates the pipeline steps.
type PipelineConfig struct {
	Reformat bool `yaml:"reformat"`
	Docs     bool `yaml:"docs"`

	// Version is "", "increment", "major", "minor", "patch" or a literal x.y.z.
	// Empty leaves the version alone.
	Version string `yaml:"version"`

	GitCommit     bool   `yaml:"git_commit"`
	GitCommitAll  bool   `yaml:"git_commit_all"` // stage every change before committing
	CommitMessage string `yaml:"commit_message"`
	GitPush       bool   `yaml:"git_push"`
	Remote        string `yaml:"remote"`
	Tag           bool   `yaml:"tag"` // tag the commit with the version, pushed with --follow-tags

	// AllowedBranches gates the whole pipeline. Nil or empty allows any branch.
	AllowedBranches []string `yaml:"allowed_branches"`

	BuildApp bool `yaml:"build_app"`
	Deploy   bool `yaml:"deploy"`

	// DoOnly runs a single named step and nothing else.
	DoOnly string `yaml:"do_only"`
}

// VenvConfig configures how virtualenvs are provisioned.
type VenvConfig struct {
	// PythonCommand creates local venvs; {version} is replaced by e.g. 3.10.
	PythonCommand string `yaml:"python_command"`

	// WSLPythonCommand creates venvs inside WSL.
	WSLPythonCommand string `yaml:"wsl_python_command"`

	// WSLDistribution selects a WSL distribution; empty uses the default one.
	WSLDistribution string `yaml:"wsl_distribution"`
}

// DocsConfig configures sphinx regeneration.
type DocsConfig struct {
	SourceDir string   `yaml:"source_dir"` // relative to the docs folder
	Keep      []string `yaml:"keep"`       // .rst files never deleted besides index.rst
}

// FormatConfig configures black.
type FormatConfig struct {
	LineLength int `yaml:"line_length"`
}

// ReadmeConfig configures README-derived tests.
type ReadmeConfig struct {
	Generate bool `yaml:"generate"`
}

// LoggingConfig configures the category loggers.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // json, console
	File       string          `yaml:"file"`       // optional extra output
	Categories map[string]bool `yaml:"categories"` // false silences a category
}

// Options converts the section for logging.Initialize. verbose forces debug.
func (c LoggingConfig) Options(verbose bool) logging.Options {
	opts := logging.Options{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		Categories: c.Categories,
	}
	if verbose {
		opts.Level = "debug"
	}
	return opts
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // relative to the project root
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Reformat:        true,
			Docs:            true,
			Version:         "increment",
			GitCommit:       true,
			GitCommitAll:    true,
			CommitMessage:   "New commit",
			GitPush:         true,
			Remote:          "origin",
			Tag:             true,
			AllowedBranches: []string{"master", "main"},
			BuildApp:        false,
			Deploy:          false,
		},

		Test: DefaultTestConfig(),

		Venv: VenvConfig{
			PythonCommand:    defaultPythonCommand(),
			WSLPythonCommand: "python{version}",
		},

		Docs: DocsConfig{
			SourceDir: "source",
		},

		Format: FormatConfig{
			LineLength: 110,
		},

		Build: DefaultBuildConfig(),

		Deploy: DeployConfig{
			Repository: "pypi",
			CleanDist:  true,
		},

		Readme: ReadmeConfig{
			Generate: true,
		},

		Execution: DefaultExecutionConfig(),

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},

		History: HistoryConfig{
			Enabled: true,
			Path:    ".pycicd/history.db",
		},
	}
}

// Load loads configuration from a YAML file over the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies PYCICD_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	var errs []error

	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	setBool("PYCICD_RUN_TESTS", &c.Test.RunTests)
	setBool("PYCICD_DEPLOY", &c.Pipeline.Deploy)
	setBool("PYCICD_GIT_PUSH", &c.Pipeline.GitPush)
	setBool("PYCICD_GIT_COMMIT", &c.Pipeline.GitCommit)
	setBool("PYCICD_BUILD_WEB", &c.Build.BuildWeb)

	if v := os.Getenv("PYCICD_VERBOSITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PYCICD_VERBOSITY: %w", err))
		} else {
			c.Test.Verbosity = n
		}
	}
	if v := os.Getenv("PYCICD_VIRTUALENVS"); v != "" {
		c.Test.Virtualenvs = splitList(v)
	}
	if v := os.Getenv("PYCICD_VERSION"); v != "" {
		c.Pipeline.Version = v
	}
	if v := os.Getenv("PYCICD_DO_ONLY"); v != "" {
		c.Pipeline.DoOnly = v
	}
	if v := os.Getenv("PYCICD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PYCICD_HISTORY_DB"); v != "" {
		c.History.Path = v
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetExecutionTimeout returns the per-command timeout. Zero means none.
func (c *Config) GetExecutionTimeout() time.Duration {
	if c.Execution.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Execution.Timeout)
	if err != nil {
		return 0
	}
	return d
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+([.\-+]?[0-9A-Za-z.]+)?$`)

// ValidVersionTarget reports whether v is an accepted pipeline.version value.
func ValidVersionTarget(v string) bool {
	switch v {
	case "", "increment", "major", "minor", "patch":
		return true
	}
	return versionPattern.MatchString(v)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Test.Validate(); err != nil {
		return err
	}

	if c.Pipeline.DoOnly != "" {
		valid := false
		for _, name := range StepNames {
			if c.Pipeline.DoOnly == name {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid do_only step: %s (valid: %v)", c.Pipeline.DoOnly, StepNames)
		}
	}

	if !ValidVersionTarget(c.Pipeline.Version) {
		return fmt.Errorf("invalid pipeline version %q: use increment, major, minor, patch or x.y.z", c.Pipeline.Version)
	}

	if c.Pipeline.GitCommit && strings.TrimSpace(c.Pipeline.CommitMessage) == "" {
		return &tactile.ConfigError{Field: "pipeline.commit_message", Header: "Commit message required."}
	}

	if c.Format.LineLength <= 0 {
		return fmt.Errorf("invalid format.line_length: %d", c.Format.LineLength)
	}

	if c.Execution.Timeout != "" {
		if _, err := time.ParseDuration(c.Execution.Timeout); err != nil {
			return fmt.Errorf("invalid execution.timeout: %w", err)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}
