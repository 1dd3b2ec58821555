package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pycicd/internal/tactile"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Test.RunTests {
		t.Errorf("expected RunTests=true")
	}
	if cfg.Test.Verbosity != 1 {
		t.Errorf("expected Verbosity=1, got %d", cfg.Test.Verbosity)
	}
	assert.Equal(t, []string{"3.7", "3.10", "wsl-3.7", "wsl-3.10"}, cfg.Test.PrepareTestVenvs)
	assert.Equal(t, []string{"tests/venv/3.7", "tests/venv/3.10"}, cfg.Test.Virtualenvs)
	assert.Equal(t, []string{"tests/venv/wsl-3.7", "tests/venv/wsl-3.10"}, cfg.Test.WSLVirtualenvs)
	assert.Equal(t, Files("requirements.txt"), cfg.Test.SyncTestRequirements)
	assert.Equal(t, []string{"pytest", "pytest-cov"}, cfg.Test.SelfPackages)
	assert.True(t, cfg.Test.TestCoverage)
	assert.True(t, cfg.Test.StopOnFirstError)
	assert.False(t, cfg.Pipeline.Deploy)
	assert.Equal(t, "increment", cfg.Pipeline.Version)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("PYCICD_VERBOSITY", "")
	t.Setenv("PYCICD_DEPLOY", "")

	path := filepath.Join(t.TempDir(), "nested", "cicd.yaml")

	cfg := DefaultConfig()
	cfg.Test.Verbosity = 2
	cfg.Test.SyncTestRequirements = Infer()
	cfg.Pipeline.AllowedBranches = nil
	cfg.Pipeline.Deploy = true

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Test.Verbosity)
	assert.Equal(t, Infer(), loaded.Test.SyncTestRequirements)
	assert.True(t, loaded.Pipeline.Deploy)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Test, cfg.Test)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cicd.yaml")
	data := []byte(`
test:
  virtualenvs: [venv]
  wsl_virtualenvs: []
  verbosity: 0
pipeline:
  allowed_branches: null
  git_push: false
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"venv"}, cfg.Test.Virtualenvs)
	assert.Empty(t, cfg.Test.WSLVirtualenvs)
	assert.Equal(t, 0, cfg.Test.Verbosity)
	assert.Nil(t, cfg.Pipeline.AllowedBranches)
	assert.False(t, cfg.Pipeline.GitPush)
	// Untouched fields keep defaults.
	assert.True(t, cfg.Test.TestCoverage)
	assert.Equal(t, 110, cfg.Format.LineLength)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cicd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("test: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRequirementSources_YAML(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want RequirementSources
	}{
		{"null", "sync: null", RequirementSources{}},
		{"missing", "other: 1", RequirementSources{}},
		{"infer", "sync: infer", Infer()},
		{"single path", "sync: requirements.txt", Files("requirements.txt")},
		{"list", "sync: [a.txt, b.txt]", Files("a.txt", "b.txt")},
		{"empty list", "sync: []", RequirementSources{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc struct {
				Sync RequirementSources `yaml:"sync"`
			}
			require.NoError(t, yaml.Unmarshal([]byte(tt.doc), &doc))
			assert.Equal(t, tt.want, doc.Sync)
		})
	}

	t.Run("mapping is rejected", func(t *testing.T) {
		var doc struct {
			Sync RequirementSources `yaml:"sync"`
		}
		assert.Error(t, yaml.Unmarshal([]byte("sync: {a: b}"), &doc))
	})
}

func TestRequirementSources_Helpers(t *testing.T) {
	assert.False(t, RequirementSources{}.Enabled())
	assert.True(t, Infer().Enabled())
	assert.Equal(t, "none", RequirementSources{}.String())
	assert.Equal(t, "infer", Infer().String())
	assert.Equal(t, RequirementSources{}, Files())
}

func TestConfig_Validate(t *testing.T) {
	t.Run("verbosity out of range", func(t *testing.T) {
		for _, v := range []int{-1, 3, 10} {
			cfg := DefaultConfig()
			cfg.Test.Verbosity = v
			err := cfg.Validate()
			assert.True(t, errors.Is(err, tactile.ErrInvalidVerbosity), "verbosity %d", v)
		}
	})

	t.Run("verbosity in range", func(t *testing.T) {
		for _, v := range []int{0, 1, 2} {
			cfg := DefaultConfig()
			cfg.Test.Verbosity = v
			assert.NoError(t, cfg.Validate())
		}
	})

	t.Run("unknown do_only", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pipeline.DoOnly = "lint"
		assert.Error(t, cfg.Validate())
		cfg.Pipeline.DoOnly = "test"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("version target", func(t *testing.T) {
		for _, v := range []string{"", "increment", "minor", "1.2.3", "1.2.3rc1", "0.0.1-alpha.1"} {
			assert.True(t, ValidVersionTarget(v), v)
		}
		for _, v := range []string{"1.2", "latest", "v1.2.3"} {
			assert.False(t, ValidVersionTarget(v), v)
		}
	})

	t.Run("commit needs a message", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pipeline.CommitMessage = "  "
		var cfgErr *tactile.ConfigError
		assert.True(t, errors.As(cfg.Validate(), &cfgErr))
	})

	t.Run("bad timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Execution.Timeout = "soon"
		assert.Error(t, cfg.Validate())
	})
}

func TestConfig_ExecutorConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Zero(t, cfg.GetExecutionTimeout())

	cfg.Execution.Timeout = "90s"
	ec := cfg.ExecutorConfig("/proj")
	assert.Equal(t, "/proj", ec.DefaultWorkingDir)
	assert.Equal(t, 90*time.Second, ec.DefaultTimeout)
	assert.True(t, ec.InheritEnvironment)
	assert.Contains(t, ec.ExtraEnvironment, "PYTHONIOENCODING=utf-8")
}

func TestLoggingConfig_Options(t *testing.T) {
	c := LoggingConfig{Level: "warn", Format: "json", Categories: map[string]bool{"git": false}}

	opts := c.Options(false)
	assert.Equal(t, "warn", opts.Level)
	assert.Equal(t, "json", opts.Format)
	assert.Equal(t, map[string]bool{"git": false}, opts.Categories)

	assert.Equal(t, "debug", c.Options(true).Level)
}
