package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("booleans", func(t *testing.T) {
		t.Setenv("PYCICD_RUN_TESTS", "false")
		t.Setenv("PYCICD_DEPLOY", "true")
		t.Setenv("PYCICD_GIT_PUSH", "0")
		t.Setenv("PYCICD_BUILD_WEB", "1")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.False(t, cfg.Test.RunTests)
		assert.True(t, cfg.Pipeline.Deploy)
		assert.False(t, cfg.Pipeline.GitPush)
		assert.True(t, cfg.Build.BuildWeb)
	})

	t.Run("empty values are ignored", func(t *testing.T) {
		t.Setenv("PYCICD_RUN_TESTS", "")
		t.Setenv("PYCICD_VIRTUALENVS", "")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.True(t, cfg.Test.RunTests)
		assert.Equal(t, DefaultTestConfig().Virtualenvs, cfg.Test.Virtualenvs)
	})

	t.Run("virtualenv list", func(t *testing.T) {
		t.Setenv("PYCICD_VIRTUALENVS", " venv , .venv-3.12 ,")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.Equal(t, []string{"venv", ".venv-3.12"}, cfg.Test.Virtualenvs)
	})

	t.Run("strings", func(t *testing.T) {
		t.Setenv("PYCICD_VERSION", "2.0.0")
		t.Setenv("PYCICD_DO_ONLY", "docs")
		t.Setenv("PYCICD_LOG_LEVEL", "debug")
		t.Setenv("PYCICD_HISTORY_DB", "/tmp/h.db")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())

		assert.Equal(t, "2.0.0", cfg.Pipeline.Version)
		assert.Equal(t, "docs", cfg.Pipeline.DoOnly)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "/tmp/h.db", cfg.History.Path)
	})

	t.Run("malformed values are reported", func(t *testing.T) {
		t.Setenv("PYCICD_VERBOSITY", "loud")
		t.Setenv("PYCICD_DEPLOY", "sometimes")

		cfg := DefaultConfig()
		err := cfg.applyEnvOverrides()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PYCICD_VERBOSITY")
		assert.Contains(t, err.Error(), "PYCICD_DEPLOY")
	})

	t.Run("load applies overrides after the file", func(t *testing.T) {
		t.Setenv("PYCICD_VERBOSITY", "2")

		cfg, err := Load(t.TempDir() + "/missing.yaml")
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Test.Verbosity)
	})
}
