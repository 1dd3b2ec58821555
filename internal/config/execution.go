package config

import (
	"pycicd/internal/tactile"
)

// ExecutionConfig configures the tactile executor.
type ExecutionConfig struct {
	// Timeout applies to every subprocess. Empty means none: a hung tool
	// hangs the pipeline.
	Timeout string `yaml:"timeout"`

	// InheritEnvironment passes the whole parent environment to tools.
	// When false only AllowedEnvVars are passed.
	InheritEnvironment bool     `yaml:"inherit_environment"`
	AllowedEnvVars     []string `yaml:"allowed_env_vars"`

	// ExtraEnvironment is added to every command (KEY=VALUE).
	ExtraEnvironment []string `yaml:"extra_environment"`

	// MaxOutputBytes caps captured output per command.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`
}

// DefaultExecutionConfig returns sensible defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		InheritEnvironment: true,
		AllowedEnvVars:     []string{"PATH", "HOME", "USER", "LANG", "VIRTUAL_ENV", "SYSTEMROOT", "TEMP", "TMP"},
		ExtraEnvironment:   []string{"PYTHONIOENCODING=utf-8"},
		MaxOutputBytes:     10 * 1024 * 1024,
	}
}

// ExecutorConfig converts the execution section into executor settings
// rooted at workDir.
func (c *Config) ExecutorConfig(workDir string) tactile.ExecutorConfig {
	ec := tactile.DefaultExecutorConfig()
	ec.DefaultWorkingDir = workDir
	ec.DefaultTimeout = c.GetExecutionTimeout()
	ec.InheritEnvironment = c.Execution.InheritEnvironment
	if c.Execution.AllowedEnvVars != nil {
		ec.AllowedEnvironment = c.Execution.AllowedEnvVars
	}
	ec.ExtraEnvironment = c.Execution.ExtraEnvironment
	if c.Execution.MaxOutputBytes > 0 {
		ec.MaxOutputBytes = c.Execution.MaxOutputBytes
	}
	return ec
}
