// Package tactile is the execution layer of pycicd. Every wrapped tool
// (pytest, pip, black, sphinx-apidoc, git, pyinstaller, twine) is run through
// an Executor so that callers get one structured result type and tests can
// swap in a recording fake.
//
// Design Principles:
//   - Minimal logic: deciding what to run happens in the callers
//   - Structured output: exit code, captured output, timing
//   - Cross-platform: sh on Unix, cmd on Windows, WSL routing via PathTranslator
//   - Blocking: no default timeout, a hung tool hangs the caller
package tactile

import (
	"io"
	"time"
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the executable to run (e.g., "git", "sh", "wsl").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the executor's default working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (in KEY=VALUE format).
	// These override the inherited environment.
	Environment []string `json:"environment,omitempty"`

	// Stdin provides input to the command's standard input.
	Stdin string `json:"stdin,omitempty"`

	// Limits specifies resource constraints for execution.
	Limits *ResourceLimits `json:"limits,omitempty"`

	// Stream copies output to the executor's stream writers while it is
	// being captured. Used for verbose runs.
	Stream bool `json:"stream,omitempty"`

	// RequestID links this execution to a pipeline run (for audit).
	RequestID string `json:"request_id,omitempty"`

	// Tags are arbitrary key-value pairs for categorization and audit.
	Tags map[string]string `json:"tags,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	result := c.Binary
	for _, arg := range c.Arguments {
		result += " " + arg
	}
	return result
}

// ResourceLimits defines constraints on command execution.
type ResourceLimits struct {
	// TimeoutMs is the maximum execution time in milliseconds.
	// Zero means no timeout.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`

	// MaxOutputBytes limits captured stdout+stderr size.
	// Zero means use the executor's default.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`
}

// ExecutionResult is the comprehensive output of command execution.
type ExecutionResult struct {
	// Success indicates whether the command completed without infrastructure error.
	// Note: A command that runs but returns non-zero exit code has Success=true.
	Success bool `json:"success"`

	// ExitCode is the command's exit code (-1 if not available).
	ExitCode int `json:"exit_code"`

	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Combined string `json:"combined"`

	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	// Killed indicates the command was forcibly terminated.
	Killed     bool   `json:"killed"`
	KillReason string `json:"kill_reason,omitempty"`

	// Truncated indicates output was truncated due to size limits.
	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	ResourceUsage *ResourceUsage `json:"resource_usage,omitempty"`

	// Error contains any infrastructure-level error message.
	Error string `json:"error,omitempty"`

	// Command is a copy of the command that was executed (for audit).
	Command *Command `json:"command,omitempty"`
}

// IsError returns true if the execution failed (infrastructure error).
func (r *ExecutionResult) IsError() bool {
	return !r.Success || r.Error != ""
}

// IsNonZeroExit returns true if the command ran but returned non-zero.
func (r *ExecutionResult) IsNonZeroExit() bool {
	return r.Success && r.ExitCode != 0
}

// Output returns Combined if available, otherwise Stdout+Stderr.
func (r *ExecutionResult) Output() string {
	if r.Combined != "" {
		return r.Combined
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ResourceUsage contains CPU time consumed by the process.
type ResourceUsage struct {
	UserTimeMs   int64 `json:"user_time_ms"`
	SystemTimeMs int64 `json:"system_time_ms"`
}

// ExecutorCapabilities describes what an executor can do.
type ExecutorCapabilities struct {
	Name              string        `json:"name"`
	Platform          string        `json:"platform"`
	SupportsStdin     bool          `json:"supports_stdin"`
	SupportsStreaming bool          `json:"supports_streaming"`
	DefaultTimeout    time.Duration `json:"default_timeout"`
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent represents an execution event.
type AuditEvent struct {
	Type         AuditEventType   `json:"type"`
	Timestamp    time.Time        `json:"timestamp"`
	Command      Command          `json:"command"`
	Result       *ExecutionResult `json:"result,omitempty"`
	RequestID    string           `json:"request_id,omitempty"`
	ExecutorName string           `json:"executor_name"`
}

// ExecutorConfig is the configuration for creating executors.
type ExecutorConfig struct {
	// DefaultWorkingDir is used when Command.WorkingDirectory is empty.
	DefaultWorkingDir string `json:"default_working_dir"`

	// DefaultTimeout is used when no timeout is specified. Zero disables it.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// InheritEnvironment passes the whole parent environment through.
	// When false only AllowedEnvironment is passed.
	InheritEnvironment bool `json:"inherit_environment"`

	// AllowedEnvironment lists environment variables to pass through.
	AllowedEnvironment []string `json:"allowed_environment"`

	// ExtraEnvironment is added to every command (KEY=VALUE).
	ExtraEnvironment []string `json:"extra_environment,omitempty"`

	// MaxOutputBytes caps output capture (default 10MB).
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// StreamStdout and StreamStderr receive output of streamed commands.
	StreamStdout io.Writer `json:"-"`
	StreamStderr io.Writer `json:"-"`

	// AuditCallback is called for each execution event (optional).
	AuditCallback func(AuditEvent) `json:"-"`
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir:  ".",
		InheritEnvironment: true,
		AllowedEnvironment: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "VIRTUAL_ENV", "SYSTEMROOT", "TEMP", "TMP"},
		ExtraEnvironment:   []string{"PYTHONIOENCODING=utf-8"},
		MaxOutputBytes:     10 * 1024 * 1024, // 10MB
	}
}

// Merge combines this config with command-specific settings.
// Command settings override config defaults.
func (c ExecutorConfig) Merge(cmd Command) Command {
	result := cmd

	if result.WorkingDirectory == "" {
		result.WorkingDirectory = c.DefaultWorkingDir
	}

	if result.Limits == nil {
		result.Limits = &ResourceLimits{}
	} else {
		limitsCopy := *result.Limits
		result.Limits = &limitsCopy
	}
	if result.Limits.TimeoutMs == 0 && c.DefaultTimeout > 0 {
		result.Limits.TimeoutMs = int64(c.DefaultTimeout / time.Millisecond)
	}
	if result.Limits.MaxOutputBytes == 0 {
		result.Limits.MaxOutputBytes = c.MaxOutputBytes
	}

	return result
}
