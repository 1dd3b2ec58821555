package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"pycicd/internal/logging"
)

// DirectExecutor executes commands directly on the host using os/exec.
type DirectExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.TactileDebug("Creating DirectExecutor: timeout=%s, maxOutput=%d bytes, inheritEnv=%v",
		config.DefaultTimeout, config.MaxOutputBytes, config.InheritEnvironment)
	return &DirectExecutor{
		config:        config,
		auditCallback: config.AuditCallback,
	}
}

// SetAuditCallback sets the callback for audit events.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *DirectExecutor) emitAudit(eventType AuditEventType, cmd Command, result *ExecutionResult) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(AuditEvent{
			Type:         eventType,
			Timestamp:    time.Now(),
			Command:      cmd,
			Result:       result,
			RequestID:    cmd.RequestID,
			ExecutorName: "direct",
		})
	}
}

// Capabilities returns what this executor supports.
func (e *DirectExecutor) Capabilities() ExecutorCapabilities {
	return ExecutorCapabilities{
		Name:              "direct",
		Platform:          runtime.GOOS,
		SupportsStdin:     true,
		SupportsStreaming: e.config.StreamStdout != nil,
		DefaultTimeout:    e.config.DefaultTimeout,
	}
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	return nil
}

// Execute runs a command directly on the host.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	if err := e.Validate(cmd); err != nil {
		logging.TactileWarn("Command validation failed: %s %v - %v", cmd.Binary, cmd.Arguments, err)
		return nil, err
	}

	cmd = e.config.Merge(cmd)
	logging.TactileDebug("Executing: %s (dir=%s, timeout=%dms)",
		cmd.CommandString(), cmd.WorkingDirectory, cmd.Limits.TimeoutMs)

	result := &ExecutionResult{
		ExitCode: -1,
		Command:  &cmd,
	}
	e.emitAudit(AuditEventStart, cmd, nil)

	execCtx := ctx
	var timeout time.Duration
	if cmd.Limits.TimeoutMs > 0 {
		timeout = time.Duration(cmd.Limits.TimeoutMs) * time.Millisecond
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }

	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf, combinedBuf bytes.Buffer
	combined := &syncWriter{w: &combinedBuf}
	stdoutLimited := &limitedWriter{w: io.MultiWriter(&stdoutBuf, combined), max: cmd.Limits.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: io.MultiWriter(&stderrBuf, combined), max: cmd.Limits.MaxOutputBytes}

	var stdout, stderr io.Writer = stdoutLimited, stderrLimited
	if cmd.Stream {
		if e.config.StreamStdout != nil {
			stdout = io.MultiWriter(stdoutLimited, e.config.StreamStdout)
		}
		if e.config.StreamStderr != nil {
			stderr = io.MultiWriter(stderrLimited, e.config.StreamStderr)
		}
	}
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Combined = combinedBuf.String()

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		logging.TactileWarn("Command output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			result.Killed = true
			result.KillReason = fmt.Sprintf("timeout after %s", timeout)
			result.Success = true
			logging.TactileWarn("Command killed (timeout): %s after %s", cmd.Binary, timeout)
			e.emitAudit(AuditEventKilled, cmd, result)
		case errors.Is(execCtx.Err(), context.Canceled):
			result.Killed = true
			result.KillReason = "context canceled"
			result.Success = true
			logging.TactileDebug("Command canceled: %s", cmd.Binary)
			e.emitAudit(AuditEventKilled, cmd, result)
		case errors.As(err, &exitErr):
			result.Success = true
			result.ExitCode = exitErr.ExitCode()
			logging.TactileDebug("Command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
		default:
			result.Success = false
			result.Error = err.Error()
			logging.TactileError("Command failed: %s - %v", cmd.Binary, err)
			e.emitAudit(AuditEventError, cmd, result)
			return result, nil
		}
	} else {
		result.Success = true
		result.ExitCode = 0
	}

	result.ResourceUsage = getProcessResourceUsage(execCmd)
	e.emitAudit(AuditEventComplete, cmd, result)

	logging.Tactile("Command completed: %s -> exit=%d, duration=%s, output=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Combined))

	return result, nil
}

// buildEnvironment creates the environment variable list.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	var env []string
	if e.config.InheritEnvironment {
		env = os.Environ()
	} else {
		for _, key := range e.config.AllowedEnvironment {
			if val := os.Getenv(key); val != "" {
				env = append(env, key+"="+val)
			}
		}
	}

	env = MergeEnv(env, e.config.ExtraEnvironment...)
	return MergeEnv(env, cmdEnv...)
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.max <= 0 {
		written, err := lw.w.Write(p)
		lw.written += int64(written)
		return written, err
	}

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}

// syncWriter serializes writes from the stdout and stderr copiers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (sw *syncWriter) Write(p []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(p)
}
