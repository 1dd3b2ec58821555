//go:build !windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// getProcessResourceUsage extracts CPU usage on Unix systems.
func getProcessResourceUsage(cmd *exec.Cmd) *ResourceUsage {
	if cmd.ProcessState == nil {
		return nil
	}

	rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return nil
	}

	return &ResourceUsage{
		UserTimeMs:   rusage.Utime.Sec*1000 + int64(rusage.Utime.Usec/1000),
		SystemTimeMs: rusage.Stime.Sec*1000 + int64(rusage.Stime.Usec/1000),
	}
}

// setupProcessGroup configures the command to run in its own process group.
// pytest spawns workers; cancelling must reach them too.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup kills the process and all its children on Unix.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil && pgid > 0 {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
