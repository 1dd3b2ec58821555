//go:build windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
)

// getProcessResourceUsage extracts CPU usage on Windows.
func getProcessResourceUsage(cmd *exec.Cmd) *ResourceUsage {
	if cmd.ProcessState == nil {
		return nil
	}
	return &ResourceUsage{
		UserTimeMs:   cmd.ProcessState.UserTime().Milliseconds(),
		SystemTimeMs: cmd.ProcessState.SystemTime().Milliseconds(),
	}
}

// setupProcessGroup is a no-op on Windows; taskkill /T walks the tree instead.
func setupProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the process tree on Windows.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	if err := kill.Run(); err == nil {
		return nil
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
