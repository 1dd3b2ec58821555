package tactile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBranchNotAllowed is returned when the current branch is not in the
	// configured allow-list.
	ErrBranchNotAllowed = errors.New("current branch is not allowed")

	// ErrInvalidVerbosity is returned for a test verbosity outside {0,1,2}.
	ErrInvalidVerbosity = errors.New("verbosity must be 0, 1 or 2")
)

// ConfigError reports a configured value that cannot be used, typically a
// declared path that does not exist.
type ConfigError struct {
	Field  string
	Path   string
	Header string
}

func (e *ConfigError) Error() string {
	header := e.Header
	if header == "" {
		header = "Configuration error."
	}
	if e.Path == "" {
		return fmt.Sprintf("%s Invalid value for %s.", header, e.Field)
	}
	return fmt.Sprintf("%s Path %s configured in %s not found.", header, e.Path, e.Field)
}

// EnvironmentMissingError reports a declared virtualenv that was never provisioned.
type EnvironmentMissingError struct {
	Path string
}

func (e *EnvironmentMissingError) Error() string {
	return fmt.Sprintf("Defined virtualenv on %s not found. Use 'prepare_test_venvs' or install venvs manually.", e.Path)
}

// maxErrorOutput bounds how much tool output is embedded in a CommandError message.
const maxErrorOutput = 4000

// CommandError reports a wrapped tool that exited non-zero. Header names the
// stage that failed, e.g. "Tests failed.".
type CommandError struct {
	Header   string
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Header)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&sb, " Command `%s` exited with code %d.", e.Command, e.ExitCode)
	} else {
		fmt.Fprintf(&sb, " Command `%s` did not complete.", e.Command)
	}

	output := strings.TrimSpace(e.Output)
	if output != "" {
		if len(output) > maxErrorOutput {
			output = "..." + output[len(output)-maxErrorOutput:]
		}
		sb.WriteString("\n\n")
		sb.WriteString(output)
	}
	return sb.String()
}
