package tactile

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"pycicd/internal/logging"
)

// ShellCommand builds a command that runs line through the platform shell:
// `sh -c` on Unix, `cmd /C` on Windows. Activation fragments such as
// `. venv/bin/activate && pytest` need a shell.
func ShellCommand(line, dir string) Command {
	if runtime.GOOS == "windows" {
		return Command{Binary: "cmd", Arguments: []string{"/C", line}, WorkingDirectory: dir}
	}
	return Command{Binary: "sh", Arguments: []string{"-c", line}, WorkingDirectory: dir}
}

// QuoteArg quotes s for the host shell used by ShellCommand.
func QuoteArg(s string) string {
	if runtime.GOOS == "windows" {
		return QuoteCmdArg(s)
	}
	return QuotePOSIX(s)
}

// QuoteIn quotes s for the shell behind tr. WSL lines always run in bash.
func QuoteIn(tr PathTranslator, s string) string {
	if tr != nil && tr.Name() == "wsl" {
		return QuotePOSIX(s)
	}
	return QuoteArg(s)
}

var posixEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", "$", `\$`)

// QuotePOSIX wraps s in double quotes for sh or bash.
func QuotePOSIX(s string) string {
	return `"` + posixEscaper.Replace(s) + `"`
}

// QuoteCmdArg wraps s in double quotes for cmd /C. Embedded quotes are
// doubled and a trailing run of backslashes is doubled so it cannot escape the
// closing quote. cmd still expands %VAR% inside quotes.
func QuoteCmdArg(s string) string {
	body := strings.TrimRight(s, `\`)
	trailing := len(s) - len(body)
	return `"` + strings.ReplaceAll(body, `"`, `""`) + strings.Repeat(`\`, 2*trailing) + `"`
}

// Run executes cmd and converts a non-zero exit into a *CommandError tagged
// with header. Infrastructure failures are wrapped with the header too.
func Run(ctx context.Context, ex Executor, cmd Command, header string) (*ExecutionResult, error) {
	result, err := ex.Execute(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s %w", header, err)
	}

	switch {
	case result.IsError():
		return result, &CommandError{Header: header, Command: cmd.CommandString(), ExitCode: -1, Output: result.Error}
	case result.Killed:
		if ctx.Err() != nil {
			return result, fmt.Errorf("%s %w", header, ctx.Err())
		}
		return result, &CommandError{Header: header, Command: cmd.CommandString(), ExitCode: -1, Output: result.KillReason}
	case result.IsNonZeroExit():
		logging.TactileDebug("%s exit=%d: %s", header, result.ExitCode, cmd.CommandString())
		return result, &CommandError{Header: header, Command: cmd.CommandString(), ExitCode: result.ExitCode, Output: result.Output()}
	}
	return result, nil
}
