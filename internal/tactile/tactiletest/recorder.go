// Package tactiletest provides a recording tactile.Executor for tests that
// must not spawn real Python tooling.
package tactiletest

import (
	"context"
	"strings"
	"sync"
	"time"

	"pycicd/internal/tactile"
)

// Rule decides the outcome of commands whose line contains Match.
type Rule struct {
	Match    string
	ExitCode int
	Output   string
}

// Recorder records every command and answers with exit 0 unless a Rule matches.
type Recorder struct {
	mu       sync.Mutex
	commands []tactile.Command
	rules    []Rule
	audit    func(tactile.AuditEvent)

	// OnExecute runs before the result is produced (e.g. to create files the
	// real tool would create).
	OnExecute func(cmd tactile.Command)
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWhen makes commands containing match exit with code.
func (r *Recorder) FailWhen(match string, code int) *Recorder {
	return r.Respond(Rule{Match: match, ExitCode: code, Output: "simulated failure"})
}

// Respond adds a rule. The first matching rule wins.
func (r *Recorder) Respond(rule Rule) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
	return r
}

func (r *Recorder) Execute(ctx context.Context, cmd tactile.Command) (*tactile.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	rules := append([]Rule(nil), r.rules...)
	hook := r.OnExecute
	audit := r.audit
	r.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}

	line := Line(cmd)
	result := &tactile.ExecutionResult{Success: true, Command: &cmd}
	for _, rule := range rules {
		if strings.Contains(line, rule.Match) {
			result.ExitCode = rule.ExitCode
			result.Stdout = rule.Output
			result.Combined = rule.Output
			break
		}
	}
	if audit != nil {
		audit(tactile.AuditEvent{
			Type:         tactile.AuditEventComplete,
			Timestamp:    time.Now(),
			Command:      cmd,
			Result:       result,
			RequestID:    cmd.RequestID,
			ExecutorName: "recorder",
		})
	}
	return result, nil
}

// SetAuditCallback emits a complete event for every command.
func (r *Recorder) SetAuditCallback(callback func(tactile.AuditEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = callback
}

func (r *Recorder) Capabilities() tactile.ExecutorCapabilities {
	return tactile.ExecutorCapabilities{Name: "recorder", Platform: "test"}
}

func (r *Recorder) Validate(cmd tactile.Command) error { return nil }

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []tactile.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tactile.Command(nil), r.commands...)
}

// Lines returns the recorded command lines.
func (r *Recorder) Lines() []string {
	cmds := r.Commands()
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = Line(c)
	}
	return lines
}

// Count returns how many recorded lines contain substr.
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

// Line extracts the shell line of a command built by tactile.ShellCommand or
// routed through WSL; other commands are rendered with CommandString.
func Line(cmd tactile.Command) string {
	args := cmd.Arguments
	switch cmd.Binary {
	case "sh", "bash":
		if len(args) == 2 && args[0] == "-c" {
			return args[1]
		}
	case "cmd":
		if len(args) == 2 && strings.EqualFold(args[0], "/C") {
			return args[1]
		}
	case "wsl":
		if n := len(args); n >= 3 && args[n-2] == "-c" {
			return args[n-1]
		}
	}
	return cmd.CommandString()
}
