package tactile

import (
	"regexp"
	"strings"
)

// PathTranslator adapts paths and commands to the operating system personality
// a virtualenv lives in. Environments carry one instead of a WSL flag.
type PathTranslator interface {
	// Name identifies the translator ("local", "wsl").
	Name() string

	// Translate converts a host path to the path seen by the target personality.
	Translate(path string) string

	// Route rewrites a command so it runs inside the target personality.
	Route(cmd Command) Command
}

// LocalTranslator is the identity translator.
type LocalTranslator struct{}

func (LocalTranslator) Name() string { return "local" }
func (LocalTranslator) Translate(path string) string { return path }
func (LocalTranslator) Route(cmd Command) Command { return cmd }

// WSLTranslator targets the Windows Subsystem for Linux.
type WSLTranslator struct {
	// Distribution selects a WSL distribution; empty uses the default one.
	Distribution string
}

var drivePath = regexp.MustCompile(`^([A-Za-z]):[\\/]?(.*)$`)

func (WSLTranslator) Name() string { return "wsl" }

// Translate converts C:\Users\x into /mnt/c/Users/x. Relative paths only get
// their separators converted.
func (WSLTranslator) Translate(path string) string {
	if m := drivePath.FindStringSubmatch(path); m != nil {
		rest := strings.ReplaceAll(m[2], `\`, "/")
		translated := "/mnt/" + strings.ToLower(m[1])
		if rest != "" {
			translated += "/" + rest
		}
		return translated
	}
	return strings.ReplaceAll(path, `\`, "/")
}

// Route wraps the command in `wsl -- bash -c <line>`. A command built by
// ShellCommand keeps its line as is.
func (w WSLTranslator) Route(cmd Command) Command {
	line := shellLine(cmd)

	args := make([]string, 0, 6)
	if w.Distribution != "" {
		args = append(args, "-d", w.Distribution)
	}
	args = append(args, "--", "bash", "-c", line)

	routed := cmd
	routed.Binary = "wsl"
	routed.Arguments = args
	if routed.Tags == nil {
		routed.Tags = map[string]string{}
	} else {
		tags := make(map[string]string, len(cmd.Tags)+1)
		for k, v := range cmd.Tags {
			tags[k] = v
		}
		routed.Tags = tags
	}
	routed.Tags["personality"] = "wsl"
	return routed
}

// shellLine recovers the command line of a shell-wrapped command, or joins
// binary and arguments.
func shellLine(cmd Command) string {
	switch {
	case (cmd.Binary == "sh" || cmd.Binary == "bash") && len(cmd.Arguments) == 2 && cmd.Arguments[0] == "-c":
		return cmd.Arguments[1]
	case cmd.Binary == "cmd" && len(cmd.Arguments) == 2 && strings.EqualFold(cmd.Arguments[0], "/C"):
		return cmd.Arguments[1]
	}
	return cmd.CommandString()
}
