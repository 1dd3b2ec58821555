// Package venv manages Python virtual environments, local or inside WSL.
// A Venv is identified only by its path; the PathTranslator it carries
// decides how paths and commands reach the interpreter.
package venv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"pycicd/internal/config"
	"pycicd/internal/logging"
	"pycicd/internal/packages"
	"pycicd/internal/tactile"
)

// WSLPrefix marks a prepared version that lives inside WSL, e.g. "wsl-3.10".
const WSLPrefix = "wsl-"

// Venv is one isolated interpreter installation.
type Venv struct {
	// Path is the host path of the environment.
	Path string

	translator tactile.PathTranslator
	executor   tactile.Executor
	goos       string
}

// Option configures a Venv.
type Option func(*Venv)

// WithTranslator sets the path translator (default: local).
func WithTranslator(tr tactile.PathTranslator) Option {
	return func(v *Venv) { v.translator = tr }
}

// WithWSL targets a WSL distribution; empty uses the default one.
func WithWSL(distribution string) Option {
	return WithTranslator(tactile.WSLTranslator{Distribution: distribution})
}

// withGOOS overrides the host OS in tests.
func withGOOS(goos string) Option {
	return func(v *Venv) { v.goos = goos }
}

// New creates a descriptor for the environment at path. Nothing is touched on disk.
func New(path string, ex tactile.Executor, opts ...Option) *Venv {
	v := &Venv{
		Path:       path,
		translator: tactile.LocalTranslator{},
		executor:   ex,
		goos:       runtime.GOOS,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Translator returns the environment's path translator.
func (v *Venv) Translator() tactile.PathTranslator {
	return v.translator
}

// IsWSL reports whether the environment lives inside WSL.
func (v *Venv) IsWSL() bool {
	return v.translator.Name() == "wsl"
}

// windowsLayout reports whether the venv uses Scripts\ instead of bin/.
func (v *Venv) windowsLayout() bool {
	return v.goos == "windows" && !v.IsWSL()
}

func (v *Venv) interpreterCandidates() []string {
	if v.windowsLayout() {
		return []string{
			filepath.Join(v.Path, "Scripts", "python.exe"),
			filepath.Join(v.Path, "python.exe"),
		}
	}
	return []string{
		filepath.Join(v.Path, "bin", "python"),
		filepath.Join(v.Path, "bin", "python3"),
	}
}

// Installed reports whether the interpreter exists at the expected path.
// WSL interpreters are symlinks Windows cannot follow, so only the link is checked.
func (v *Venv) Installed() bool {
	for _, candidate := range v.interpreterCandidates() {
		var err error
		if v.IsWSL() {
			_, err = os.Lstat(candidate)
		} else {
			_, err = os.Stat(candidate)
		}
		if err == nil {
			return true
		}
	}
	return false
}

// hasActivateScript reports whether the environment is a real venv. The
// fallback environment can be a bare interpreter prefix without one.
func (v *Venv) hasActivateScript() bool {
	script := filepath.Join(v.Path, "bin", "activate")
	if v.windowsLayout() {
		script = filepath.Join(v.Path, "Scripts", "activate.bat")
	}
	_, err := os.Lstat(script)
	return err == nil
}

// ActivationCommand is the shell fragment that makes later commands in the
// same line run inside this environment.
func (v *Venv) ActivationCommand() string {
	path := v.translator.Translate(v.Path)

	if v.windowsLayout() {
		if v.hasActivateScript() {
			return v.quote(filepath.Join(path, "Scripts", "activate.bat"))
		}
		return fmt.Sprintf(`set "PATH=%s;%s;%%PATH%%"`, path, filepath.Join(path, "Scripts"))
	}

	if v.IsWSL() || v.hasActivateScript() {
		return ". " + v.quote(path+"/bin/activate")
	}
	return fmt.Sprintf(`export PATH=%s:"$PATH"`, v.quote(path+"/bin"))
}

// quote quotes s for the shell that runs this environment's lines.
func (v *Venv) quote(s string) string {
	if v.windowsLayout() {
		return tactile.QuoteCmdArg(s)
	}
	return tactile.QuotePOSIX(s)
}

// Command builds `<activation> && line` to run in dir, routed through the
// environment's personality.
func (v *Venv) Command(line, dir string) tactile.Command {
	full := v.ActivationCommand() + " && " + line
	return v.translator.Route(tactile.ShellCommand(full, dir))
}

// Run runs line inside the environment. A non-zero exit becomes a
// *tactile.CommandError tagged with header.
func (v *Venv) Run(ctx context.Context, line, dir, header string, stream bool) (*tactile.ExecutionResult, error) {
	cmd := v.Command(line, dir)
	cmd.Stream = stream
	return tactile.Run(ctx, v.executor, cmd, header)
}

// Create makes the environment with `<python> -m venv <path>`. pythonCommand
// is an interpreter command such as "python3.10" or "py -3.10".
func (v *Venv) Create(ctx context.Context, pythonCommand string) error {
	if err := os.MkdirAll(filepath.Dir(v.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create venv parent: %w", err)
	}

	line := fmt.Sprintf("%s -m venv %s", pythonCommand, v.quote(v.translator.Translate(v.Path)))
	cmd := v.translator.Route(tactile.ShellCommand(line, filepath.Dir(v.Path)))

	logging.Venv("Creating %s venv at %s with %s", v.translator.Name(), v.Path, pythonCommand)
	if _, err := tactile.Run(ctx, v.executor, cmd, "Virtualenv creation failed."); err != nil {
		return err
	}

	// Upgrade pip; old bundled pips fail on modern wheels.
	_, err := v.Run(ctx, "python -m pip install --upgrade pip", filepath.Dir(v.Path), "Virtualenv creation failed.", false)
	return err
}

// Install installs package specs into the environment.
func (v *Venv) Install(ctx context.Context, specs ...string) error {
	if len(specs) == 0 {
		return nil
	}
	logging.Venv("Installing %s into %s", strings.Join(specs, ", "), v.Path)
	_, err := v.Run(ctx, packages.InstallCommand(nil, specs, false, v.quote), v.Path, "Package installation failed.", false)
	return err
}

// SyncRequirements installs the union of the requirement files selected by
// sources (resolved against folder) plus extra packages, in one pip call.
// When "infer" finds no files, pyproject.toml dependencies in folder are used.
func (v *Venv) SyncRequirements(ctx context.Context, sources config.RequirementSources, folder string, extra []string) error {
	files, err := packages.ResolveRequirementFiles(sources, folder)
	if err != nil {
		return err
	}

	specs := append([]string(nil), extra...)
	if sources.Mode == config.SourcesInfer && len(files) == 0 {
		pp, err := packages.ReadPyProject(folder)
		if err != nil {
			return err
		}
		if pp != nil {
			specs = append(pp.Project.Dependencies, specs...)
		}
	}

	translated := make([]string, len(files))
	count := 0
	for i, f := range files {
		translated[i] = v.translator.Translate(f)
		if reqs, err := packages.GetRequirements(f); err == nil {
			count += len(reqs)
		}
	}

	logging.Venv("Syncing %d requirements from %d files (+%d packages) into %s", count, len(files), len(specs), v.Path)
	_, err = v.Run(ctx, packages.InstallCommand(translated, specs, true, v.quote), folder, "Requirements sync failed.", false)
	return err
}

// PythonCommand expands a "{version}" template.
func PythonCommand(template, version string) string {
	if !strings.Contains(template, "{version}") {
		return template
	}
	return strings.ReplaceAll(template, "{version}", version)
}

// Prepare creates base/<version> for every version not yet installed.
// "wsl-3.10" creates a WSL environment with Python 3.10.
func Prepare(ctx context.Context, ex tactile.Executor, base string, versions []string, cfg config.VenvConfig) error {
	for _, name := range versions {
		version := strings.TrimPrefix(name, WSLPrefix)
		path := filepath.Join(base, name)

		var v *Venv
		template := cfg.PythonCommand
		if strings.HasPrefix(name, WSLPrefix) {
			v = New(path, ex, WithWSL(cfg.WSLDistribution))
			template = cfg.WSLPythonCommand
		} else {
			v = New(path, ex)
		}

		if v.Installed() {
			logging.VenvDebug("Venv %s already exists, skipping", path)
			continue
		}
		if err := v.Create(ctx, PythonCommand(template, version)); err != nil {
			return err
		}
	}
	return nil
}

// ActivePath returns the environment pycicd was invoked from: $VIRTUAL_ENV,
// else sys.prefix of the python on PATH.
func ActivePath(ctx context.Context, ex tactile.Executor) (string, error) {
	if env := os.Getenv("VIRTUAL_ENV"); env != "" {
		return env, nil
	}

	res, err := tactile.Run(ctx, ex, tactile.Command{
		Binary:    "python",
		Arguments: []string{"-c", "import sys; print(sys.prefix)"},
	}, "Active interpreter not found.")
	if err != nil {
		return "", err
	}
	prefix := strings.TrimSpace(res.Stdout)
	if prefix == "" {
		return "", fmt.Errorf("python reported an empty sys.prefix")
	}
	return prefix, nil
}
