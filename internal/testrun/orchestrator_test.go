package testrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pycicd/internal/config"
	"pycicd/internal/paths"
	"pycicd/internal/tactile"
	"pycicd/internal/tactile/tactiletest"
)

type fixture struct {
	root  string
	paths *paths.ProjectPaths
	rec   *tactiletest.Recorder
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	touch(t, filepath.Join(root, "setup.py"))
	touch(t, filepath.Join(root, "project_lib", "__init__.py"))
	touch(t, filepath.Join(root, "tests", "test_it.py"))

	p, err := paths.Resolve(root, config.PathsConfig{})
	require.NoError(t, err)
	return &fixture{root: root, paths: p, rec: tactiletest.NewRecorder()}
}

// venv creates an installed virtualenv under root and returns its relative path.
func (f *fixture) venv(t *testing.T, name string) string {
	t.Helper()
	rel := filepath.Join("tests", "venv", name)
	touch(t, filepath.Join(f.root, rel, "bin", "python"))
	touch(t, filepath.Join(f.root, rel, "bin", "activate"))
	return rel
}

func baseConfig() config.TestConfig {
	return config.TestConfig{
		RunTests:         true,
		TestCoverage:     true,
		StopOnFirstError: true,
		Verbosity:        1,
		SelfPackages:     []string{"pytest"},
	}
}

func (f *fixture) orchestrator(t *testing.T, cfg config.TestConfig) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(Options{
		Test:      cfg,
		Venv:      config.VenvConfig{PythonCommand: "python{version}", WSLPythonCommand: "python{version}"},
		Paths:     f.paths,
		Executor:  f.rec,
		RequestID: "req-1",
	})
	require.NoError(t, err)
	return o
}

// pytestLines returns the recorded pytest invocations.
func (f *fixture) pytestLines() []string {
	var out []string
	for _, l := range f.rec.Lines() {
		if strings.Contains(l, "&& pytest ") {
			out = append(out, l)
		}
	}
	return out
}

func TestRun_DisabledDoesNothing(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.RunTests = false
	cfg.PrepareTestVenvs = []string{"3.10"}
	cfg.Virtualenvs = []string{"missing"}

	o := f.orchestrator(t, cfg)
	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.rec.Commands())
	assert.True(t, report.Skipped)
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, StateDone, o.State())
}

func TestNewOrchestrator_RejectsVerbosity(t *testing.T) {
	f := newFixture(t)
	for _, v := range []int{-1, 3, 7} {
		cfg := baseConfig()
		cfg.Verbosity = v
		_, err := NewOrchestrator(Options{Test: cfg, Paths: f.paths, Executor: f.rec})
		assert.True(t, errors.Is(err, tactile.ErrInvalidVerbosity), "verbosity %d", v)
	}
}

func TestBaseArgs(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		verbosity int
		stop      bool
		extra     []string
		want      []string
	}{
		{0, true, nil, []string{"-x", "-q", "--tb=line"}},
		{1, true, nil, []string{"-x", "--tb=short"}},
		{2, true, nil, []string{"-x"}},
		{2, false, nil, nil},
		{1, false, []string{"-k", "slow", "--maxfail=2"}, []string{"--tb=short", "-k", "slow", "--maxfail=2"}},
	}
	for _, tt := range tests {
		cfg := baseConfig()
		cfg.Verbosity = tt.verbosity
		cfg.StopOnFirstError = tt.stop
		cfg.ExtraArgs = tt.extra
		got := f.orchestrator(t, cfg).BaseArgs()
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("BaseArgs(verbosity=%d, stop=%v) mismatch (-want +got):\n%s", tt.verbosity, tt.stop, diff)
		}
	}
}

func TestRun_CoverageOnlyOnFirstEnvironment(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.Virtualenvs = []string{f.venv(t, "3.9"), f.venv(t, "3.10"), f.venv(t, "3.11")}
	touch(t, filepath.Join(f.root, ".coverage"))

	report, err := f.orchestrator(t, cfg).Run(context.Background())
	require.NoError(t, err)

	lines := f.pytestLines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "--cov")
	assert.Contains(t, lines[0], `--cov-report "xml:`+filepath.Join(f.root, "tests", "coverage.xml")+`"`)
	assert.NotContains(t, lines[1], "--cov")
	assert.NotContains(t, lines[2], "--cov")

	assert.True(t, report.Environments[0].Coverage)
	assert.False(t, report.Environments[1].Coverage)
	assert.Equal(t, filepath.Join(f.root, "tests", "coverage.xml"), report.CoverageXML)
	assert.NoFileExists(t, filepath.Join(f.root, ".coverage"))
}

func TestRun_NoCoverageWhenDisabled(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.TestCoverage = false
	cfg.Virtualenvs = []string{f.venv(t, "3.9"), f.venv(t, "3.10")}
	touch(t, filepath.Join(f.root, ".coverage"))

	report, err := f.orchestrator(t, cfg).Run(context.Background())
	require.NoError(t, err)

	for _, l := range f.pytestLines() {
		assert.NotContains(t, l, "--cov")
	}
	assert.Empty(t, report.CoverageXML)
	assert.FileExists(t, filepath.Join(f.root, ".coverage"))
}

func TestRun_FallsBackToActiveEnvironment(t *testing.T) {
	f := newFixture(t)
	active := filepath.Join(f.root, f.venv(t, "active"))
	t.Setenv("VIRTUAL_ENV", active)

	cfg := baseConfig()
	o := f.orchestrator(t, cfg)

	targets, err := o.Targets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.True(t, targets[0].Fallback)
	assert.Equal(t, active, targets[0].Path)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	lines := f.pytestLines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], filepath.Join(active, "bin", "activate"))
	assert.Len(t, report.Environments, 1)
}

func TestRun_MissingEnvironmentStopsEverything(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	missing := filepath.Join("tests", "venv", "A")
	present := f.venv(t, "B")
	cfg.Virtualenvs = []string{missing, present}

	o := f.orchestrator(t, cfg)
	report, err := o.Run(context.Background())

	var envErr *tactile.EnvironmentMissingError
	require.True(t, errors.As(err, &envErr))
	assert.Equal(t, filepath.Join(f.root, missing), envErr.Path)
	assert.Contains(t, err.Error(), "prepare_test_venvs")

	assert.Empty(t, f.rec.Commands(), "environment B must never be touched")
	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, StateFailed, o.State())
}

func TestRun_FailFastOnTestFailure(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.Virtualenvs = []string{f.venv(t, "A"), f.venv(t, "B"), f.venv(t, "C")}
	f.rec.FailWhen(filepath.Join("venv", "B", "bin", "activate")+`" && pytest`, 1)

	report, err := f.orchestrator(t, cfg).Run(context.Background())

	var cmdErr *tactile.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, FailureHeader, cmdErr.Header)
	assert.Equal(t, 1, cmdErr.ExitCode)

	assert.Len(t, f.pytestLines(), 2)
	assert.Zero(t, f.rec.Count(filepath.Join("venv", "C")), "environment C must never be invoked")
	assert.Len(t, report.Environments, 1)
	assert.Equal(t, StateFailed, report.State)
}

func TestRun_CoverageDataKeptOnFailure(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.Virtualenvs = []string{f.venv(t, "A")}
	touch(t, filepath.Join(f.root, ".coverage"))
	f.rec.FailWhen("&& pytest", 2)

	_, err := f.orchestrator(t, cfg).Run(context.Background())
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(f.root, ".coverage"))
}

func TestRun_InstallsSelfPackageWithoutSyncPolicy(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.SelfPackages = []string{"pytest", "pytest-cov"}
	cfg.Virtualenvs = []string{f.venv(t, "A")}

	_, err := f.orchestrator(t, cfg).Run(context.Background())
	require.NoError(t, err)

	lines := f.rec.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `python -m pip install "pytest" "pytest-cov"`)
	assert.NotContains(t, lines[0], "-r ")
	assert.Contains(t, lines[1], "&& pytest ")
}

func TestRun_SyncsRequirementsBeforeTests(t *testing.T) {
	f := newFixture(t)
	touch(t, filepath.Join(f.root, "requirements", "tests.txt"))
	cfg := baseConfig()
	cfg.Virtualenvs = []string{f.venv(t, "A")}
	cfg.SyncTestRequirements = config.Files("tests.txt")
	cfg.SyncTestRequirementsPath = "requirements"

	_, err := f.orchestrator(t, cfg).Run(context.Background())
	require.NoError(t, err)

	lines := f.rec.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `install --upgrade -r "`+filepath.Join(f.root, "requirements", "tests.txt")+`" "pytest"`)
}

func TestRun_WSLEnvironmentsRunLastThroughWSL(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.Virtualenvs = []string{f.venv(t, "3.10")}
	cfg.WSLVirtualenvs = []string{f.venv(t, "wsl-3.10")}

	report, err := f.orchestrator(t, cfg).Run(context.Background())
	require.NoError(t, err)

	var pytest []tactile.Command
	for _, c := range f.rec.Commands() {
		if strings.Contains(tactiletest.Line(c), "&& pytest ") {
			pytest = append(pytest, c)
		}
	}
	require.Len(t, pytest, 2)
	assert.NotEqual(t, "wsl", pytest[0].Binary)
	assert.Equal(t, "wsl", pytest[1].Binary)
	assert.Equal(t, "wsl", pytest[1].Tags["personality"])
	assert.Equal(t, "tests", pytest[1].Tags["stage"])
	assert.Equal(t, f.paths.Abs(cfg.WSLVirtualenvs[0]), pytest[1].Tags["environment"])
	assert.Equal(t, "local", report.Environments[0].Personality)
	assert.Equal(t, "wsl", report.Environments[1].Personality)
}

func TestRun_PreparesVenvsFirst(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.PrepareTestVenvs = []string{"3.12"}
	cfg.PrepareTestVenvsPath = filepath.Join("tests", "venv")
	cfg.Virtualenvs = []string{f.venv(t, "3.11")}

	_, err := f.orchestrator(t, cfg).Run(context.Background())
	require.NoError(t, err)

	lines := f.rec.Lines()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "python3.12 -m venv")
}

func TestRun_ConfiguredPathMissing(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.TestedPath = "nowhere"
	cfg.Virtualenvs = []string{f.venv(t, "A")}

	_, err := f.orchestrator(t, cfg).Run(context.Background())
	var cfgErr *tactile.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "test.tested_path", cfgErr.Field)
	assert.Empty(t, f.rec.Commands())
}

func TestRun_StreamsOnlyAtFullVerbosity(t *testing.T) {
	for _, verbosity := range []int{0, 1, 2} {
		f := newFixture(t)
		cfg := baseConfig()
		cfg.Verbosity = verbosity
		cfg.Virtualenvs = []string{f.venv(t, "A")}

		_, err := f.orchestrator(t, cfg).Run(context.Background())
		require.NoError(t, err)

		cmds := f.rec.Commands()
		last := cmds[len(cmds)-1]
		assert.Equal(t, verbosity == 2, last.Stream, "verbosity %d", verbosity)
		assert.Equal(t, "req-1", last.RequestID)
		assert.Equal(t, f.root, last.WorkingDirectory)
	}
}

func TestCommandLine_Order(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig()
	cfg.Verbosity = 0
	cfg.ExtraArgs = []string{"--durations=5", "-p", "no:cacheprovider"}
	o := f.orchestrator(t, cfg)

	got := o.CommandLine(0, tactile.LocalTranslator{}, f.root, f.paths.Tests)
	want := `pytest "` + f.root + `" -x -q --tb=line --durations=5 -p no:cacheprovider --cov "` +
		f.paths.App + `" --cov-report "xml:` + filepath.Join(f.paths.Tests, "coverage.xml") + `"`
	assert.Equal(t, want, got)

	wsl := o.CommandLine(1, tactile.WSLTranslator{}, `C:\proj`, `C:\proj\tests`)
	assert.Equal(t, `pytest "/mnt/c/proj" -x -q --tb=line --durations=5 -p no:cacheprovider`, wsl)
}
