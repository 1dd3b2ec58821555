package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pycicd/internal/config"
	"pycicd/internal/paths"
	"pycicd/internal/tactile"
	"pycicd/internal/tactile/tactiletest"
)

func write(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestEnv(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	t.Setenv("PYTHONPATH", "/opt/shared")
	t.Setenv("PYCICD_TEST_TOKEN", "abc")

	cfg := config.DefaultConfig()
	cfg.Execution.AllowedEnvVars = []string{"PYCICD_TEST_TOKEN", "PYCICD_TEST_UNSET"}
	cfg.Build.EnvVars = map[string]string{"QT_API": "pyside6", "PYCICD_TEST_TOKEN": "override"}

	env := Env(cfg, root)

	pp, ok := tactile.LookupEnv(env, "PYTHONPATH")
	require.True(t, ok)
	sep := string(os.PathListSeparator)
	assert.Equal(t, strings.Join([]string{filepath.Join(root, "src"), root, "/opt/shared"}, sep), pp)

	token, _ := tactile.LookupEnv(env, "PYCICD_TEST_TOKEN")
	assert.Equal(t, "override", token)

	qt, _ := tactile.LookupEnv(env, "QT_API")
	assert.Equal(t, "pyside6", qt)

	_, ok = tactile.LookupEnv(env, "PYCICD_TEST_UNSET")
	assert.False(t, ok)
}

func TestDetectPythonPath(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, []string{root}, detectPythonPath(root))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	assert.Equal(t, []string{filepath.Join(root, "src"), root}, detectPythonPath(root))
}

func TestArgs(t *testing.T) {
	cfg := config.DefaultBuildConfig()
	cfg.Debug = true
	cfg.IgnoredPackages = []string{"tkinter", "pytest"}
	cfg.ExtraArgs = []string{"--onefile"}

	got := Args(cfg, "/proj", "project_lib")
	want := []string{
		"--noconfirm",
		"--name", "project_lib",
		"--distpath", filepath.Join("/proj", "dist"),
		"--workpath", filepath.Join("/proj", "build"),
		"--specpath", filepath.Join("/proj", "build"),
		"--console", "--debug=all", "--clean",
		"--exclude-module", "tkinter", "--exclude-module", "pytest",
		"--onefile",
		filepath.Join("/proj", "app.py"),
	}
	assert.Equal(t, want, got)

	cfg.Console = false
	assert.Contains(t, Args(cfg, "/proj", "x"), "--windowed")
}

func newProject(t *testing.T) (*paths.ProjectPaths, *tactiletest.Recorder) {
	t.Helper()
	root := t.TempDir()
	write(t, filepath.Join(root, "setup.py"))
	write(t, filepath.Join(root, "app.py"))
	write(t, filepath.Join(root, "project_lib", "__init__.py"))
	pp, err := paths.Resolve(root, config.PathsConfig{})
	require.NoError(t, err)

	rec := tactiletest.NewRecorder()
	rec.OnExecute = func(cmd tactile.Command) {
		if strings.Contains(tactiletest.Line(cmd), "pyinstaller") {
			_ = os.MkdirAll(filepath.Join(root, "dist", "project_lib"), 0o755)
		}
	}
	return pp, rec
}

func TestBuildApp_ActiveInterpreter(t *testing.T) {
	pp, rec := newProject(t)
	cfg := config.DefaultConfig()

	out, err := BuildApp(context.Background(), rec, cfg, pp)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(pp.Root, "dist", "project_lib"), out)

	cmds := rec.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "pyinstaller", cmds[0].Binary)
	_, ok := tactile.LookupEnv(cmds[0].Environment, "PYTHONPATH")
	assert.True(t, ok)
}

func TestBuildApp_InVirtualenv(t *testing.T) {
	pp, rec := newProject(t)
	write(t, filepath.Join(pp.Root, "requirements.txt"))
	write(t, filepath.Join(pp.Root, "venv", "bin", "python"))
	write(t, filepath.Join(pp.Root, "venv", "bin", "activate"))

	cfg := config.DefaultConfig()
	cfg.Build.Virtualenv = "venv"
	cfg.Build.SyncRequirements = config.Files("requirements.txt")

	_, err := BuildApp(context.Background(), rec, cfg, pp)
	require.NoError(t, err)

	lines := rec.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"pyinstaller"`)
	assert.Contains(t, lines[0], "--upgrade -r")
	assert.Contains(t, lines[1], `bin/activate" && pyinstaller "--noconfirm"`)
}

func TestBuildApp_MissingVirtualenv(t *testing.T) {
	pp, rec := newProject(t)
	cfg := config.DefaultConfig()
	cfg.Build.Virtualenv = "venv"

	_, err := BuildApp(context.Background(), rec, cfg, pp)
	var envErr *tactile.EnvironmentMissingError
	assert.True(t, errors.As(err, &envErr))
	assert.Empty(t, rec.Commands())
}

func TestBuildApp_Failure(t *testing.T) {
	pp, rec := newProject(t)
	rec.FailWhen("pyinstaller", 1)

	_, err := BuildApp(context.Background(), rec, config.DefaultConfig(), pp)
	var cmdErr *tactile.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, FailureHeader, cmdErr.Header)
}

func TestBuildApp_BuildsFrontendFirst(t *testing.T) {
	pp, rec := newProject(t)
	write(t, filepath.Join(pp.Root, "gui", "package.json"))
	cfg := config.DefaultConfig()
	cfg.Build.BuildWeb = true

	_, err := BuildApp(context.Background(), rec, cfg, pp)
	require.NoError(t, err)

	cmds := rec.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "npm run build", tactiletest.Line(cmds[0]))
	assert.Equal(t, filepath.Join(pp.Root, "gui"), cmds[0].WorkingDirectory)
	assert.Equal(t, "pyinstaller", cmds[1].Binary)
}

func TestBuildApp_FrontendFailureHalts(t *testing.T) {
	pp, rec := newProject(t)
	write(t, filepath.Join(pp.Root, "gui", "package.json"))
	rec.FailWhen("npm run build", 1)
	cfg := config.DefaultConfig()
	cfg.Build.BuildWeb = true

	_, err := BuildApp(context.Background(), rec, cfg, pp)
	var cmdErr *tactile.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, FailureHeader, cmdErr.Header)
	assert.Zero(t, rec.Count("pyinstaller"))
}

func TestBuildApp_MissingFrontend(t *testing.T) {
	pp, rec := newProject(t)
	cfg := config.DefaultConfig()
	cfg.Build.BuildWeb = true

	_, err := BuildApp(context.Background(), rec, cfg, pp)
	var cfgErr *tactile.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "build.web_path", cfgErr.Field)
	assert.Empty(t, rec.Commands())
}

func TestBuildApp_MissingMainFile(t *testing.T) {
	pp, rec := newProject(t)
	cfg := config.DefaultConfig()
	cfg.Build.MainFile = "missing.py"

	_, err := BuildApp(context.Background(), rec, cfg, pp)
	var cfgErr *tactile.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "build.main_file", cfgErr.Field)
}
