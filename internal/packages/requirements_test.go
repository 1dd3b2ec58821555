package packages

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pycicd/internal/config"
	"pycicd/internal/tactile"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestGetRequirements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requirements.txt")
	writeFile(t, path, `# runtime
numpy>=1.20

pandas==2.0 # pinned
-r other.txt
-e .
`)

	reqs, err := GetRequirements(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"numpy>=1.20", "pandas==2.0"}, reqs)
}

func TestFindRequirementFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "requirements_tests.txt"), "")
	writeFile(t, filepath.Join(dir, "requirements.txt"), "")
	writeFile(t, filepath.Join(dir, "setup.txt"), "")

	files, err := FindRequirementFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "requirements.txt"),
		filepath.Join(dir, "requirements_tests.txt"),
	}, files)
}

func TestResolveRequirementFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "requirements.txt"), "")
	writeFile(t, filepath.Join(dir, "requirements_dev.txt"), "")
	writeFile(t, filepath.Join(dir, "tests.txt"), "")

	t.Run("none", func(t *testing.T) {
		files, err := ResolveRequirementFiles(config.RequirementSources{}, dir)
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("infer", func(t *testing.T) {
		files, err := ResolveRequirementFiles(config.Infer(), dir)
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("explicit files deduplicated", func(t *testing.T) {
		files, err := ResolveRequirementFiles(config.Files("tests.txt", "requirements.txt", "tests.txt"), dir)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "tests.txt"), filepath.Join(dir, "requirements.txt")}, files)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ResolveRequirementFiles(config.Files("absent.txt"), dir)
		var cfgErr *tactile.ConfigError
		assert.True(t, errors.As(err, &cfgErr))
	})
}

func TestInstallCommand(t *testing.T) {
	got := InstallCommand([]string{"/p/requirements.txt", "/p/tests.txt"}, []string{"pytest", "pytest-cov", "pytest"}, true, nil)
	want := `python -m pip install --upgrade -r "/p/requirements.txt" -r "/p/tests.txt" "pytest" "pytest-cov"`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("InstallCommand mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, `python -m pip install "pytest"`, InstallCommand(nil, []string{"pytest"}, false, nil))
	assert.Equal(t, `python -m pip install -r "C:\\p\\r.txt"`,
		InstallCommand([]string{`C:\p\r.txt`}, nil, false, tactile.QuotePOSIX))
}
