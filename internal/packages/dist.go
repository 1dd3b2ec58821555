package packages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"pycicd/internal/logging"
	"pycicd/internal/tactile"
)

// BuildPackage builds an sdist and a wheel into root/dist with python -m build.
func BuildPackage(ctx context.Context, ex tactile.Executor, root string, clean bool) ([]string, error) {
	dist := filepath.Join(root, "dist")
	if clean {
		if err := os.RemoveAll(dist); err != nil {
			return nil, fmt.Errorf("failed to clean %s: %w", dist, err)
		}
	}

	logging.Packages("Building package in %s", root)
	cmd := tactile.Command{
		Binary:           "python",
		Arguments:        []string{"-m", "build", "--sdist", "--wheel", "--outdir", dist},
		WorkingDirectory: root,
	}
	if _, err := tactile.Run(ctx, ex, cmd, "Package build failed."); err != nil {
		return nil, err
	}

	return Artifacts(root)
}

// Artifacts lists the built distributions in root/dist.
func Artifacts(root string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.whl", "*.tar.gz"} {
		m, err := filepath.Glob(filepath.Join(root, "dist", pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, m...)
	}
	sort.Strings(files)
	return files, nil
}

// UploadPackage uploads root/dist with twine. Credentials are read by twine
// from TWINE_USERNAME / TWINE_PASSWORD or ~/.pypirc.
func UploadPackage(ctx context.Context, ex tactile.Executor, root, repository string) error {
	files, err := Artifacts(root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return &tactile.ConfigError{Field: "deploy", Path: filepath.Join(root, "dist"), Header: "Nothing to upload."}
	}

	args := []string{"-m", "twine", "upload", "--non-interactive"}
	if repository != "" {
		args = append(args, "--repository", repository)
	}
	args = append(args, files...)

	if _, hasUser := os.LookupEnv("TWINE_USERNAME"); !hasUser {
		logging.PackagesDebug("TWINE_USERNAME not set, twine falls back to ~/.pypirc")
	}

	logging.Packages("Uploading %d files to %s", len(files), repository)
	cmd := tactile.Command{Binary: "python", Arguments: args, WorkingDirectory: root}
	_, err = tactile.Run(ctx, ex, cmd, "Deploy to PyPi failed.")
	return err
}
