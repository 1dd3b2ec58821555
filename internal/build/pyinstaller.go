package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pycicd/internal/config"
	"pycicd/internal/logging"
	"pycicd/internal/paths"
	"pycicd/internal/tactile"
	"pycicd/internal/venv"
)

// FailureHeader tags a frontend or pyinstaller failure.
const FailureHeader = "Build app failed."

// Args composes the pyinstaller arguments for name. Output goes to root/dist,
// intermediate files to root/build.
func Args(cfg config.BuildConfig, root, name string) []string {
	args := []string{
		"--noconfirm",
		"--name", name,
		"--distpath", filepath.Join(root, "dist"),
		"--workpath", filepath.Join(root, "build"),
		"--specpath", filepath.Join(root, "build"),
	}
	if cfg.Console {
		args = append(args, "--console")
	} else {
		args = append(args, "--windowed")
	}
	if cfg.Debug {
		args = append(args, "--debug=all")
	}
	if cfg.Clean {
		args = append(args, "--clean")
	}
	for _, pkg := range cfg.IgnoredPackages {
		args = append(args, "--exclude-module", pkg)
	}
	args = append(args, cfg.ExtraArgs...)
	return append(args, filepath.Join(root, cfg.MainFile))
}

// BuildApp bundles the application and returns the output path under
// root/dist. With build.virtualenv set, requirements are synced into that
// environment first and pyinstaller runs inside it.
func BuildApp(ctx context.Context, ex tactile.Executor, cfg *config.Config, pp *paths.ProjectPaths) (string, error) {
	bc := cfg.Build
	main := filepath.Join(pp.Root, bc.MainFile)
	if err := paths.ValidatePath(main, "build.main_file"); err != nil {
		return "", err
	}

	name := pp.AppName()
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(bc.MainFile), filepath.Ext(bc.MainFile))
	}

	if bc.BuildWeb {
		if err := BuildWeb(ctx, ex, pp.Abs(bc.WebPath)); err != nil {
			return "", err
		}
	}

	timer := logging.StartTimer(logging.CategoryBuild, "pyinstaller")
	defer timer.StopWithInfo()

	env := Env(cfg, pp.Root)
	args := Args(bc, pp.Root, name)

	if bc.Virtualenv == "" {
		cmd := tactile.Command{
			Binary:           "pyinstaller",
			Arguments:        args,
			WorkingDirectory: pp.Root,
			Environment:      env,
		}
		logging.Build("Building %s with the active interpreter", name)
		if _, err := tactile.Run(ctx, ex, cmd, FailureHeader); err != nil {
			return "", err
		}
		return output(pp.Root, name)
	}

	v := venv.New(pp.Abs(bc.Virtualenv), ex)
	if !v.Installed() {
		return "", &tactile.EnvironmentMissingError{Path: v.Path}
	}
	if bc.SyncRequirements.Enabled() {
		if err := v.SyncRequirements(ctx, bc.SyncRequirements, pp.Root, []string{"pyinstaller"}); err != nil {
			return "", err
		}
	}

	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = tactile.QuoteArg(a)
	}
	cmd := v.Command("pyinstaller "+strings.Join(quoted, " "), pp.Root)
	cmd.Environment = env

	logging.Build("Building %s in %s", name, v.Path)
	if _, err := tactile.Run(ctx, ex, cmd, FailureHeader); err != nil {
		return "", err
	}
	return output(pp.Root, name)
}

// BuildWeb runs `npm run build` for the javascript frontend in dir.
func BuildWeb(ctx context.Context, ex tactile.Executor, dir string) error {
	if err := paths.ValidatePath(filepath.Join(dir, "package.json"), "build.web_path"); err != nil {
		return err
	}
	cmd := tactile.Command{
		Binary:           "npm",
		Arguments:        []string{"run", "build"},
		WorkingDirectory: dir,
		Tags:             map[string]string{"stage": "build"},
	}
	logging.Build("Building frontend in %s", dir)
	_, err := tactile.Run(ctx, ex, cmd, FailureHeader)
	return err
}

// output returns dist/<name> (one-folder build) or the one-file executable.
func output(root, name string) (string, error) {
	for _, candidate := range []string{
		filepath.Join(root, "dist", name),
		filepath.Join(root, "dist", name+".exe"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s pyinstaller produced no output in %s", FailureHeader, filepath.Join(root, "dist"))
}
