package pipeline

import (
	"context"
	"path/filepath"

	"pycicd/internal/build"
	"pycicd/internal/config"
	"pycicd/internal/docs"
	"pycicd/internal/format"
	"pycicd/internal/logging"
	"pycicd/internal/packages"
	"pycicd/internal/readme"
	"pycicd/internal/tactile"
	"pycicd/internal/testrun"
)

// Step is one named, flag-gated pipeline stage.
type Step struct {
	Name    string
	Enabled func(cfg *config.Config) bool
	Action  func(ctx context.Context, r *Runner) error
}

// Steps returns the pipeline in its fixed order. The order never depends on
// which flags are set.
func Steps() []Step {
	return []Step{
		{
			Name:    "reformat",
			Enabled: func(c *config.Config) bool { return c.Pipeline.Reformat },
			Action:  reformat,
		},
		{
			Name:    "docs",
			Enabled: func(c *config.Config) bool { return c.Pipeline.Docs },
			Action:  regenerateDocs,
		},
		{
			Name:    "version",
			Enabled: func(c *config.Config) bool { return c.Pipeline.Version != "" },
			Action:  setVersion,
		},
		{
			Name:    "test",
			Enabled: func(c *config.Config) bool { return c.Test.RunTests },
			Action:  runTests,
		},
		{
			Name:    "commit",
			Enabled: func(c *config.Config) bool { return c.Pipeline.GitCommit },
			Action:  commit,
		},
		{
			Name:    "push",
			Enabled: func(c *config.Config) bool { return c.Pipeline.GitPush },
			Action:  push,
		},
		{
			Name:    "build",
			Enabled: func(c *config.Config) bool { return c.Pipeline.BuildApp },
			Action:  buildApp,
		},
		{
			Name:    "deploy",
			Enabled: func(c *config.Config) bool { return c.Pipeline.Deploy },
			Action:  deploy,
		},
	}
}

func reformat(ctx context.Context, r *Runner) error {
	return format.ReformatWithBlack(ctx, r.executor, r.paths.Root, r.cfg.Format.LineLength)
}

func regenerateDocs(ctx context.Context, r *Runner) error {
	if r.paths.App == "" {
		return &tactile.ConfigError{Field: "paths.app", Header: docs.FailureHeader}
	}
	return docs.Regenerate(ctx, r.executor, docs.Options{
		DocsDir:   r.paths.Docs,
		SourceDir: r.cfg.Docs.SourceDir,
		AppDir:    r.paths.App,
		Keep:      r.cfg.Docs.Keep,
	})
}

func setVersion(ctx context.Context, r *Runner) error {
	if r.paths.Init == "" {
		return &tactile.ConfigError{Field: "paths.init", Header: "Version not set."}
	}
	current, err := packages.GetVersion(r.paths.Init)
	if err != nil {
		return err
	}

	target := r.cfg.Pipeline.Version
	if target == "" {
		target = "increment"
	}
	next, err := packages.ResolveVersion(current, target)
	if err != nil {
		return err
	}
	if next == current {
		r.version = current
		return nil
	}
	if err := packages.SetVersion(r.paths.Init, next); err != nil {
		return err
	}
	logging.Pipeline("Version %s -> %s", current, next)
	r.version = next
	r.versionChanged = true
	return nil
}

// runTests regenerates the README tests first so they run with the suite.
func runTests(ctx context.Context, r *Runner) error {
	if r.cfg.Readme.Generate && r.paths.Readme != "" {
		if _, _, err := readme.AddReadmeTests(r.paths.Readme, r.paths.Tests); err != nil {
			return err
		}
	}

	orch, err := testrun.NewOrchestrator(testrun.Options{
		Test:      r.cfg.Test,
		Venv:      r.cfg.Venv,
		Paths:     r.paths,
		Executor:  r.executor,
		RequestID: r.runID,
	})
	if err != nil {
		return err
	}
	report, err := orch.Run(ctx)
	r.testReport = report
	return err
}

func commit(ctx context.Context, r *Runner) error {
	if _, err := r.repo.Commit(ctx, r.cfg.Pipeline.CommitMessage, r.cfg.Pipeline.GitCommitAll); err != nil {
		return err
	}
	if r.cfg.Pipeline.Tag && r.versionChanged {
		return r.repo.Tag(ctx, r.version)
	}
	return nil
}

func push(ctx context.Context, r *Runner) error {
	branch, err := r.currentBranch(ctx)
	if err != nil {
		return err
	}
	return r.repo.Push(ctx, r.cfg.Pipeline.Remote, branch, r.cfg.Pipeline.Tag)
}

func buildApp(ctx context.Context, r *Runner) error {
	out, err := build.BuildApp(ctx, r.executor, r.cfg, r.paths)
	if err != nil {
		return err
	}
	logging.Pipeline("Application built at %s", out)
	return nil
}

func deploy(ctx context.Context, r *Runner) error {
	files, err := packages.BuildPackage(ctx, r.executor, r.paths.Root, r.cfg.Deploy.CleanDist)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return &tactile.ConfigError{Field: "deploy", Path: filepath.Join(r.paths.Root, "dist"), Header: "Package build failed."}
	}
	return packages.UploadPackage(ctx, r.executor, r.paths.Root, r.cfg.Deploy.Repository)
}
