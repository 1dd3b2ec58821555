package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"pycicd/internal/config"
	"pycicd/internal/logging"
	"pycicd/internal/pipeline"
	"pycicd/internal/store"
	"pycicd/internal/testrun"
)

// Run flags
var (
	doOnly        string
	noTests       bool
	setVersionTo  string
	deployFlag    bool
	gitPushFlag   bool
	gitCommitFlag bool
	commitMessage string
	buildAppFlag  bool
	verbosity     int
	virtualenvs   []string
	noHistory     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the release pipeline",
	Long: `Runs every enabled step in order:

  reformat, docs, version, test, commit, push, build, deploy

The first failing step stops the pipeline. Completed steps are not rolled back,
so a bumped version stays bumped when tests fail afterwards.

Examples:
  pycicd run
  pycicd run --do-only test
  pycicd run --version minor --deploy`,
	RunE: runPipeline,
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the tests in every configured virtualenv",
	Long: `Runs pytest in every configured virtualenv, local ones first and then WSL
ones, stopping at the first failure. README tests are regenerated first when
readme.generate is set. The branch allow-list is not checked.`,
	RunE: runTestsOnly,
}

func init() {
	runCmd.Flags().StringVar(&doOnly, "do-only", "", "Run only this step (reformat, docs, version, test, commit, push, build, deploy)")
	runCmd.Flags().BoolVar(&noTests, "no-tests", false, "Skip the test step")
	runCmd.Flags().StringVar(&setVersionTo, "version", "", "Version target: increment, major, minor, patch or x.y.z")
	runCmd.Flags().BoolVar(&deployFlag, "deploy", false, "Build and upload the package")
	runCmd.Flags().BoolVar(&gitPushFlag, "git-push", false, "Push after committing")
	runCmd.Flags().BoolVar(&gitCommitFlag, "git-commit", false, "Commit the changes")
	runCmd.Flags().StringVar(&commitMessage, "commit-message", "", "Commit message")
	runCmd.Flags().BoolVar(&buildAppFlag, "build-app", false, "Bundle the application with pyinstaller")

	for _, c := range []*cobra.Command{runCmd, testCmd} {
		c.Flags().IntVar(&verbosity, "verbosity", 1, "Test verbosity: 0, 1 or 2 (2 streams pytest output)")
		c.Flags().StringSliceVar(&virtualenvs, "virtualenvs", nil, "Virtualenvs to test in (overrides config)")
		c.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run")
	}
}

// applyRunFlags overrides config fields with the flags that were set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("do-only") {
		cfg.Pipeline.DoOnly = doOnly
	}
	if flags.Changed("no-tests") {
		cfg.Test.RunTests = !noTests
	}
	if flags.Changed("version") {
		cfg.Pipeline.Version = setVersionTo
	}
	if flags.Changed("deploy") {
		cfg.Pipeline.Deploy = deployFlag
	}
	if flags.Changed("git-push") {
		cfg.Pipeline.GitPush = gitPushFlag
	}
	if flags.Changed("git-commit") {
		cfg.Pipeline.GitCommit = gitCommitFlag
	}
	if flags.Changed("commit-message") {
		cfg.Pipeline.CommitMessage = commitMessage
	}
	if flags.Changed("build-app") {
		cfg.Pipeline.BuildApp = buildAppFlag
	}
	if flags.Changed("verbosity") {
		cfg.Test.Verbosity = verbosity
	}
	if flags.Changed("virtualenvs") {
		cfg.Test.Virtualenvs = virtualenvs
	}
	if flags.Changed("no-history") {
		cfg.History.Enabled = !noHistory
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, p.cfg)
	return executePipeline(cmd, p)
}

// runTestsOnly runs the test step alone, without the branch gate.
func runTestsOnly(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, p.cfg)
	p.cfg.Pipeline.DoOnly = "test"
	p.cfg.Pipeline.AllowedBranches = nil
	return executePipeline(cmd, p)
}

func executePipeline(cmd *cobra.Command, p *project) error {
	out := cmd.OutOrStdout()

	history, err := openHistory(p)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	runner, err := pipeline.New(pipeline.Options{
		Config:   p.cfg,
		Paths:    p.paths,
		Executor: p.executor,
		History:  history,
		Progress: func(step string, index, total int) { printProgress(out, step, index, total) },
	})
	if err != nil {
		return err
	}

	rec, err := runner.Run(commandContext(cmd))
	if report := runner.TestReport(); report != nil {
		printTestReport(out, report)
	}
	if rec != nil {
		printRunSummary(out, rec)
	}
	return err
}

// openHistory opens the run history when enabled. Failing to open it only
// disables recording.
func openHistory(p *project) (*store.History, error) {
	if !p.cfg.History.Enabled || p.cfg.History.Path == "" {
		return nil, nil
	}
	h, err := store.Open(p.paths.Abs(p.cfg.History.Path))
	if err != nil {
		logging.StoreWarn("Run history disabled: %v", err)
		return nil, nil
	}
	return h, nil
}

func printTestReport(w io.Writer, r *testrun.Report) {
	if r.Skipped {
		fmt.Fprintln(w, skipStyle.Render("Tests skipped."))
		return
	}
	for _, env := range r.Environments {
		fmt.Fprintf(w, "  %s %s (%s, %s)\n", okStyle.Render("passed"), env.Path, env.Personality, env.Duration.Round(time.Millisecond))
	}
	if r.CoverageXML != "" {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("coverage"), r.CoverageXML)
	}
}

func printRunSummary(w io.Writer, rec *store.RunRecord) {
	fmt.Fprintln(w, headerStyle.Render("Run "+rec.ID))
	for _, s := range rec.Steps {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(s.Name), statusText(s.Status))
	}
	if rec.Version != "" {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("version"), rec.Version)
	}
}
