// Package pipeline sequences the release steps of a Python project. Steps run
// top to bottom; the first failure halts the rest and nothing already done is
// rolled back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pycicd/internal/config"
	"pycicd/internal/git"
	"pycicd/internal/logging"
	"pycicd/internal/paths"
	"pycicd/internal/store"
	"pycicd/internal/tactile"
	"pycicd/internal/testrun"
)

// BranchStep is the name recorded for the allowed-branch gate.
const BranchStep = "branch"

// Options configures a Runner.
type Options struct {
	Config   *config.Config
	Paths    *paths.ProjectPaths
	Executor tactile.Executor

	// History records the run when set.
	History *store.History

	// Progress is called before each step that runs.
	Progress func(step string, index, total int)
}

// Runner executes the pipeline once.
type Runner struct {
	cfg      *config.Config
	paths    *paths.ProjectPaths
	executor tactile.Executor
	repo     *git.Repo
	history  *store.History
	progress func(string, int, int)
	steps    []Step

	runID          string
	branch         string
	version        string
	versionChanged bool
	testReport     *testrun.Report

	mu       sync.Mutex
	commands []store.CommandRecord
}

// New validates the configuration and creates a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil || opts.Paths == nil || opts.Executor == nil {
		return nil, errors.New("config, paths and executor are required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		cfg:      opts.Config,
		paths:    opts.Paths,
		executor: opts.Executor,
		repo:     git.New(opts.Paths.Root, opts.Executor),
		history:  opts.History,
		progress: opts.Progress,
		steps:    Steps(),
		runID:    uuid.NewString(),
	}, nil
}

// RunID identifies this run in the history and in every subprocess audit event.
func (r *Runner) RunID() string {
	return r.runID
}

// TestReport returns the orchestrator report, nil when tests did not run.
func (r *Runner) TestReport() *testrun.Report {
	return r.testReport
}

// Version returns the version set by the version step, empty if it did not run.
func (r *Runner) Version() string {
	return r.version
}

// Selected reports whether step s runs under the current configuration.
// do_only forces its step and excludes every other.
func (r *Runner) Selected(s Step) bool {
	if only := r.cfg.Pipeline.DoOnly; only != "" {
		return s.Name == only
	}
	return s.Enabled(r.cfg)
}

func (r *Runner) currentBranch(ctx context.Context) (string, error) {
	if r.branch != "" {
		return r.branch, nil
	}
	branch, err := r.repo.CurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	r.branch = branch
	return branch, nil
}

func (r *Runner) audit(ev tactile.AuditEvent) {
	if ev.Type == tactile.AuditEventStart || ev.Result == nil {
		return
	}
	rec := store.CommandRecord{
		Command:  ev.Command.CommandString(),
		Stage:    ev.Command.Tags["stage"],
		ExitCode: ev.Result.ExitCode,
		Duration: ev.Result.Duration,
	}
	r.mu.Lock()
	r.commands = append(r.commands, rec)
	r.mu.Unlock()
}

// Run executes the selected steps in order and returns the run record. The
// record is returned on failure too, holding the steps up to the failing one.
func (r *Runner) Run(ctx context.Context) (*store.RunRecord, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "pipeline")
	defer timer.StopWithInfo()

	if audited, ok := r.executor.(tactile.AuditedExecutor); ok {
		audited.SetAuditCallback(r.audit)
		defer audited.SetAuditCallback(nil)
	}

	rec := &store.RunRecord{ID: r.runID, StartedAt: time.Now(), Status: store.StatusOK}
	logging.Pipeline("Pipeline %s started in %s", r.runID, r.paths.Root)

	err := r.execute(ctx, rec)

	rec.FinishedAt = time.Now()
	rec.Branch = r.branch
	rec.Version = r.version
	r.mu.Lock()
	rec.Commands = append([]store.CommandRecord(nil), r.commands...)
	r.mu.Unlock()
	if err != nil {
		rec.Status = store.StatusFailed
		rec.Error = err.Error()
		logging.PipelineError("Pipeline failed: %v", err)
	} else {
		logging.Pipeline("Pipeline finished")
	}

	if r.history != nil {
		// A fresh context so a cancelled run is still recorded.
		if herr := r.history.RecordRun(context.Background(), *rec); herr != nil {
			logging.StoreError("Failed to record run %s: %v", rec.ID, herr)
		}
	}
	return rec, err
}

func (r *Runner) execute(ctx context.Context, rec *store.RunRecord) error {
	if allowed := r.cfg.Pipeline.AllowedBranches; len(allowed) > 0 {
		start := time.Now()
		branch, err := r.currentBranch(ctx)
		if err == nil {
			err = git.BranchAllowed(branch, allowed)
		}
		if err := r.record(rec, BranchStep, start, err); err != nil {
			return err
		}
	}

	var selected []Step
	for _, s := range r.steps {
		if r.Selected(s) {
			selected = append(selected, s)
		} else {
			rec.Steps = append(rec.Steps, store.StepRecord{Name: s.Name, Status: store.StatusSkipped})
			logging.PipelineDebug("Step %s skipped", s.Name)
		}
	}

	for i, s := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.progress != nil {
			r.progress(s.Name, i+1, len(selected))
		}
		logging.Pipeline("[%d/%d] %s", i+1, len(selected), s.Name)

		start := time.Now()
		err := s.Action(ctx, r)
		if err := r.record(rec, s.Name, start, err); err != nil {
			rec.Steps = orderSteps(r.steps, rec.Steps)
			return fmt.Errorf("step %s: %w", s.Name, err)
		}
	}
	rec.Steps = orderSteps(r.steps, rec.Steps)
	return nil
}

// record appends the step outcome and returns err unchanged.
func (r *Runner) record(rec *store.RunRecord, name string, start time.Time, err error) error {
	step := store.StepRecord{Name: name, Status: store.StatusOK, Duration: time.Since(start)}
	if err != nil {
		step.Status = store.StatusFailed
		step.Error = err.Error()
	}
	rec.Steps = append(rec.Steps, step)
	return err
}

// orderSteps sorts records into declared order with the branch gate first.
// Steps that never ran after a failure are absent.
func orderSteps(declared []Step, records []store.StepRecord) []store.StepRecord {
	pos := map[string]int{BranchStep: -1}
	for i, s := range declared {
		pos[s.Name] = i
	}
	out := make([]store.StepRecord, 0, len(records))
	for want := -1; want < len(declared); want++ {
		for _, rec := range records {
			if pos[rec.Name] == want {
				out = append(out, rec)
			}
		}
	}
	return out
}
