// Package testrun runs pytest across the configured virtualenvs, local ones
// first and then WSL ones, failing fast: the first environment that is missing
// or fails stops the run and no later environment is touched.
package testrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pycicd/internal/config"
	"pycicd/internal/logging"
	"pycicd/internal/paths"
	"pycicd/internal/tactile"
	"pycicd/internal/venv"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StatePreparing   State = "preparing_environments"
	StateRunning     State = "running"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// FailureHeader tags every test subprocess failure.
const FailureHeader = "Tests failed."

// Target is one environment to run tests in.
type Target struct {
	Path       string
	Translator tactile.PathTranslator

	// Fallback marks the environment pycicd was invoked from.
	Fallback bool
}

// EnvironmentResult records one environment's run.
type EnvironmentResult struct {
	Path        string        `json:"path"`
	Personality string        `json:"personality"`
	Command     string        `json:"command"`
	Coverage    bool          `json:"coverage"`
	ExitCode    int           `json:"exit_code"`
	Duration    time.Duration `json:"duration"`
}

// Report summarizes a run. On failure Environments holds the runs that
// completed before the failing one.
type Report struct {
	State        State               `json:"state"`
	Skipped      bool                `json:"skipped"`
	Environments []EnvironmentResult `json:"environments"`
	CoverageXML  string              `json:"coverage_xml,omitempty"`
	Duration     time.Duration       `json:"duration"`
}

// Options configures an Orchestrator.
type Options struct {
	Test     config.TestConfig
	Venv     config.VenvConfig
	Paths    *paths.ProjectPaths
	Executor tactile.Executor

	// RequestID tags every subprocess for audit.
	RequestID string
}

// Orchestrator runs the test suite across environments.
type Orchestrator struct {
	cfg       config.TestConfig
	venvCfg   config.VenvConfig
	paths     *paths.ProjectPaths
	executor  tactile.Executor
	requestID string

	mu      sync.RWMutex
	state   State
	current int
}

// NewOrchestrator validates opts. A verbosity outside {0,1,2} is rejected
// with tactile.ErrInvalidVerbosity.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if err := opts.Test.Validate(); err != nil {
		return nil, err
	}
	if opts.Paths == nil {
		return nil, errors.New("project paths are required")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	return &Orchestrator{
		cfg:       opts.Test,
		venvCfg:   opts.Venv,
		paths:     opts.Paths,
		executor:  opts.Executor,
		requestID: opts.RequestID,
		state:     StateIdle,
		current:   -1,
	}, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Current returns the index of the environment being run, -1 outside Running.
func (o *Orchestrator) Current() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

func (o *Orchestrator) setState(s State, current int) {
	o.mu.Lock()
	o.state = s
	o.current = current
	o.mu.Unlock()
	logging.TestsDebug("State -> %s (env %d)", s, current)
}

// BaseArgs returns pytest flags shared by every environment: -x, verbosity
// flags, then extra args verbatim.
func (o *Orchestrator) BaseArgs() []string {
	var args []string
	if o.cfg.StopOnFirstError {
		args = append(args, "-x")
	}
	switch o.cfg.Verbosity {
	case 0:
		args = append(args, "-q", "--tb=line")
	case 1:
		args = append(args, "--tb=short")
	}
	return append(args, o.cfg.ExtraArgs...)
}

// CoverageArgs returns the coverage flags for the first environment.
func (o *Orchestrator) CoverageArgs(tr tactile.PathTranslator, testsPath string) []string {
	cov := o.paths.App
	if cov == "" {
		cov = o.testedPath()
	}
	xml := tr.Translate(filepath.Join(testsPath, "coverage.xml"))
	return []string{"--cov", tactile.QuoteIn(tr, tr.Translate(cov)), "--cov-report", tactile.QuoteIn(tr, "xml:"+xml)}
}

// CommandLine composes the pytest line for environment index i.
func (o *Orchestrator) CommandLine(i int, tr tactile.PathTranslator, testedPath, testsPath string) string {
	parts := []string{"pytest", tactile.QuoteIn(tr, tr.Translate(testedPath))}
	parts = append(parts, o.BaseArgs()...)
	if i == 0 && o.cfg.TestCoverage {
		parts = append(parts, o.CoverageArgs(tr, testsPath)...)
	}
	return strings.Join(parts, " ")
}

func (o *Orchestrator) testedPath() string {
	if o.cfg.TestedPath != "" {
		return o.paths.Abs(o.cfg.TestedPath)
	}
	return o.paths.Root
}

func (o *Orchestrator) testsPath() string {
	if o.cfg.TestsPath != "" {
		return o.paths.Abs(o.cfg.TestsPath)
	}
	return o.paths.Tests
}

// resolvePaths returns the tested and tests paths. A configured path that
// does not exist is a *tactile.ConfigError.
func (o *Orchestrator) resolvePaths() (string, string, error) {
	tested, tests := o.testedPath(), o.testsPath()
	if o.cfg.TestedPath != "" {
		if err := paths.ValidatePath(tested, "test.tested_path"); err != nil {
			return "", "", err
		}
	}
	if o.cfg.TestsPath != "" {
		if err := paths.ValidatePath(tests, "test.tests_path"); err != nil {
			return "", "", err
		}
	}
	return tested, tests, nil
}

// Targets lists environments in run order: plain venvs, then WSL venvs.
// With neither configured the active environment is the single target.
func (o *Orchestrator) Targets(ctx context.Context) ([]Target, error) {
	var targets []Target
	for _, p := range o.cfg.Virtualenvs {
		targets = append(targets, Target{Path: o.paths.Abs(p), Translator: tactile.LocalTranslator{}})
	}
	for _, p := range o.cfg.WSLVirtualenvs {
		targets = append(targets, Target{
			Path:       o.paths.Abs(p),
			Translator: tactile.WSLTranslator{Distribution: o.venvCfg.WSLDistribution},
		})
	}
	if len(targets) > 0 {
		return targets, nil
	}

	active, err := venv.ActivePath(ctx, o.executor)
	if err != nil {
		return nil, fmt.Errorf("no virtualenvs configured and the active environment is unknown: %w", err)
	}
	return []Target{{Path: active, Translator: tactile.LocalTranslator{}, Fallback: true}}, nil
}

// Run executes the whole orchestration. It returns immediately, without any
// subprocess, when run_tests is off.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{State: StateIdle}

	if !o.cfg.RunTests {
		logging.Tests("Tests disabled, skipping")
		o.setState(StateDone, -1)
		report.State = StateDone
		report.Skipped = true
		return report, nil
	}

	fail := func(err error) (*Report, error) {
		o.setState(StateFailed, o.Current())
		report.State = StateFailed
		report.Duration = time.Since(start)
		logging.TestsError("Test run failed: %v", err)
		return report, err
	}

	testedPath, testsPath, err := o.resolvePaths()
	if err != nil {
		return fail(err)
	}

	o.setState(StatePreparing, -1)
	if len(o.cfg.PrepareTestVenvs) > 0 {
		base := o.paths.Abs(o.cfg.PrepareTestVenvsPath)
		if err := venv.Prepare(ctx, o.executor, base, o.cfg.PrepareTestVenvs, o.venvCfg); err != nil {
			return fail(err)
		}
	}

	targets, err := o.Targets(ctx)
	if err != nil {
		return fail(err)
	}

	syncFolder := o.paths.Root
	if o.cfg.SyncTestRequirementsPath != "" {
		syncFolder = o.paths.Abs(o.cfg.SyncTestRequirementsPath)
	}

	logging.Tests("Running tests in %d environments", len(targets))
	for i, target := range targets {
		o.setState(StateRunning, i)

		v := venv.New(target.Path, o.executor, venv.WithTranslator(target.Translator))
		line := o.CommandLine(i, target.Translator, testedPath, testsPath)

		if !v.Installed() {
			return fail(&tactile.EnvironmentMissingError{Path: target.Path})
		}

		if o.cfg.SyncTestRequirements.Enabled() {
			if err := v.SyncRequirements(ctx, o.cfg.SyncTestRequirements, syncFolder, o.cfg.SelfPackages); err != nil {
				return fail(err)
			}
		} else if err := v.Install(ctx, o.cfg.SelfPackages...); err != nil {
			return fail(err)
		}

		cmd := v.Command(line, testedPath)
		cmd.Stream = o.cfg.Verbosity == 2
		cmd.RequestID = o.requestID
		if cmd.Tags == nil {
			cmd.Tags = map[string]string{}
		}
		cmd.Tags["stage"] = "tests"
		cmd.Tags["environment"] = target.Path

		logging.Tests("[%d/%d] %s (%s)", i+1, len(targets), target.Path, target.Translator.Name())
		envStart := time.Now()
		result, err := tactile.Run(ctx, o.executor, cmd, FailureHeader)
		if err != nil {
			return fail(err)
		}

		report.Environments = append(report.Environments, EnvironmentResult{
			Path:        target.Path,
			Personality: target.Translator.Name(),
			Command:     line,
			Coverage:    i == 0 && o.cfg.TestCoverage,
			ExitCode:    result.ExitCode,
			Duration:    time.Since(envStart),
		})
	}

	o.setState(StateAggregating, -1)
	if o.cfg.TestCoverage {
		report.CoverageXML = filepath.Join(testsPath, "coverage.xml")
		data := filepath.Join(testedPath, ".coverage")
		if err := os.Remove(data); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fail(fmt.Errorf("failed to remove coverage data: %w", err))
		}
	}

	o.setState(StateDone, -1)
	report.State = StateDone
	report.Duration = time.Since(start)
	logging.Tests("All tests passed in %d environments (%s)", len(targets), report.Duration.Round(time.Millisecond))
	return report, nil
}
