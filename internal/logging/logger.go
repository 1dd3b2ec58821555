// Package logging provides categorized structured logging for pycicd.
// Every subsystem logs through its own category (tests, venv, git, ...) so a
// noisy stage can be silenced from the config without touching the others.
// Until Initialize or SetLogger is called all loggers are no-ops.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // CLI startup, config loading
	CategoryPipeline Category = "pipeline" // Step sequencing
	CategoryTests    Category = "tests"    // Test orchestrator
	CategoryVenv     Category = "venv"     // Virtual environment management
	CategoryTactile  Category = "tactile"  // Subprocess execution
	CategoryGit      Category = "git"      // Version control
	CategoryDocs     Category = "docs"     // Sphinx regeneration
	CategoryPackages Category = "packages" // Version, requirements, build and upload
	CategoryBuild    Category = "build"    // Application bundling
	CategoryReadme   Category = "readme"   // README-derived tests
	CategoryStore    Category = "store"    // Run history
	CategoryWatch    Category = "watch"    // File watching
)

// Options configures the root logger. It mirrors config.LoggingConfig so this
// package does not import config.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // optional extra output path
	Categories map[string]bool // per-category toggles; missing means enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	root       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the root zap logger from opts.
func Initialize(opts Options) error {
	zc := zap.NewProductionConfig()
	if opts.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.DisableStacktrace = true
	zc.Sampling = nil
	zc.OutputPaths = []string{"stderr"}
	if opts.File != "" {
		zc.OutputPaths = append(zc.OutputPaths, opts.File)
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	root = l
	categories = opts.Categories
	loggers = make(map[Category]*Logger)
	return nil
}

// SetLogger replaces the root logger. Category toggles are cleared.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	root = l
	categories = nil
	loggers = make(map[Category]*Logger)
}

// Root returns the root zap logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes buffered log entries.
func Sync() error {
	return Root().Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	base := zap.NewNop()
	if categoryEnabledLocked(category) {
		base = root.Named(string(category))
	}
	l := &Logger{category: category, sugar: base.Sugar()}
	loggers[category] = l
	return l
}

// With returns a logger carrying additional structured fields.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }
func PipelineWarn(format string, args ...interface{})  { Get(CategoryPipeline).Warn(format, args...) }
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Error(format, args...) }

func Tests(format string, args ...interface{})      { Get(CategoryTests).Info(format, args...) }
func TestsDebug(format string, args ...interface{}) { Get(CategoryTests).Debug(format, args...) }
func TestsError(format string, args ...interface{}) { Get(CategoryTests).Error(format, args...) }

func Venv(format string, args ...interface{})      { Get(CategoryVenv).Info(format, args...) }
func VenvDebug(format string, args ...interface{}) { Get(CategoryVenv).Debug(format, args...) }
func VenvWarn(format string, args ...interface{})  { Get(CategoryVenv).Warn(format, args...) }

func Tactile(format string, args ...interface{})      { Get(CategoryTactile).Info(format, args...) }
func TactileDebug(format string, args ...interface{}) { Get(CategoryTactile).Debug(format, args...) }
func TactileWarn(format string, args ...interface{})  { Get(CategoryTactile).Warn(format, args...) }
func TactileError(format string, args ...interface{}) { Get(CategoryTactile).Error(format, args...) }

func Git(format string, args ...interface{})      { Get(CategoryGit).Info(format, args...) }
func GitDebug(format string, args ...interface{}) { Get(CategoryGit).Debug(format, args...) }

func Docs(format string, args ...interface{})      { Get(CategoryDocs).Info(format, args...) }
func DocsDebug(format string, args ...interface{}) { Get(CategoryDocs).Debug(format, args...) }

func Packages(format string, args ...interface{})      { Get(CategoryPackages).Info(format, args...) }
func PackagesDebug(format string, args ...interface{}) { Get(CategoryPackages).Debug(format, args...) }

func Build(format string, args ...interface{})      { Get(CategoryBuild).Info(format, args...) }
func BuildDebug(format string, args ...interface{}) { Get(CategoryBuild).Debug(format, args...) }

func Readme(format string, args ...interface{})      { Get(CategoryReadme).Info(format, args...) }
func ReadmeDebug(format string, args ...interface{}) { Get(CategoryReadme).Debug(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }

func Watch(format string, args ...interface{})      { Get(CategoryWatch).Info(format, args...) }
func WatchDebug(format string, args ...interface{}) { Get(CategoryWatch).Debug(format, args...) }
func WatchWarn(format string, args ...interface{})  { Get(CategoryWatch).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
