package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestNoopBeforeInitialize(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Tests("running %d environments", 2)
	Get(CategoryVenv).Error("boom")
}

func TestCategoryLoggerIsNamed(t *testing.T) {
	logs := observe(t)

	Tests("running %d environments", 2)
	VenvWarn("venv %s missing", "3.10")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "tests", entries[0].LoggerName)
	assert.Equal(t, "running 2 environments", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "venv", entries[1].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t)

	Get(CategoryPipeline).With("step", "test").Info("starting")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "test", entries[0].ContextMap()["step"])
}

func TestInitializeDisablesCategory(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "pycicd.log")

	err := Initialize(Options{
		Level:      "debug",
		Format:     "json",
		File:       logFile,
		Categories: map[string]bool{"git": false},
	})
	require.NoError(t, err)
	t.Cleanup(func() { SetLogger(nil) })

	assert.False(t, IsCategoryEnabled(CategoryGit))
	assert.True(t, IsCategoryEnabled(CategoryTests))

	Git("should not appear")
	Tests("visible line")
	_ = Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, "visible line"))
	assert.False(t, strings.Contains(out, "should not appear"))
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	err := Initialize(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestTimer(t *testing.T) {
	logs := observe(t)

	timer := StartTimer(CategoryTactile, "op")
	elapsed := timer.StopWithInfo()

	assert.GreaterOrEqual(t, int64(elapsed), int64(0))
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "op completed in")
}
