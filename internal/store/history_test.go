package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), ".pycicd", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func sampleRun(start time.Time) RunRecord {
	return RunRecord{
		ID:         uuid.NewString(),
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Branch:     "main",
		Version:    "1.2.4",
		Status:     StatusFailed,
		Error:      "Tests failed.",
		Steps: []StepRecord{
			{Name: "reformat", Status: StatusOK, Duration: 1200 * time.Millisecond},
			{Name: "docs", Status: StatusSkipped},
			{Name: "test", Status: StatusFailed, Duration: 2 * time.Second, Error: "Tests failed."},
		},
		Commands: []CommandRecord{
			{Command: "black . --line-length 110", Stage: "reformat", Duration: 1100 * time.Millisecond},
			{Command: "sh -c pytest", Stage: "tests", ExitCode: 1, Duration: 1900 * time.Millisecond},
		},
	}
}

func TestRecordAndGetRun(t *testing.T) {
	h := openTemp(t)
	ctx := context.Background()
	rec := sampleRun(time.UnixMilli(time.Now().UnixMilli()))

	require.NoError(t, h.RecordRun(ctx, rec))

	got, err := h.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	if diff := cmp.Diff(rec, *got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("GetRun() mismatch (-want +got):\n%s", diff)
	}

	missing, err := h.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecentRuns(t *testing.T) {
	h := openTemp(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	var ids []string
	for i := 0; i < 5; i++ {
		rec := sampleRun(base.Add(time.Duration(i) * time.Minute))
		ids = append(ids, rec.ID)
		require.NoError(t, h.RecordRun(ctx, rec))
	}

	runs, err := h.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[4], runs[0].ID)
	assert.Equal(t, ids[2], runs[2].ID)
	assert.Len(t, runs[0].Steps, 3)
	assert.Empty(t, runs[0].Commands)
}

func TestRecordRun_DuplicateID(t *testing.T) {
	h := openTemp(t)
	ctx := context.Background()
	rec := sampleRun(time.Now())

	require.NoError(t, h.RecordRun(ctx, rec))
	assert.Error(t, h.RecordRun(ctx, rec))

	runs, err := h.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestPrune(t *testing.T) {
	h := openTemp(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	var last string
	for i := 0; i < 4; i++ {
		rec := sampleRun(base.Add(time.Duration(i) * time.Minute))
		last = rec.ID
		require.NoError(t, h.RecordRun(ctx, rec))
	}

	n, err := h.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	runs, err := h.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, last, runs[0].ID)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := Open(path)
	require.NoError(t, err)
	rec := sampleRun(time.Now())
	require.NoError(t, h.RecordRun(context.Background(), rec))
	require.NoError(t, h.Close())

	h, err = Open(path)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, path, h.Path())

	got, err := h.GetRun(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
