package sqlite_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hive-weight-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "results.db"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	started := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	require.NoError(t, store.BeginRun(ctx, "run-1", started))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, run.Status)
	assert.True(t, run.FinishedAt.IsZero())

	require.NoError(t, store.FinishRun(ctx, "run-1", started.Add(90*time.Second), domain.RunSummary{
		Status:          domain.RunFailed,
		ReadingsLoaded:  1200,
		ReadingsCleaned: 1100,
		UnitsSegmented:  3,
		UnitsSkipped:    1,
		Err:             errors.New("publish segments: broker down"),
	}))

	run, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, started, run.StartedAt)
	assert.Equal(t, started.Add(90*time.Second), run.FinishedAt)
	assert.Equal(t, 1100, run.ReadingsCleaned)
	assert.Equal(t, 1, run.UnitsSkipped)
	assert.Equal(t, "publish segments: broker down", run.Error)
}

func TestStore_FinishUnknownRun(t *testing.T) {
	err := openStore(t).FinishRun(context.Background(), "missing", time.Now(), domain.RunSummary{Status: domain.RunSucceeded})
	assert.Error(t, err)
}

func TestStore_SegmentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.BeginRun(ctx, "run-1", time.Now()))

	rows := []domain.SegmentRow{
		{
			Year:          2022,
			WeightSegment: domain.WeightSegment{Segment: 2, Start: 120, End: 150, Slope: 80, WeightStart: 30000, WeightEnd: 32400, WeightDiff: 2400, Scale: "B1"},
			Weather:       domain.WeatherSummary{Scale: "B1", Segment: 2, TmaxOpti: 29, Rain: 12.5},
		},
		{
			Year:          2022,
			WeightSegment: domain.WeightSegment{Segment: 1, Start: 91, End: 120, Slope: math.NaN(), Scale: "B1"},
			Weather:       domain.WeatherSummary{Scale: "B1", Segment: 1},
		},
	}
	require.NoError(t, store.SaveSegments(ctx, "run-1", rows))

	got, err := store.Segments(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Segment)
	assert.True(t, math.IsNaN(got[0].Slope))
	assert.Equal(t, rows[0], got[1])
}

func TestStore_DuplicateSegmentRollsBack(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.BeginRun(ctx, "run-1", time.Now()))

	row := domain.SegmentRow{Year: 2022, WeightSegment: domain.WeightSegment{Segment: 1, Scale: "B1"}}
	err := store.SaveSegments(ctx, "run-1", []domain.SegmentRow{row, row})
	require.Error(t, err)

	got, err := store.Segments(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.Open(ctx, path, logger)
	require.NoError(t, err)
	require.NoError(t, store.BeginRun(ctx, "run-1", time.Now()))
	require.NoError(t, store.Close())

	store, err = sqlite.Open(ctx, path, logger)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.GetRun(ctx, "run-1")
	assert.NoError(t, err)
}
