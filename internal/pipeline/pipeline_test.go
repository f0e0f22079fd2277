package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hive-weight-etl/internal/adapter/tablefile"
	"github.com/couchcryptid/hive-weight-etl/internal/cleaning"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/enrich"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
	"github.com/couchcryptid/hive-weight-etl/internal/pipeline"
	"github.com/couchcryptid/hive-weight-etl/internal/segment"
)

// --- mocks ---

type mockSource struct {
	raw []domain.RawReading
	err error
}

func (m *mockSource) LoadRaw(_ context.Context) ([]domain.RawReading, error) {
	return m.raw, m.err
}

type memArtifacts struct {
	cleaned   []domain.Reading
	enriched  []domain.EnrichedRow
	segmented []domain.SegmentRow
}

func (m *memArtifacts) WriteCleaned(rows []domain.Reading) error {
	m.cleaned = rows
	return nil
}

func (m *memArtifacts) WriteEnriched(rows []domain.EnrichedRow) error {
	m.enriched = rows
	return nil
}

func (m *memArtifacts) WriteSegmented(rows []domain.SegmentRow) error {
	m.segmented = rows
	return nil
}

type memModels struct {
	mu    sync.Mutex
	saves []map[string]*segment.Model
	err   error
}

func (m *memModels) SaveModels(models map[string]*segment.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves = append(m.saves, models)
	return nil
}

type mockPublisher struct {
	published []domain.SegmentRow
	err       error
}

func (m *mockPublisher) PublishSegments(_ context.Context, rows []domain.SegmentRow) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, rows...)
	return nil
}

type mockRecorder struct {
	begun    []string
	finished []domain.RunSummary
	saved    map[string][]domain.SegmentRow
}

func (m *mockRecorder) BeginRun(_ context.Context, runID string, _ time.Time) error {
	m.begun = append(m.begun, runID)
	return nil
}

func (m *mockRecorder) FinishRun(ctx context.Context, _ string, _ time.Time, sum domain.RunSummary) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.finished = append(m.finished, sum)
	return nil
}

func (m *mockRecorder) SaveSegments(_ context.Context, runID string, rows []domain.SegmentRow) error {
	if m.saved == nil {
		m.saved = make(map[string][]domain.SegmentRow)
	}
	m.saved[runID] = rows
	return nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fittedAt = time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)

type harness struct {
	pipeline  *pipeline.Pipeline
	artifacts *memArtifacts
	models    *memModels
	publisher *mockPublisher
	recorder  *mockRecorder
	metrics   *observability.Metrics
}

func newHarness(t *testing.T, raw []domain.RawReading, weather []domain.WeatherDay) *harness {
	t.Helper()
	logger := discardLogger()
	clock := clockwork.NewFakeClockAt(fittedAt)
	h := &harness{
		artifacts: &memArtifacts{},
		models:    &memModels{},
		publisher: &mockPublisher{},
		recorder:  &mockRecorder{},
		metrics:   observability.NewMetricsForTesting(),
	}

	cleaner := cleaning.NewCleaner(cleaning.CleanerConfig{
		WeightMin: 15000,
		WeightMax: 200000,
		MinDate:   "2021-12-31",
	}, logger)
	enricher := enrich.NewEnricher(tablefile.NewWeatherFile(weather), nil, logger)

	opts := segment.DefaultFitOptions()
	opts.Breakpoints = 1
	opts.Restarts = 5
	engine := segment.NewEngine(opts, domain.WeightMax, clock)

	h.pipeline = pipeline.New(pipeline.Stages{
		Source:      &mockSource{raw: raw},
		Transformer: pipeline.NewTransformer(cleaner, enricher, h.artifacts, clock, h.metrics),
		Segmenter: pipeline.NewSegmenter(engine, h.models, pipeline.SegmenterConfig{
			MinMonth: "-04-01",
			MaxMonth: "-09-01",
			Workers:  2,
		}, h.metrics, logger),
		Artifacts: h.artifacts,
		Publisher: h.publisher,
		Recorder:  h.recorder,
	}, clock, logger, h.metrics)
	return h
}

func twoScales() ([]domain.RawReading, []domain.WeatherDay) {
	b1, b2 := defaultSeason("B1"), defaultSeason("B2")
	raw := append(b1.raw(), b2.raw()...)
	return raw, b1.weather()
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw, weather := twoScales()
	h := newHarness(t, raw, weather)

	sum, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunSucceeded, sum.Status)
	assert.Equal(t, len(raw), sum.ReadingsLoaded)
	assert.Equal(t, len(raw), sum.ReadingsCleaned)
	assert.Equal(t, 2, sum.UnitsSegmented)
	assert.Zero(t, sum.UnitsSkipped)
	assert.True(t, h.pipeline.Ready())
	assert.NoError(t, h.pipeline.CheckReadiness(context.Background()))
	last, ok := h.pipeline.LastRun()
	require.True(t, ok)
	assert.Equal(t, sum.RunID, last.RunID)
	assert.Equal(t, fittedAt, last.StartedAt)

	rows := h.artifacts.segmented
	require.Len(t, rows, 4)
	for i, want := range []struct {
		scale   string
		segment int
	}{{"B1", 1}, {"B1", 2}, {"B2", 1}, {"B2", 2}} {
		assert.Equal(t, want.scale, rows[i].Scale)
		assert.Equal(t, want.segment, rows[i].Segment)
		assert.Equal(t, 2022, rows[i].Year)
	}

	first, second := rows[0], rows[1]
	assert.InDelta(t, 91, first.Start, 1e-9)
	assert.InDelta(t, 150, first.End, 0.5)
	assert.InDelta(t, first.End, second.Start, 1e-9)
	assert.InDelta(t, 242, second.End, 1e-9)
	assert.InDelta(t, 200, first.Slope, 0.01)
	assert.InDelta(t, -100, second.Slope, 0.01)
	assert.InDelta(t, first.WeightEnd-first.WeightStart, first.WeightDiff, 1e-9)

	// Weather days strictly inside (91, 150) and (150, 242).
	assert.Equal(t, 58, first.Weather.TmaxOpti)
	assert.Equal(t, 58, first.Weather.TminTooCold)
	assert.Equal(t, 58, first.Weather.DaysWeakWind)
	assert.Equal(t, 58, first.Weather.N)
	assert.Equal(t, 58, first.Weather.WeatherCode[0])
	assert.InDelta(t, 29, first.Weather.Rain, 1e-9)
	assert.Equal(t, 91, second.Weather.TmaxOpti)

	assert.Len(t, h.artifacts.cleaned, len(raw))
	assert.Len(t, h.artifacts.enriched, len(raw))

	require.Len(t, h.models.saves, 1, "models are saved once per year")
	assert.Contains(t, h.models.saves[0], "2022-B1")
	assert.Contains(t, h.models.saves[0], "2022-B2")
	assert.Equal(t, fittedAt, h.models.saves[0]["2022-B1"].FittedAt)

	assert.Equal(t, rows, h.publisher.published)
	require.Len(t, h.recorder.begun, 1)
	assert.Equal(t, rows, h.recorder.saved[h.recorder.begun[0]])
	require.Len(t, h.recorder.finished, 1)
	assert.Equal(t, domain.RunSucceeded, h.recorder.finished[0].Status)

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(h.metrics.SegmentsProduced), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(h.metrics.PipelineRunning), 0)
}

func TestPipeline_Run_SkipsDegenerateScale(t *testing.T) {
	raw, weather := twoScales()
	short := defaultSeason("B3")
	short.to = short.from.AddDate(0, 0, 1)
	raw = append(raw, short.raw()...)
	h := newHarness(t, raw, weather)

	sum, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.UnitsSegmented)
	assert.Equal(t, 1, sum.UnitsSkipped)
	for _, r := range h.artifacts.segmented {
		assert.NotEqual(t, "B3", r.Scale)
	}
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.UnitsSkipped), 0)
}

func TestPipeline_Run_SkipsYearOutsideWindow(t *testing.T) {
	raw, weather := twoScales()
	winter := defaultSeason("B1")
	winter.year = 2023
	winter.from = time.Date(2023, time.January, 5, 0, 0, 0, 0, time.UTC)
	winter.to = time.Date(2023, time.January, 20, 0, 0, 0, 0, time.UTC)
	raw = append(raw, winter.raw()...)
	h := newHarness(t, raw, weather)

	sum, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.UnitsSegmented)
	assert.Len(t, h.artifacts.segmented, 4)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.YearsSkipped), 0)
	require.Len(t, h.models.saves, 1)
}

func TestPipeline_Run_RowsWithoutWeatherAreNotCounted(t *testing.T) {
	raw, _ := twoScales()
	h := newHarness(t, raw, nil)

	_, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, h.artifacts.segmented, 4)
	for _, r := range h.artifacts.segmented {
		assert.Equal(t, domain.WeatherSummary{Scale: r.Scale, Segment: r.Segment}, r.Weather)
	}
}

func TestPipeline_Run_Failures(t *testing.T) {
	tests := []struct {
		name    string
		raw     func(raw []domain.RawReading)
		setup   func(h *harness)
		wantErr string
		is      error
	}{
		{
			name: "empty after cleaning",
			raw: func(raw []domain.RawReading) {
				for i := range raw {
					raw[i].Time = "2020-06-01 08:00:00"
				}
			},
			wantErr: "clean readings",
			is:      domain.ErrEmptyResult,
		},
		{
			name:    "model store",
			setup:   func(h *harness) { h.models.err = errors.New("disk full") },
			wantErr: "save models of 2022",
		},
		{
			name:    "publisher",
			setup:   func(h *harness) { h.publisher.err = errors.New("broker down") },
			wantErr: "publish segments",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, weather := twoScales()
			if tt.raw != nil {
				tt.raw(raw)
			}
			h := newHarness(t, raw, weather)
			if tt.setup != nil {
				tt.setup(h)
			}

			sum, err := h.pipeline.Run(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			assert.Equal(t, domain.RunFailed, sum.Status)
			assert.False(t, h.pipeline.Ready())
			require.Len(t, h.recorder.finished, 1)
			assert.Equal(t, domain.RunFailed, h.recorder.finished[0].Status)
			assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("error")), 0)
		})
	}
}

func TestPipeline_Run_SourceError(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	rec := &mockRecorder{}
	p := pipeline.New(pipeline.Stages{
		Source:   &mockSource{err: &domain.EmptyResultError{Stage: "load ./raw"}},
		Recorder: rec,
	}, clockwork.NewFakeClock(), discardLogger(), metrics)

	sum, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmptyResult)
	assert.Contains(t, err.Error(), "load raw readings")
	assert.Equal(t, domain.RunFailed, sum.Status)
	assert.NotEmpty(t, sum.RunID)
	require.Len(t, rec.finished, 1)
	assert.Error(t, rec.finished[0].Err)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_RecordsOutcomeAfterCancellation(t *testing.T) {
	raw, weather := twoScales()
	h := newHarness(t, raw, weather)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := h.pipeline.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunFailed, sum.Status)
	require.Len(t, h.recorder.finished, 1, "the outcome is recorded on a detached context")
}
