// Package pipeline wires the cleaning, enrichment and segmentation stages into one batch run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
)

// RawSource loads the combined raw provider readings.
type RawSource interface {
	LoadRaw(ctx context.Context) ([]domain.RawReading, error)
}

// ArtifactWriter persists the table produced by each stage.
type ArtifactWriter interface {
	WriteCleaned(rows []domain.Reading) error
	WriteEnriched(rows []domain.EnrichedRow) error
	WriteSegmented(rows []domain.SegmentRow) error
}

// SegmentPublisher publishes segmented rows to a downstream consumer.
type SegmentPublisher interface {
	PublishSegments(ctx context.Context, rows []domain.SegmentRow) error
}

// RunRecorder stores run records and their segmented rows.
type RunRecorder interface {
	BeginRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, sum domain.RunSummary) error
	SaveSegments(ctx context.Context, runID string, rows []domain.SegmentRow) error
}

// Stages groups the collaborators of a Pipeline. Publisher and Recorder are optional.
type Stages struct {
	Source      RawSource
	Transformer *Transformer
	Segmenter   *Segmenter
	Artifacts   ArtifactWriter
	Publisher   SegmentPublisher
	Recorder    RunRecorder
}

// Pipeline orchestrates one load, transform, segment and publish run.
type Pipeline struct {
	stages  Stages
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	mu      sync.Mutex
	lastRun *domain.RunSummary
}

// New creates a Pipeline with the given stages and observability.
func New(stages Stages, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		stages:  stages,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Ready reports whether at least one run has completed successfully.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// CheckReadiness returns nil once a run has completed successfully,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastRun returns the summary of the most recent finished run.
func (p *Pipeline) LastRun() (domain.RunSummary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRun == nil {
		return domain.RunSummary{}, false
	}
	return *p.lastRun, true
}

// Run executes one full batch and returns its summary. Stage failures abort the run; per-unit
// segmentation failures are skipped and counted.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	started := p.clock.Now()

	logger.Info("pipeline run started")
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if rec := p.stages.Recorder; rec != nil {
		if err := rec.BeginRun(ctx, runID, started); err != nil {
			return domain.RunSummary{RunID: runID, StartedAt: started, Status: domain.RunFailed, Err: err}, fmt.Errorf("record run start: %w", err)
		}
	}

	sum, err := p.run(ctx, runID, logger)
	sum.RunID, sum.StartedAt = runID, started
	if err != nil {
		sum.Status, sum.Err = domain.RunFailed, err
		p.metrics.RunsTotal.WithLabelValues("error").Inc()
		logger.Error("pipeline run failed", "error", err, "duration", p.clock.Since(started))
	} else {
		sum.Status = domain.RunSucceeded
		p.metrics.RunsTotal.WithLabelValues("success").Inc()
		p.ready.Store(true)
		logger.Info("pipeline run completed",
			"readings_loaded", sum.ReadingsLoaded,
			"readings_cleaned", sum.ReadingsCleaned,
			"units_segmented", sum.UnitsSegmented,
			"units_skipped", sum.UnitsSkipped,
			"duration", p.clock.Since(started),
		)
	}

	sum.FinishedAt = p.clock.Now()
	if rec := p.stages.Recorder; rec != nil {
		// The run outcome is recorded even when ctx was cancelled mid-run.
		if ferr := rec.FinishRun(context.WithoutCancel(ctx), runID, sum.FinishedAt, sum); ferr != nil {
			logger.Error("record run outcome failed", "error", ferr)
			err = errors.Join(err, fmt.Errorf("record run outcome: %w", ferr))
		}
	}
	p.mu.Lock()
	p.lastRun = &sum
	p.mu.Unlock()
	return sum, err
}

func (p *Pipeline) run(ctx context.Context, runID string, logger *slog.Logger) (domain.RunSummary, error) {
	var sum domain.RunSummary

	start := p.clock.Now()
	raw, err := p.stages.Source.LoadRaw(ctx)
	if err != nil {
		return sum, fmt.Errorf("load raw readings: %w", err)
	}
	sum.ReadingsLoaded = len(raw)
	p.metrics.ReadingsLoaded.Add(float64(len(raw)))
	p.observe("load", start)
	logger.Info("raw readings loaded", "rows", len(raw))

	enriched, cleaned, err := p.stages.Transformer.Transform(ctx, raw, logger)
	sum.ReadingsCleaned = cleaned
	if err != nil {
		return sum, err
	}

	start = p.clock.Now()
	res, err := p.stages.Segmenter.Run(ctx, enriched)
	if err != nil {
		return sum, fmt.Errorf("segment weights: %w", err)
	}
	sum.UnitsSegmented, sum.UnitsSkipped = res.Segmented, res.Skipped
	if err := p.stages.Artifacts.WriteSegmented(res.Rows); err != nil {
		return sum, fmt.Errorf("write segmented table: %w", err)
	}
	p.observe("segment", start)

	start = p.clock.Now()
	if rec := p.stages.Recorder; rec != nil {
		if err := rec.SaveSegments(ctx, runID, res.Rows); err != nil {
			return sum, fmt.Errorf("store segments: %w", err)
		}
	}
	if pub := p.stages.Publisher; pub != nil {
		if err := pub.PublishSegments(ctx, res.Rows); err != nil {
			return sum, fmt.Errorf("publish segments: %w", err)
		}
	}
	p.observe("publish", start)
	return sum, nil
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(p.clock.Since(start).Seconds())
}
