package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hive-weight-etl/internal/cleaning"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/enrich"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
)

// Cleaner filters raw readings into a cleaned, time-sorted set.
type Cleaner interface {
	Clean(raw []domain.RawReading) ([]domain.Reading, cleaning.CleanReport, error)
}

// Enricher joins daily readings with weather and cartographic context.
type Enricher interface {
	Enrich(ctx context.Context, daily []domain.DailyReading) ([]domain.EnrichedRow, error)
}

// Transformer runs the clean, aggregate and enrich stages, persisting each stage's table.
type Transformer struct {
	cleaner   Cleaner
	enricher  Enricher
	artifacts ArtifactWriter
	clock     clockwork.Clock
	metrics   *observability.Metrics
}

// NewTransformer creates a Transformer.
func NewTransformer(cleaner Cleaner, enricher Enricher, artifacts ArtifactWriter, clock clockwork.Clock, metrics *observability.Metrics) *Transformer {
	return &Transformer{cleaner: cleaner, enricher: enricher, artifacts: artifacts, clock: clock, metrics: metrics}
}

// Transform cleans raw readings, aggregates them per day and enriches the aggregates. It
// returns the number of cleaned readings alongside the enriched rows.
func (t *Transformer) Transform(ctx context.Context, raw []domain.RawReading, logger *slog.Logger) ([]domain.EnrichedRow, int, error) {
	start := t.clock.Now()
	cleaned, report, err := t.cleaner.Clean(raw)
	for reason, n := range report.Dropped() {
		if n > 0 {
			t.metrics.RowsDropped.WithLabelValues(reason).Add(float64(n))
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("clean readings: %w", err)
	}
	t.metrics.ReadingsCleaned.Add(float64(len(cleaned)))
	if err := t.artifacts.WriteCleaned(cleaned); err != nil {
		return nil, 0, fmt.Errorf("write cleaned table: %w", err)
	}
	t.observe("clean", start)
	logger.Info("readings cleaned", "input", report.Input, "output", report.Output, "swapped", report.Swapped)

	start = t.clock.Now()
	daily := enrich.AggregateDaily(cleaned)
	enriched, err := t.enricher.Enrich(ctx, daily)
	if err != nil {
		return nil, 0, fmt.Errorf("enrich daily readings: %w", err)
	}
	if err := t.artifacts.WriteEnriched(enriched); err != nil {
		return nil, 0, fmt.Errorf("write enriched table: %w", err)
	}
	t.observe("enrich", start)
	logger.Info("daily readings enriched", "days", len(daily), "rows", len(enriched))

	return enriched, len(cleaned), nil
}

func (t *Transformer) observe(stage string, start time.Time) {
	t.metrics.StageDuration.WithLabelValues(stage).Observe(t.clock.Since(start).Seconds())
}
