package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
	"github.com/couchcryptid/hive-weight-etl/internal/segment"
)

// ModelStore persists the fitted models of one year, keyed "{year}-{scale}".
type ModelStore interface {
	SaveModels(models map[string]*segment.Model) error
}

// SegmenterConfig holds the orchestration parameters.
type SegmenterConfig struct {
	// MinMonth and MaxMonth ("-MM-DD") bound the season window of each year, exclusive.
	MinMonth string
	MaxMonth string
	// Workers bounds the number of scales fitted concurrently within a year.
	Workers int
}

// SegmentResult is the output of a segmentation pass.
type SegmentResult struct {
	Rows      []domain.SegmentRow
	Models    map[string]*segment.Model
	Segmented int
	Skipped   int
}

// Segmenter runs the segmentation engine and weather aggregator over every (year, scale) unit.
type Segmenter struct {
	engine  *segment.Engine
	store   ModelStore
	cfg     SegmenterConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewSegmenter creates a Segmenter. Workers below 1 means sequential processing.
func NewSegmenter(engine *segment.Engine, store ModelStore, cfg SegmenterConfig, metrics *observability.Metrics, logger *slog.Logger) *Segmenter {
	cfg.Workers = max(cfg.Workers, 1)
	return &Segmenter{engine: engine, store: store, cfg: cfg, metrics: metrics, logger: logger}
}

type unitResult struct {
	rows    []domain.SegmentRow
	model   *segment.Model
	skipped error
}

// Run segments rows year by year in ascending order. A unit whose fit is degenerate is logged
// and skipped; a year without rows inside its window is skipped. Each year's models are saved
// once all its scales are done. Output rows are ordered by year, scale and segment.
func (s *Segmenter) Run(ctx context.Context, rows []domain.EnrichedRow) (SegmentResult, error) {
	byYear := make(map[int][]domain.EnrichedRow)
	for _, r := range rows {
		y, err := domain.YearOf(r.Date)
		if err != nil {
			return SegmentResult{}, err
		}
		byYear[y] = append(byYear[y], r)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	res := SegmentResult{Models: make(map[string]*segment.Model)}
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return SegmentResult{}, err
		}
		yearRows, yearModels, skipped, err := s.runYear(ctx, year, byYear[year])
		if err != nil {
			return SegmentResult{}, err
		}
		if len(yearModels) > 0 {
			if err := s.store.SaveModels(yearModels); err != nil {
				return SegmentResult{}, fmt.Errorf("save models of %d: %w", year, err)
			}
		}
		res.Rows = append(res.Rows, yearRows...)
		for k, m := range yearModels {
			res.Models[k] = m
		}
		res.Segmented += len(yearModels)
		res.Skipped += skipped
	}
	return res, nil
}

func (s *Segmenter) runYear(ctx context.Context, year int, rows []domain.EnrichedRow) ([]domain.SegmentRow, map[string]*segment.Model, int, error) {
	lo := strconv.Itoa(year) + s.cfg.MinMonth
	hi := strconv.Itoa(year) + s.cfg.MaxMonth

	byScale := make(map[string][]domain.EnrichedRow)
	for _, r := range rows {
		if r.Date > lo && r.Date < hi {
			byScale[r.Bal] = append(byScale[r.Bal], r)
		}
	}
	if len(byScale) == 0 {
		s.logger.Warn("no rows inside season window, skipping year", "year", year, "from", lo, "to", hi)
		s.metrics.YearsSkipped.Inc()
		return nil, nil, 0, nil
	}

	scales := make([]string, 0, len(byScale))
	for sc := range byScale {
		scales = append(scales, sc)
	}
	sort.Strings(scales)

	results := make([]unitResult, len(scales))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, scale := range scales {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := s.runUnit(year, scale, byScale[scale])
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, 0, err
	}

	var out []domain.SegmentRow
	models := make(map[string]*segment.Model)
	skipped := 0
	for i, r := range results {
		if r.skipped != nil {
			s.logger.Warn("segmentation failed, skipping scale", "year", year, "scale", scales[i], "error", r.skipped)
			s.metrics.UnitsSkipped.Inc()
			skipped++
			continue
		}
		out = append(out, r.rows...)
		models[r.model.Key] = r.model
		s.metrics.UnitsSegmented.Inc()
		s.metrics.SegmentsProduced.Add(float64(len(r.rows)))
	}
	s.logger.Info("year segmented", "year", year, "scales", len(models), "skipped", skipped, "rows", len(out))
	return out, models, skipped, nil
}

// runUnit fits one (year, scale) unit and joins its segments with their weather summaries.
// A degenerate fit is reported through unitResult.skipped rather than as an error.
func (s *Segmenter) runUnit(year int, scale string, rows []domain.EnrichedRow) (unitResult, error) {
	segments, model, err := s.engine.SegmentWeight(year, scale, rows)
	if err != nil {
		if errors.Is(err, domain.ErrDegenerateFit) {
			return unitResult{skipped: err}, nil
		}
		return unitResult{}, err
	}
	obs, err := segment.Observations(year, rows)
	if err != nil {
		return unitResult{}, err
	}
	summaries := segment.SummarizeWeather(scale, obs, segments)
	return unitResult{rows: joinSegments(year, segments, summaries), model: model}, nil
}

// joinSegments inner-joins segments with summaries on (scale, segment index).
func joinSegments(year int, segments []domain.WeightSegment, summaries []domain.WeatherSummary) []domain.SegmentRow {
	type key struct {
		scale   string
		segment int
	}
	idx := make(map[key]domain.WeatherSummary, len(summaries))
	for _, w := range summaries {
		idx[key{w.Scale, w.Segment}] = w
	}
	out := make([]domain.SegmentRow, 0, len(segments))
	for _, seg := range segments {
		w, ok := idx[key{seg.Scale, seg.Segment}]
		if !ok {
			continue
		}
		out = append(out, domain.SegmentRow{Year: year, WeightSegment: seg, Weather: w})
	}
	return out
}
