// Package segment fits piecewise-linear weight trajectories per (year, scale) and summarises
// the weather observed over each resulting segment.
package segment

import (
	"errors"
	"fmt"
	"math"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// Engine converts one scale's daily weights for one year window into weight segments.
type Engine struct {
	opts   FitOptions
	weight domain.WeightColumn
	clock  clockwork.Clock
}

// NewEngine creates an Engine fitting opts.Breakpoints breakpoints against the weight column.
func NewEngine(opts FitOptions, weight domain.WeightColumn, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{opts: opts, weight: weight, clock: clock}
}

// Breakpoints returns the configured breakpoint count.
func (e *Engine) Breakpoints() int { return e.opts.Breakpoints }

// SegmentWeight fits the rows of one scale for one year and returns one segment per interval
// between consecutive boundaries, where the boundaries are the smallest day offset with a weight,
// the sorted fitted breakpoints and the largest day offset with a weight. Weights at the boundaries are predicted by the
// model rather than read from the observations.
//
// A fit that cannot be made fails with *domain.DegenerateFitError carrying year and scale.
func (e *Engine) SegmentWeight(year int, scale string, rows []domain.EnrichedRow) ([]domain.WeightSegment, *Model, error) {
	if len(rows) == 0 {
		return nil, nil, &domain.DegenerateFitError{Year: year, Scale: scale, Reason: "no rows"}
	}

	x := make([]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		off, err := domain.DayOffset(r.Date, year)
		if err != nil {
			return nil, nil, err
		}
		x[i] = float64(off)
		y[i] = e.weight.Value(r.DailyReading)
	}
	// Rows without a weight are not fitted and do not bound the segments.
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range x {
		if math.IsNaN(y[i]) {
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}

	model, err := Fit(x, y, e.opts)
	if err != nil {
		var degenerate *domain.DegenerateFitError
		if errors.As(err, &degenerate) {
			return nil, nil, &domain.DegenerateFitError{Year: year, Scale: scale, Reason: degenerate.Reason}
		}
		return nil, nil, fmt.Errorf("fit %s: %w", domain.ModelKey(year, scale), err)
	}
	model.Key = domain.ModelKey(year, scale)
	model.Year = year
	model.Scale = scale
	model.FittedAt = e.clock.Now().UTC()

	bounds := make([]float64, 0, len(model.Breakpoints)+2)
	bounds = append(bounds, lo)
	bounds = append(bounds, model.Breakpoints...)
	bounds = append(bounds, hi)

	segments := make([]domain.WeightSegment, len(bounds)-1)
	for i := range segments {
		start, end := bounds[i], bounds[i+1]
		ws, we := model.Predict(start), model.Predict(end)
		segments[i] = domain.WeightSegment{
			Segment:     i + 1,
			Start:       start,
			End:         end,
			Slope:       model.Alphas[i],
			WeightStart: ws,
			WeightEnd:   we,
			WeightDiff:  we - ws,
			Scale:       scale,
		}
	}
	return segments, model, nil
}
