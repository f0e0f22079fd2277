// Command validate checks the integrity of a finished run: the segmented table against its
// own invariants, and optionally against the enriched table and the saved models it was
// derived from.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -segmented storage/cleaned_data/segmented_data.csv \
//	  -enriched storage/cleaned_data/cleaned_data_with_weather_and_cartographic_data.csv \
//	  -models storage/segmentation_models \
//	  -breakpoints 7
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"

	"github.com/couchcryptid/hive-weight-etl/internal/adapter/modelstore"
	"github.com/couchcryptid/hive-weight-etl/internal/adapter/tablefile"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/segment"
)

const tolerance = 1e-6

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// unit is the segments of one (year, scale), in segment order.
type unit struct {
	year     int
	scale    string
	segments []domain.SegmentRow
}

func (u unit) key() string { return domain.ModelKey(u.year, u.scale) }

func main() {
	segmentedPath := flag.String("segmented", "", "path to the segmented table")
	enrichedPath := flag.String("enriched", "", "optional path to the enriched daily table")
	modelsDir := flag.String("models", "", "optional directory of saved segment models")
	breakpoints := flag.Int("breakpoints", 0, "expected breakpoints per unit, 0 to skip the check")
	minMonth := flag.String("min-month", "-04-01", "season window start, exclusive")
	maxMonth := flag.String("max-month", "-09-01", "season window end, exclusive")
	flag.Parse()

	if *segmentedPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*segmentedPath, *enrichedPath, *modelsDir, *breakpoints, *minMonth, *maxMonth))
}

func run(segmentedPath, enrichedPath, modelsDir string, breakpoints int, minMonth, maxMonth string) int {
	fmt.Println("=== Segmented Data Integrity Validation ===")
	fmt.Println()

	table, err := tablefile.ReadFile(segmentedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load segmented table: %v\n", err)
		return 1
	}

	phases := []*phase{validateSchema(table)}
	rows, err := tablefile.SegmentRows(table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode segmented table: %v\n", err)
		return 1
	}
	units := groupUnits(rows)

	phases = append(phases,
		validatePartition(units, breakpoints),
		validateWeatherCounts(units),
	)

	if enrichedPath != "" {
		t, err := tablefile.ReadFile(enrichedPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load enriched table: %v\n", err)
			return 1
		}
		enriched, err := tablefile.EnrichedRows(t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: decode enriched table: %v\n", err)
			return 1
		}
		phases = append(phases, validateAgainstEnriched(units, enriched, minMonth, maxMonth))
	}

	if modelsDir != "" {
		models, err := modelstore.New(modelsDir, slog.Default()).LoadAll()
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load models: %v\n", err)
			return 1
		}
		phases = append(phases, validateModels(units, models))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Segments: %d rows over %d (year, scale) units\n", len(rows), len(units))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func groupUnits(rows []domain.SegmentRow) []unit {
	idx := make(map[string]int)
	var units []unit
	for _, r := range rows {
		k := domain.ModelKey(r.Year, r.Scale)
		i, ok := idx[k]
		if !ok {
			i = len(units)
			idx[k] = i
			units = append(units, unit{year: r.Year, scale: r.Scale})
		}
		units[i].segments = append(units[i].segments, r)
	}
	for i := range units {
		sort.SliceStable(units[i].segments, func(a, b int) bool {
			return units[i].segments[a].Segment < units[i].segments[b].Segment
		})
	}
	return units
}

// ── Phase 1: Schema ──

func validateSchema(t tablefile.Table) *phase {
	p := &phase{name: "Phase 1: Schema"}
	have := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		have[c.Name] = true
	}
	for _, c := range tablefile.SegmentColumns() {
		if !have[c.Name] {
			p.errorf("missing column %q", c.Name)
		}
	}
	if len(t.Rows) == 0 {
		p.errorf("table has no rows")
	}
	return p
}

// ── Phase 2: Partition ──
// Segments of a unit are numbered from 1 without gaps and tile the observed day range.

func validatePartition(units []unit, breakpoints int) *phase {
	p := &phase{name: "Phase 2: Segment Partition"}
	for _, u := range units {
		if breakpoints > 0 && len(u.segments) != breakpoints+1 {
			p.errorf("%s: %d segments, want %d", u.key(), len(u.segments), breakpoints+1)
		}
		for i, s := range u.segments {
			if s.Segment != i+1 {
				p.errorf("%s: segment %d at position %d", u.key(), s.Segment, i+1)
			}
			if s.Start > s.End {
				p.errorf("%s/%d: start %.3f after end %.3f", u.key(), s.Segment, s.Start, s.End)
			}
			if i > 0 && !near(u.segments[i-1].End, s.Start) {
				p.errorf("%s/%d: starts at %.3f but previous segment ends at %.3f", u.key(), s.Segment, s.Start, u.segments[i-1].End)
			}
			if !near(s.WeightDiff, s.WeightEnd-s.WeightStart) {
				p.errorf("%s/%d: weight diff %.3f, want %.3f", u.key(), s.Segment, s.WeightDiff, s.WeightEnd-s.WeightStart)
			}
			if span := s.End - s.Start; span > 0 {
				if slope := s.WeightDiff / span; math.Abs(slope-s.Slope) > 1e-3*math.Max(1, math.Abs(s.Slope)) {
					p.errorf("%s/%d: slope %.3f does not match weight change %.3f per day", u.key(), s.Segment, s.Slope, slope)
				}
			}
		}
	}
	return p
}

// ── Phase 3: Weather Counts ──
// Band counts never exceed the number of whole days strictly inside a segment.

func validateWeatherCounts(units []unit) *phase {
	p := &phase{name: "Phase 3: Weather Band Counts"}
	for _, u := range units {
		for _, s := range u.segments {
			w := s.Weather
			days := max(0, int(math.Ceil(s.End))-int(math.Floor(s.Start))-1)
			groups := map[string][]int{
				"tmin":      {w.TminTooCold, w.TminOpti, w.TminHot, w.TminTooHot},
				"tmax":      {w.TmaxTooCold, w.TmaxOpti, w.TmaxHot, w.TmaxTooHot},
				"wind":      {w.DaysWeakWind, w.DaysAverageWind, w.DaysStrongWind},
				"direction": {w.N, w.NE, w.E, w.SE, w.S, w.SW, w.W, w.NW},
				"code":      w.WeatherCode[:],
			}
			for name, counts := range groups {
				total := 0
				for _, c := range counts {
					if c < 0 {
						p.errorf("%s/%d: negative %s count", u.key(), s.Segment, name)
					}
					total += c
				}
				if total > days {
					p.errorf("%s/%d: %d %s days for %d days inside the segment", u.key(), s.Segment, total, name, days)
				}
			}
			for name, v := range map[string]float64{"precipitation": w.Precipitation, "rain": w.Rain, "snowfall": w.Snowfall} {
				if v < 0 || math.IsNaN(v) {
					p.errorf("%s/%d: invalid %s sum %v", u.key(), s.Segment, name, v)
				}
			}
		}
	}
	return p
}

// ── Phase 4: Enriched Consistency ──
// Boundaries match the observed window and summaries recompute from the enriched rows.

func validateAgainstEnriched(units []unit, enriched []domain.EnrichedRow, minMonth, maxMonth string) *phase {
	p := &phase{name: "Phase 4: Enriched Consistency"}
	byUnit := make(map[string][]domain.EnrichedRow)
	for _, r := range enriched {
		year, err := domain.YearOf(r.Date)
		if err != nil {
			p.errorf("enriched row: %v", err)
			continue
		}
		y := fmt.Sprint(year)
		if r.Date > y+minMonth && r.Date < y+maxMonth {
			k := domain.ModelKey(year, r.Bal)
			byUnit[k] = append(byUnit[k], r)
		}
	}

	for _, u := range units {
		rows := byUnit[u.key()]
		if len(rows) == 0 {
			p.errorf("%s: no enriched rows inside the season window", u.key())
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, r := range rows {
			off, err := domain.DayOffset(r.Date, u.year)
			if err != nil {
				p.errorf("%s: %v", u.key(), err)
				continue
			}
			lo, hi = math.Min(lo, float64(off)), math.Max(hi, float64(off))
		}
		first, last := u.segments[0], u.segments[len(u.segments)-1]
		if !near(first.Start, lo) || !near(last.End, hi) {
			p.errorf("%s: segments span [%.1f, %.1f], observed days span [%.0f, %.0f]", u.key(), first.Start, last.End, lo, hi)
		}

		obs, err := segment.Observations(u.year, rows)
		if err != nil {
			p.errorf("%s: %v", u.key(), err)
			continue
		}
		segs := make([]domain.WeightSegment, len(u.segments))
		for i, s := range u.segments {
			segs[i] = s.WeightSegment
		}
		for i, want := range segment.SummarizeWeather(u.scale, obs, segs) {
			if !sameSummary(want, u.segments[i].Weather) {
				p.errorf("%s/%d: weather summary does not recompute from the enriched rows", u.key(), want.Segment)
			}
		}
	}
	return p
}

func sameSummary(a, b domain.WeatherSummary) bool {
	fa, fb := a, b
	fa.Precipitation, fa.Rain, fa.Snowfall = 0, 0, 0
	fb.Precipitation, fb.Rain, fb.Snowfall = 0, 0, 0
	return fa == fb &&
		near(a.Precipitation, b.Precipitation) &&
		near(a.Rain, b.Rain) &&
		near(a.Snowfall, b.Snowfall)
}

// ── Phase 5: Models ──
// Every unit has a saved model whose breakpoints are the interior segment boundaries.

func validateModels(units []unit, models []*segment.Model) *phase {
	p := &phase{name: "Phase 5: Saved Models"}
	byKey := make(map[string]*segment.Model, len(models))
	for _, m := range models {
		byKey[m.Key] = m
	}
	for _, u := range units {
		m, ok := byKey[u.key()]
		if !ok {
			p.errorf("%s: no saved model", u.key())
			continue
		}
		if len(m.Breakpoints) != len(u.segments)-1 {
			p.errorf("%s: model has %d breakpoints for %d segments", u.key(), len(m.Breakpoints), len(u.segments))
			continue
		}
		for i, psi := range m.Breakpoints {
			if !near(psi, u.segments[i].End) {
				p.errorf("%s: breakpoint %d at %.3f, segment %d ends at %.3f", u.key(), i+1, psi, i+1, u.segments[i].End)
			}
		}
	}
	return p
}

func near(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
