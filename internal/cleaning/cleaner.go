// Package cleaning turns raw provider scale exports into a deduplicated, time-sorted reading set
// with a step-corrected weight column per scale.
package cleaning

import (
	"log/slog"
	"math"
	"sort"

	"github.com/golang/geo/s2"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// CleanerConfig holds the cleaning parameters.
type CleanerConfig struct {
	// Retained weights satisfy WeightMin < poids < WeightMax.
	WeightMin float64
	WeightMax float64
	// MinDate is compared as a string against the timestamp; rows at or before it are dropped.
	MinDate   string
	SwapScope domain.SwapScope
	// Quantile of the difference z-scores used as the step threshold. Zero means DefaultQuantile.
	Quantile float64
}

// CleanReport counts the rows removed at each step.
type CleanReport struct {
	Input              int `json:"input"`
	Swapped            int `json:"swapped"`
	InvalidCoordinates int `json:"invalid_coordinates"`
	MissingCoordinates int `json:"missing_coordinates"`
	ZeroCoordinates    int `json:"zero_coordinates"`
	WeightOutOfRange   int `json:"weight_out_of_range"`
	MissingFields      int `json:"missing_fields"`
	Duplicates         int `json:"duplicates"`
	BeforeMinDate      int `json:"before_min_date"`
	Output             int `json:"output"`
}

// Dropped returns the per-reason drop counts keyed by a stable reason label.
func (r CleanReport) Dropped() map[string]int {
	return map[string]int{
		"missing_coordinates": r.MissingCoordinates,
		"zero_coordinates":    r.ZeroCoordinates,
		"weight_out_of_range": r.WeightOutOfRange,
		"missing_fields":      r.MissingFields,
		"duplicate":           r.Duplicates,
		"before_min_date":     r.BeforeMinDate,
	}
}

// Cleaner filters and normalises raw readings.
type Cleaner struct {
	cfg    CleanerConfig
	logger *slog.Logger
}

// NewCleaner creates a Cleaner. An empty SwapScope means SwapGlobal.
func NewCleaner(cfg CleanerConfig, logger *slog.Logger) *Cleaner {
	if cfg.SwapScope == "" {
		cfg.SwapScope = domain.SwapGlobal
	}
	if cfg.Quantile == 0 {
		cfg.Quantile = DefaultQuantile
	}
	return &Cleaner{cfg: cfg, logger: logger}
}

// reading is a raw row after the provider columns have been dropped.
type reading struct {
	bal, cst, time string
	lat, lon       float64
	poids          float64
}

type dedupKey struct {
	bal, cst, time string
	lat, lon       float64
	poids          float64
}

// Clean runs the cleaning steps in order and returns the cleaned readings sorted by time.
// It fails with *domain.EmptyResultError when no row survives and with
// *domain.MalformedInputError when a retained timestamp cannot be parsed.
func (c *Cleaner) Clean(raw []domain.RawReading) ([]domain.Reading, CleanReport, error) {
	report := CleanReport{Input: len(raw)}

	rows, swapped := swapInvertedAxes(raw, c.cfg.SwapScope)
	report.Swapped = swapped
	report.InvalidCoordinates = countInvalidCoordinates(rows)
	if report.InvalidCoordinates > 0 {
		c.logger.Warn("coordinates outside WGS-84 range after axis correction",
			"rows", report.InvalidCoordinates,
			"swap_scope", string(c.cfg.SwapScope),
		)
	}

	kept := make([]reading, 0, len(rows))
	seen := make(map[dedupKey]struct{}, len(rows))
	for _, r := range rows {
		if isNull(r.Lat) || isNull(r.Lon) {
			report.MissingCoordinates++
			continue
		}
		if *r.Lat == 0 || *r.Lon == 0 {
			report.ZeroCoordinates++
			continue
		}
		if isNull(r.Poids) || !(*r.Poids > c.cfg.WeightMin && *r.Poids < c.cfg.WeightMax) {
			report.WeightOutOfRange++
			continue
		}
		if r.Bal == "" || r.Const == "" || r.Time == "" {
			report.MissingFields++
			continue
		}
		key := dedupKey{bal: r.Bal, cst: r.Const, time: r.Time, lat: *r.Lat, lon: *r.Lon, poids: *r.Poids}
		if _, dup := seen[key]; dup {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		if r.Time <= c.cfg.MinDate {
			report.BeforeMinDate++
			continue
		}
		kept = append(kept, reading{bal: r.Bal, cst: r.Const, time: r.Time, lat: *r.Lat, lon: *r.Lon, poids: *r.Poids})
	}

	if len(kept) == 0 {
		c.logger.Warn("cleaning produced no rows", "input", report.Input, "dropped", report.Dropped())
		return nil, report, &domain.EmptyResultError{Stage: "clean"}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].time < kept[j].time })

	out := make([]domain.Reading, len(kept))
	for i, r := range kept {
		date, err := domain.DateOf(r.time)
		if err != nil {
			return nil, report, err
		}
		out[i] = domain.Reading{
			Bal: r.bal, Const: r.cst, Time: r.time,
			Lat: r.lat, Lon: r.lon, Poids: r.poids,
			Date: date,
		}
	}

	c.correctPerScale(out)
	report.Output = len(out)
	return out, report, nil
}

// correctPerScale fills CorrectedWeight scale by scale, in time order.
func (c *Cleaner) correctPerScale(rows []domain.Reading) {
	groups := make(map[string][]int)
	for i, r := range rows {
		groups[r.Bal] = append(groups[r.Bal], i)
	}
	for _, idx := range groups {
		series := make([]float64, len(idx))
		for k, i := range idx {
			series[k] = rows[i].Poids
		}
		corrected := CorrectZScore(series, c.cfg.Quantile)
		for k, i := range idx {
			rows[i].CorrectedWeight = corrected[k]
		}
	}
}

// swapInvertedAxes returns a copy of raw with latitude and longitude exchanged. With SwapGlobal
// every row is swapped as soon as one row comes from the inverted-axis provider; with
// SwapRowScoped only that provider's rows are.
func swapInvertedAxes(raw []domain.RawReading, scope domain.SwapScope) ([]domain.RawReading, int) {
	rows := make([]domain.RawReading, len(raw))
	copy(rows, raw)

	swapped := 0
	switch scope {
	case domain.SwapRowScoped:
		for i := range rows {
			if rows[i].Const == domain.InvertedAxisProvider {
				rows[i].Lat, rows[i].Lon = rows[i].Lon, rows[i].Lat
				swapped++
			}
		}
	default:
		if !hasProvider(rows, domain.InvertedAxisProvider) {
			return rows, 0
		}
		for i := range rows {
			rows[i].Lat, rows[i].Lon = rows[i].Lon, rows[i].Lat
		}
		swapped = len(rows)
	}
	return rows, swapped
}

func hasProvider(rows []domain.RawReading, provider string) bool {
	for _, r := range rows {
		if r.Const == provider {
			return true
		}
	}
	return false
}

func countInvalidCoordinates(rows []domain.RawReading) int {
	n := 0
	for _, r := range rows {
		if isNull(r.Lat) || isNull(r.Lon) {
			continue
		}
		if !s2.LatLngFromDegrees(*r.Lat, *r.Lon).IsValid() {
			n++
		}
	}
	return n
}

func isNull(v *float64) bool {
	return v == nil || math.IsNaN(*v)
}
