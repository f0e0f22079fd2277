// Package stats holds small numeric helpers shared by the cleaning and aggregation stages.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Quantile returns the q-quantile (0-1) of values using linear interpolation between the
// order statistics at rank (n-1)q. The input is not modified. NaN is returned for an empty
// input or when any value is NaN.
// gonum's stat.Quantile estimators do not interpolate at that rank.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	for _, v := range sorted {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	lo, hi := sorted[lower], sorted[upper]
	if lower == upper || lo == hi {
		return lo
	}
	return lo + (hi-lo)*(pos-float64(lower))
}

// Median is Quantile(values, 0.5).
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// ZScores standardises values with the population standard deviation. ok is false when the
// standard deviation is zero or NaN, in which case no scores are returned.
func ZScores(values []float64) (scores []float64, ok bool) {
	if len(values) == 0 {
		return nil, false
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		return nil, false
	}
	scores = make([]float64, len(values))
	for i, v := range values {
		scores[i] = (v - mean) / std
	}
	return scores, true
}

// MinMax returns the smallest and largest value. Both are NaN for an empty input.
func MinMax(values []float64) (lo, hi float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
