package cleaning

import (
	"math"

	"github.com/couchcryptid/hive-weight-etl/internal/stats"
)

// DefaultQuantile is the z-score quantile above which a first difference is treated as a step.
const DefaultQuantile = 0.995

// CorrectZScore removes abrupt step changes from a time-ordered weight series.
//
// The first differences are standardised and every index whose absolute z-score exceeds the
// q-quantile of the z-scores is treated as a step: its difference is subtracted from that
// element and every later one. Detections compound. The input is not modified and the output
// has the same length and starting value.
//
// A series whose differences have zero or undefined spread has no steps and is returned as a
// copy. NaN values propagate.
func CorrectZScore(x []float64, quantile float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if len(x) < 2 {
		return out
	}

	diff := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		diff[i] = x[i] - x[i-1]
	}

	z, ok := stats.ZScores(diff)
	if !ok {
		return out
	}
	threshold := stats.Quantile(z, quantile)
	if math.IsNaN(threshold) {
		return out
	}

	var shift float64
	for i := range out {
		if math.Abs(z[i]) > threshold {
			shift += diff[i]
		}
		out[i] = x[i] - shift
	}
	return out
}
