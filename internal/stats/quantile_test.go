package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantile(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}
	tests := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{0.25, 2},
		{0.5, 3},
		{0.9, 4.6},
		{1, 5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Quantile(values, tt.q), 1e-12, "q=%v", tt.q)
	}
	assert.Equal(t, []float64{4, 1, 3, 2, 5}, values, "input is not sorted in place")
}

func TestQuantile_Degenerate(t *testing.T) {
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
	assert.True(t, math.IsNaN(Quantile([]float64{1, math.NaN()}, 0.5)))
	assert.InDelta(t, 7, Quantile([]float64{7}, 0.995), 0)
}

func TestMedian_EvenLength(t *testing.T) {
	assert.InDelta(t, 2.5, Median([]float64{1, 2, 3, 4}), 1e-12)
}

func TestZScores(t *testing.T) {
	scores, ok := ZScores([]float64{1, 2, 3})
	assert.True(t, ok)
	assert.InDeltaSlice(t, []float64{-math.Sqrt(1.5), 0, math.Sqrt(1.5)}, scores, 1e-12)

	_, ok = ZScores([]float64{5, 5, 5})
	assert.False(t, ok, "zero deviation")
	_, ok = ZScores(nil)
	assert.False(t, ok)
}

func TestMinMax(t *testing.T) {
	lo, hi := MinMax([]float64{3, -1, 8})
	assert.InDelta(t, -1, lo, 0)
	assert.InDelta(t, 8, hi, 0)

	lo, hi = MinMax(nil)
	assert.True(t, math.IsNaN(lo) && math.IsNaN(hi))
}
