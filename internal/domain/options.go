package domain

import "fmt"

// InvertedAxisProvider exports latitude and longitude swapped.
const InvertedAxisProvider = "LAB"

// SwapScope selects which rows the inverted-axis correction touches.
type SwapScope string

const (
	// SwapGlobal swaps every row once any InvertedAxisProvider row is present.
	SwapGlobal SwapScope = "global"
	// SwapRowScoped swaps only the InvertedAxisProvider rows.
	SwapRowScoped SwapScope = "row"
)

// ParseSwapScope validates a configured scope.
func ParseSwapScope(s string) (SwapScope, error) {
	switch SwapScope(s) {
	case SwapGlobal, SwapRowScoped:
		return SwapScope(s), nil
	default:
		return "", fmt.Errorf("unknown swap scope %q", s)
	}
}

// WeightColumn names the daily aggregate used as the regression target.
type WeightColumn string

const (
	WeightMean         WeightColumn = "poids_mean"
	WeightMedian       WeightColumn = "poids_median"
	WeightMin          WeightColumn = "poids_min"
	WeightMax          WeightColumn = "poids_max"
	WeightCorrectedSum WeightColumn = "weight_variation_corrected_sum"
)

// ParseWeightColumn validates a configured weight reference.
func ParseWeightColumn(s string) (WeightColumn, error) {
	switch c := WeightColumn(s); c {
	case WeightMean, WeightMedian, WeightMin, WeightMax, WeightCorrectedSum:
		return c, nil
	default:
		return "", &MalformedInputError{Field: "weight_reference", Reason: fmt.Sprintf("unknown column %q", s)}
	}
}

// Value extracts the column from a daily reading.
func (c WeightColumn) Value(d DailyReading) float64 {
	switch c {
	case WeightMean:
		return d.PoidsMean
	case WeightMedian:
		return d.PoidsMedian
	case WeightMin:
		return d.PoidsMin
	case WeightCorrectedSum:
		return d.CorrectedSum
	default:
		return d.PoidsMax
	}
}
