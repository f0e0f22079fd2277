package domain

import "strconv"

// WeightSegment is one linear piece of a fitted (year, scale) weight trajectory.
type WeightSegment struct {
	Segment     int     `json:"segment"` // 1-based
	Start       float64 `json:"start"`   // day offset
	End         float64 `json:"end"`     // day offset
	Slope       float64 `json:"slope"`   // weight per day
	WeightStart float64 `json:"weight_start"`
	WeightEnd   float64 `json:"weight_end"`
	WeightDiff  float64 `json:"weight_diff"`
	Scale       string  `json:"scale"`
}

// WeatherCodeBuckets is the number of simplified weather code groups.
const WeatherCodeBuckets = 8

// WeatherSummary counts weather days per band over one segment.
type WeatherSummary struct {
	Scale   string `json:"scale"`
	Segment int    `json:"segment"`

	TminTooCold int `json:"tmin_too_cold"`
	TminOpti    int `json:"tmin_opti"`
	TminHot     int `json:"tmin_hot"`
	TminTooHot  int `json:"tmin_too_hot"`

	TmaxTooCold int `json:"tmax_too_cold"`
	TmaxOpti    int `json:"tmax_opti"`
	TmaxHot     int `json:"tmax_hot"`
	TmaxTooHot  int `json:"tmax_too_hot"`

	DaysWeakWind    int `json:"days_weak_wind"`
	DaysAverageWind int `json:"days_average_wind"`
	DaysStrongWind  int `json:"days_strong_wind"`

	N  int `json:"N"`
	NE int `json:"NE"`
	E  int `json:"E"`
	SE int `json:"SE"`
	S  int `json:"S"`
	SW int `json:"SW"`
	W  int `json:"W"`
	NW int `json:"NW"`

	Precipitation float64 `json:"precipitation"`
	Rain          float64 `json:"rain"`
	Snowfall      float64 `json:"snowfall"`

	// WeatherCode[i] counts days in simplified group i+1.
	WeatherCode [WeatherCodeBuckets]int `json:"weather_code"`
}

// SegmentRow is a weight segment joined with its weather summary.
type SegmentRow struct {
	Year int `json:"year"`
	WeightSegment
	Weather WeatherSummary `json:"weather"`
}

// ModelKey returns the "{year}-{scale}" key a fitted model is stored under.
func ModelKey(year int, scale string) string {
	return strconv.Itoa(year) + "-" + scale
}
