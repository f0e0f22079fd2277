package domain

import "math"

// RawReading is one row of the combined provider export, before cleaning.
// Empty strings, nil pointers and NaN values are treated as missing.
type RawReading struct {
	Bal   string   `json:"bal"`
	Const string   `json:"const"`
	Time  string   `json:"time"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Poids *float64 `json:"poids"`

	// Provider columns dropped during cleaning.
	Name  string `json:"name,omitempty"`
	Ruche string `json:"ruche,omitempty"`
	Qloc  string `json:"qloc,omitempty"`
	Activ string `json:"activ,omitempty"`
}

// Reading is a cleaned scale measurement.
type Reading struct {
	Bal             string  `json:"bal"`
	Const           string  `json:"const"`
	Time            string  `json:"time"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	Poids           float64 `json:"poids"`
	Date            string  `json:"date"`
	CorrectedWeight float64 `json:"corrected_weight"`
}

// DailyReading aggregates one scale's readings for one day at one location.
type DailyReading struct {
	Date         string  `json:"date"`
	Const        string  `json:"const"`
	Bal          string  `json:"bal"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	PoidsMean    float64 `json:"poids_mean"`
	PoidsMedian  float64 `json:"poids_median"`
	PoidsMin     float64 `json:"poids_min"`
	PoidsMax     float64 `json:"poids_max"`
	CorrectedSum float64 `json:"weight_variation_corrected_sum"`
}

// WeatherDay holds the daily indicators for one location. Missing values are NaN.
type WeatherDay struct {
	Date              string  `json:"date"`
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	WeatherCode       float64 `json:"weather_code"`
	TemperatureMax    float64 `json:"temperature_2m_max"`
	TemperatureMin    float64 `json:"temperature_2m_min"`
	PrecipitationSum  float64 `json:"precipitation_sum"`
	RainSum           float64 `json:"rain_sum"`
	SnowfallSum       float64 `json:"snowfall_sum"`
	WindSpeedMax      float64 `json:"wind_speed_10m_max"`
	WindDirectionMode float64 `json:"wind_direction_10m_dominant"`
}

// MissingWeather returns a WeatherDay with every indicator set to NaN.
func MissingWeather(date string, lat, lon float64) WeatherDay {
	nan := math.NaN()
	return WeatherDay{
		Date: date, Lat: lat, Lon: lon,
		WeatherCode: nan, TemperatureMax: nan, TemperatureMin: nan,
		PrecipitationSum: nan, RainSum: nan, SnowfallSum: nan,
		WindSpeedMax: nan, WindDirectionMode: nan,
	}
}

// CartoInfo is the agricultural parcel context around a location.
type CartoInfo struct {
	Culture string `json:"culture,omitempty"`
	Bio     string `json:"bio,omitempty"`
	Legende string `json:"legende,omitempty"`
}

// EnrichedRow is a daily reading joined with its weather and cartographic context.
type EnrichedRow struct {
	DailyReading
	Weather    WeatherDay
	Carto      CartoInfo
	HasWeather bool
}

// Location is a (lat, lon) pair used as a join and request key.
type Location struct {
	Lat float64
	Lon float64
}

// LocationWindow is the date range to request weather for at one location.
type LocationWindow struct {
	Location
	DateMin string
	DateMax string
}
