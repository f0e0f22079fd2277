package domain

import "context"

// WeatherSource provides daily weather indicators for a location.
type WeatherSource interface {
	// DailyWeather returns one WeatherDay per date in [DateMin, DateMax].
	DailyWeather(ctx context.Context, window LocationWindow) ([]WeatherDay, error)
}

// CartoSource provides agricultural parcel context around a location.
type CartoSource interface {
	// Parcel returns the dominant parcel near the location. A zero CartoInfo means none found.
	Parcel(ctx context.Context, loc Location) (CartoInfo, error)
}
