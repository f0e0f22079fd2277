package enrich

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// Enricher attaches daily weather and parcel context to daily readings. Either source may be
// nil, in which case that context is left missing.
type Enricher struct {
	weather domain.WeatherSource
	carto   domain.CartoSource
	logger  *slog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(weather domain.WeatherSource, carto domain.CartoSource, logger *slog.Logger) *Enricher {
	return &Enricher{weather: weather, carto: carto, logger: logger}
}

type dayLocation struct {
	date string
	loc  domain.Location
}

// Enrich left-joins each daily reading with the weather of its (date, lat, lon) and the parcel
// context of its (lat, lon). A location whose lookup fails is logged and left without context;
// only context cancellation aborts.
func (e *Enricher) Enrich(ctx context.Context, daily []domain.DailyReading) ([]domain.EnrichedRow, error) {
	windows := LocationWindows(daily)

	weather, err := e.fetchWeather(ctx, windows)
	if err != nil {
		return nil, err
	}
	parcels, err := e.fetchParcels(ctx, windows)
	if err != nil {
		return nil, err
	}

	out := make([]domain.EnrichedRow, len(daily))
	for i, d := range daily {
		loc := domain.Location{Lat: d.Lat, Lon: d.Lon}
		row := domain.EnrichedRow{DailyReading: d, Carto: parcels[loc]}
		if w, ok := weather[dayLocation{date: d.Date, loc: loc}]; ok {
			row.Weather = w
			row.HasWeather = true
		} else {
			row.Weather = domain.MissingWeather(d.Date, d.Lat, d.Lon)
		}
		out[i] = row
	}
	return out, nil
}

func (e *Enricher) fetchWeather(ctx context.Context, windows []domain.LocationWindow) (map[dayLocation]domain.WeatherDay, error) {
	out := make(map[dayLocation]domain.WeatherDay)
	if e.weather == nil {
		return out, nil
	}
	failed := 0
	for _, w := range windows {
		days, err := e.weather.DailyWeather(ctx, w)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			e.logger.Error("weather fetch failed, leaving location without weather",
				"error", err,
				"lat", w.Lat,
				"lon", w.Lon,
				"date_min", w.DateMin,
				"date_max", w.DateMax,
			)
			continue
		}
		for _, d := range days {
			// Rows are keyed by the requested location so they join back exactly.
			key := dayLocation{date: d.Date, loc: w.Location}
			if _, dup := out[key]; dup {
				continue
			}
			d.Lat, d.Lon = w.Lat, w.Lon
			out[key] = d
		}
	}
	e.logger.Info("weather fetched", "locations", len(windows), "failed", failed, "days", len(out))
	return out, nil
}

func (e *Enricher) fetchParcels(ctx context.Context, windows []domain.LocationWindow) (map[domain.Location]domain.CartoInfo, error) {
	out := make(map[domain.Location]domain.CartoInfo, len(windows))
	if e.carto == nil {
		return out, nil
	}
	failed := 0
	for _, w := range windows {
		info, err := e.carto.Parcel(ctx, w.Location)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			e.logger.Error("parcel fetch failed, leaving location without parcel context",
				"error", err,
				"lat", w.Lat,
				"lon", w.Lon,
			)
			continue
		}
		out[w.Location] = info
	}
	e.logger.Info("parcels fetched", "locations", len(windows), "failed", failed)
	return out, nil
}
