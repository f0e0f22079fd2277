package pipeline_test

import (
	"time"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// season describes a synthetic scale whose daily weight rises until the peak offset and falls
// after it.
type season struct {
	bal      string
	lat, lon float64
	year     int
	from, to time.Time // inclusive days
	base     float64   // weight at from
	peak     int       // day offset of the slope change
	rise     float64   // grams per day before peak
	fall     float64   // grams per day after peak
}

func defaultSeason(bal string) season {
	return season{
		bal:  bal,
		lat:  45.75,
		lon:  4.85,
		year: 2022,
		from: time.Date(2022, time.April, 2, 0, 0, 0, 0, time.UTC),
		to:   time.Date(2022, time.August, 31, 0, 0, 0, 0, time.UTC),
		base: 30000,
		peak: 150,
		rise: 200,
		fall: -100,
	}
}

func (s season) weightAt(day time.Time) float64 {
	origin := time.Date(s.year, time.January, 1, 0, 0, 0, 0, time.UTC)
	start := s.from.Sub(origin).Hours() / 24
	off := day.Sub(origin).Hours() / 24
	peak := float64(s.peak)
	if off <= peak {
		return s.base + s.rise*(off-start)
	}
	return s.base + s.rise*(peak-start) + s.fall*(off-peak)
}

// raw returns one reading per day at 08:00.
func (s season) raw() []domain.RawReading {
	var out []domain.RawReading
	for d := s.from; !d.After(s.to); d = d.AddDate(0, 0, 1) {
		lat, lon, w := s.lat, s.lon, s.weightAt(d)
		out = append(out, domain.RawReading{
			Bal:   s.bal,
			Const: "ACME",
			Time:  d.Add(8 * time.Hour).Format("2006-01-02 15:04:05"),
			Lat:   &lat,
			Lon:   &lon,
			Poids: &w,
			Name:  "hive " + s.bal,
		})
	}
	return out
}

// weather returns one mild, calm day per date of the season at its location.
func (s season) weather() []domain.WeatherDay {
	var out []domain.WeatherDay
	for d := s.from; !d.After(s.to); d = d.AddDate(0, 0, 1) {
		out = append(out, domain.WeatherDay{
			Date:              d.Format(domain.DateLayout),
			Lat:               s.lat,
			Lon:               s.lon,
			WeatherCode:       3,
			TemperatureMax:    22,
			TemperatureMin:    9,
			PrecipitationSum:  0.5,
			RainSum:           0.5,
			SnowfallSum:       0,
			WindSpeedMax:      6,
			WindDirectionMode: 10,
		})
	}
	return out
}

// enriched returns the daily rows of the season as the enrich stage would produce them.
func (s season) enriched() []domain.EnrichedRow {
	weather := s.weather()
	out := make([]domain.EnrichedRow, len(weather))
	for i, w := range weather {
		d, _ := time.Parse(domain.DateLayout, w.Date)
		v := s.weightAt(d)
		out[i] = domain.EnrichedRow{
			DailyReading: domain.DailyReading{
				Date: w.Date, Const: "ACME", Bal: s.bal, Lat: s.lat, Lon: s.lon,
				PoidsMean: v, PoidsMedian: v, PoidsMin: v, PoidsMax: v,
			},
			Weather:    w,
			HasWeather: true,
		}
	}
	return out
}
