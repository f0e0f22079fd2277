package segment

import (
	"math"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// Observation is one weather-annotated day positioned by its day offset within the year.
type Observation struct {
	Offset  float64
	Weather domain.WeatherDay
}

// Observations positions the rows carrying weather by day offset from January 1 of year.
func Observations(year int, rows []domain.EnrichedRow) ([]Observation, error) {
	out := make([]Observation, 0, len(rows))
	for _, r := range rows {
		if !r.HasWeather {
			continue
		}
		off, err := domain.DayOffset(r.Date, year)
		if err != nil {
			return nil, err
		}
		out = append(out, Observation{Offset: float64(off), Weather: r.Weather})
	}
	return out, nil
}

// SummarizeWeather returns one summary per segment, in segment order, counting the observations
// strictly inside each segment's (Start, End) range. Segments without observations get an
// all-zero summary. Missing indicator values are not counted and not summed.
func SummarizeWeather(scale string, obs []Observation, segments []domain.WeightSegment) []domain.WeatherSummary {
	out := make([]domain.WeatherSummary, len(segments))
	for i, seg := range segments {
		s := domain.WeatherSummary{Scale: scale, Segment: seg.Segment}
		for _, o := range obs {
			if o.Offset > seg.Start && o.Offset < seg.End {
				accumulate(&s, o.Weather)
			}
		}
		out[i] = s
	}
	return out
}

func accumulate(s *domain.WeatherSummary, w domain.WeatherDay) {
	switch temperatureBand(w.TemperatureMin) {
	case bandTooCold:
		s.TminTooCold++
	case bandOpti:
		s.TminOpti++
	case bandHot:
		s.TminHot++
	case bandTooHot:
		s.TminTooHot++
	}
	switch temperatureBand(w.TemperatureMax) {
	case bandTooCold:
		s.TmaxTooCold++
	case bandOpti:
		s.TmaxOpti++
	case bandHot:
		s.TmaxHot++
	case bandTooHot:
		s.TmaxTooHot++
	}

	// 10.8 and 25.2 themselves fall in no band.
	switch v := w.WindSpeedMax; {
	case v < 10.8:
		s.DaysWeakWind++
	case v > 10.8 && v < 25.2:
		s.DaysAverageWind++
	case v > 25.2:
		s.DaysStrongWind++
	}

	switch d := w.WindDirectionMode; {
	case math.IsNaN(d):
	case d >= 337.5 || d < 22.5:
		s.N++
	case d < 67.5:
		s.NE++
	case d < 112.5:
		s.E++
	case d < 157.5:
		s.SE++
	case d < 202.5:
		s.S++
	case d < 247.5:
		s.SW++
	case d < 292.5:
		s.W++
	default:
		s.NW++
	}

	s.Precipitation += nanZero(w.PrecipitationSum)
	s.Rain += nanZero(w.RainSum)
	s.Snowfall += nanZero(w.SnowfallSum)

	if b, ok := weatherCodeBucket(w.WeatherCode); ok {
		s.WeatherCode[b-1]++
	}
}

type band int

const (
	bandNone band = iota
	bandTooCold
	bandOpti
	bandHot
	bandTooHot
)

func temperatureBand(t float64) band {
	switch {
	case math.IsNaN(t):
		return bandNone
	case t <= 15:
		return bandTooCold
	case t <= 30:
		return bandOpti
	case t <= 40:
		return bandHot
	default:
		return bandTooHot
	}
}

// weatherCodeBucket collapses a WMO code into groups 1-8: 0-19 is 1, then one group per ten
// codes up to 70-79, and 80-99 is 8. Codes outside 0-99 have no group.
func weatherCodeBucket(code float64) (int, bool) {
	if math.IsNaN(code) || code < 0 || code > 99 {
		return 0, false
	}
	switch {
	case code <= 19:
		return 1, true
	case code >= 80:
		return 8, true
	default:
		return int(code) / 10, true
	}
}

func nanZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
