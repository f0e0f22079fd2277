package segment_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/segment"
)

func mildDay() domain.WeatherDay {
	return domain.WeatherDay{
		WeatherCode:       3,
		TemperatureMin:    10,
		TemperatureMax:    22,
		PrecipitationSum:  1,
		RainSum:           0.5,
		SnowfallSum:       0,
		WindSpeedMax:      12,
		WindDirectionMode: 200,
	}
}

func obsAt(offsets ...float64) []segment.Observation {
	out := make([]segment.Observation, len(offsets))
	for i, off := range offsets {
		out[i] = segment.Observation{Offset: off, Weather: mildDay()}
	}
	return out
}

func TestSummarizeWeather_CountsStrictlyInside(t *testing.T) {
	segs := []domain.WeightSegment{
		{Segment: 1, Start: 0, End: 10, Scale: "A"},
		{Segment: 2, Start: 10, End: 20, Scale: "A"},
	}
	var offsets []float64
	for d := 0; d <= 20; d++ {
		offsets = append(offsets, float64(d))
	}

	got := segment.SummarizeWeather("A", obsAt(offsets...), segs)
	require.Len(t, got, 2)
	for i, s := range got {
		assert.Equal(t, i+1, s.Segment)
		assert.Equal(t, "A", s.Scale)
		total := s.TminTooCold + s.TminOpti + s.TminHot + s.TminTooHot
		assert.Equal(t, 9, total, "segment %d", s.Segment)
		assert.Equal(t, 9, s.TminTooCold)
		assert.Equal(t, 9, s.TmaxOpti)
		assert.Equal(t, 9, s.DaysAverageWind)
		assert.Equal(t, 9, s.S)
		assert.InDelta(t, 9.0, s.Precipitation, 1e-9)
		assert.InDelta(t, 4.5, s.Rain, 1e-9)
		assert.Equal(t, 9, s.WeatherCode[0])
	}
}

func TestSummarizeWeather_EmptySegmentIsZeroFilled(t *testing.T) {
	segs := []domain.WeightSegment{{Segment: 1, Start: 100, End: 101, Scale: "A"}}

	got := segment.SummarizeWeather("A", obsAt(10, 20, 30), segs)
	require.Len(t, got, 1)
	assert.Equal(t, domain.WeatherSummary{Scale: "A", Segment: 1}, got[0])
}

func TestSummarizeWeather_NoSegments(t *testing.T) {
	got := segment.SummarizeWeather("A", obsAt(1, 2), nil)
	assert.Empty(t, got)
}

func TestSummarizeWeather_BandEdges(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*domain.WeatherDay)
		check func(t *testing.T, s domain.WeatherSummary)
	}{
		{"tmin 15 is too cold", func(w *domain.WeatherDay) { w.TemperatureMin = 15 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.TminTooCold) }},
		{"tmin just above 15 is opti", func(w *domain.WeatherDay) { w.TemperatureMin = 15.1 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.TminOpti) }},
		{"tmax 30 is opti", func(w *domain.WeatherDay) { w.TemperatureMax = 30 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.TmaxOpti) }},
		{"tmax 40 is hot", func(w *domain.WeatherDay) { w.TemperatureMax = 40 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.TmaxHot) }},
		{"tmax above 40 is too hot", func(w *domain.WeatherDay) { w.TemperatureMax = 40.5 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.TmaxTooHot) }},
		{"nan tmin counts nowhere", func(w *domain.WeatherDay) { w.TemperatureMin = math.NaN() }, func(t *testing.T, s domain.WeatherSummary) {
			assert.Zero(t, s.TminTooCold+s.TminOpti+s.TminHot+s.TminTooHot)
		}},
		{"wind 10.8 counts nowhere", func(w *domain.WeatherDay) { w.WindSpeedMax = 10.8 }, func(t *testing.T, s domain.WeatherSummary) {
			assert.Zero(t, s.DaysWeakWind+s.DaysAverageWind+s.DaysStrongWind)
		}},
		{"wind below 10.8 is weak", func(w *domain.WeatherDay) { w.WindSpeedMax = 3 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.DaysWeakWind) }},
		{"wind above 25.2 is strong", func(w *domain.WeatherDay) { w.WindSpeedMax = 30 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.DaysStrongWind) }},
		{"direction 350 is N", func(w *domain.WeatherDay) { w.WindDirectionMode = 350 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.N) }},
		{"direction 10 is N", func(w *domain.WeatherDay) { w.WindDirectionMode = 10 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.N) }},
		{"direction 22.5 is NE", func(w *domain.WeatherDay) { w.WindDirectionMode = 22.5 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.NE) }},
		{"direction 90 is E", func(w *domain.WeatherDay) { w.WindDirectionMode = 90 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.E) }},
		{"direction 135 is SE", func(w *domain.WeatherDay) { w.WindDirectionMode = 135 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.SE) }},
		{"direction 225 is SW", func(w *domain.WeatherDay) { w.WindDirectionMode = 225 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.SW) }},
		{"direction 270 is W", func(w *domain.WeatherDay) { w.WindDirectionMode = 270 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.W) }},
		{"direction 337.4 is NW", func(w *domain.WeatherDay) { w.WindDirectionMode = 337.4 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.NW) }},
		{"code 19 is group 1", func(w *domain.WeatherDay) { w.WeatherCode = 19 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.WeatherCode[0]) }},
		{"code 20 is group 2", func(w *domain.WeatherDay) { w.WeatherCode = 20 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.WeatherCode[1]) }},
		{"code 61 is group 6", func(w *domain.WeatherDay) { w.WeatherCode = 61 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.WeatherCode[5]) }},
		{"code 79 is group 7", func(w *domain.WeatherDay) { w.WeatherCode = 79 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.WeatherCode[6]) }},
		{"code 95 is group 8", func(w *domain.WeatherDay) { w.WeatherCode = 95 }, func(t *testing.T, s domain.WeatherSummary) { assert.Equal(t, 1, s.WeatherCode[7]) }},
		{"code 120 is ungrouped", func(w *domain.WeatherDay) { w.WeatherCode = 120 }, func(t *testing.T, s domain.WeatherSummary) {
			assert.Equal(t, [domain.WeatherCodeBuckets]int{}, s.WeatherCode)
		}},
		{"nan precipitation is skipped", func(w *domain.WeatherDay) { w.PrecipitationSum = math.NaN() }, func(t *testing.T, s domain.WeatherSummary) {
			assert.InDelta(t, 0, s.Precipitation, 0)
		}},
	}
	segs := []domain.WeightSegment{{Segment: 1, Start: 0, End: 2, Scale: "A"}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := mildDay()
			tt.edit(&w)
			got := segment.SummarizeWeather("A", []segment.Observation{{Offset: 1, Weather: w}}, segs)
			require.Len(t, got, 1)
			tt.check(t, got[0])
		})
	}
}

func TestObservations_SkipsRowsWithoutWeather(t *testing.T) {
	rows := []domain.EnrichedRow{
		{DailyReading: domain.DailyReading{Date: "2022-01-03"}, Weather: mildDay(), HasWeather: true},
		{DailyReading: domain.DailyReading{Date: "2022-01-04"}},
		{DailyReading: domain.DailyReading{Date: "2022-02-01"}, Weather: mildDay(), HasWeather: true},
	}

	got, err := segment.Observations(2022, rows)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 2, got[0].Offset, 0)
	assert.InDelta(t, 31, got[1].Offset, 0)
}
