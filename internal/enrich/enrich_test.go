package enrich_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/enrich"
)

// --- mocks ---

type mockWeather struct {
	days  map[domain.Location][]domain.WeatherDay
	fail  map[domain.Location]bool
	calls []domain.LocationWindow
}

func (m *mockWeather) DailyWeather(_ context.Context, w domain.LocationWindow) ([]domain.WeatherDay, error) {
	m.calls = append(m.calls, w)
	if m.fail[w.Location] {
		return nil, errors.New("upstream unavailable")
	}
	return m.days[w.Location], nil
}

type mockCarto struct {
	parcels map[domain.Location]domain.CartoInfo
	err     error
}

func (m *mockCarto) Parcel(_ context.Context, loc domain.Location) (domain.CartoInfo, error) {
	if m.err != nil {
		return domain.CartoInfo{}, m.err
	}
	return m.parcels[loc], nil
}

// --- tests ---

func TestAggregateDaily(t *testing.T) {
	rows := []domain.Reading{
		{Date: "2022-05-02", Const: "X", Bal: "A", Lat: 48, Lon: 2, Poids: 20000, CorrectedWeight: 1},
		{Date: "2022-05-01", Const: "X", Bal: "A", Lat: 48, Lon: 2, Poids: 21000, CorrectedWeight: 2},
		{Date: "2022-05-01", Const: "X", Bal: "A", Lat: 48, Lon: 2, Poids: 23000, CorrectedWeight: 3},
		{Date: "2022-05-01", Const: "X", Bal: "A", Lat: 48, Lon: 2, Poids: 22000, CorrectedWeight: 4},
		{Date: "2022-05-01", Const: "X", Bal: "A", Lat: 48, Lon: 2, Poids: 30000, CorrectedWeight: 5},
		{Date: "2022-05-01", Const: "X", Bal: "B", Lat: 47, Lon: 3, Poids: 25000, CorrectedWeight: 6},
	}

	got := enrich.AggregateDaily(rows)

	want := []domain.DailyReading{
		{Date: "2022-05-01", Const: "X", Bal: "A", Lat: 48, Lon: 2, PoidsMean: 24000, PoidsMedian: 22500, PoidsMin: 21000, PoidsMax: 30000, CorrectedSum: 14},
		{Date: "2022-05-01", Const: "X", Bal: "B", Lat: 47, Lon: 3, PoidsMean: 25000, PoidsMedian: 25000, PoidsMin: 25000, PoidsMax: 25000, CorrectedSum: 6},
		{Date: "2022-05-02", Const: "X", Bal: "A", Lat: 48, Lon: 2, PoidsMean: 20000, PoidsMedian: 20000, PoidsMin: 20000, PoidsMax: 20000, CorrectedSum: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AggregateDaily mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateDaily_Empty(t *testing.T) {
	assert.Empty(t, enrich.AggregateDaily(nil))
}

func TestLocationWindows(t *testing.T) {
	daily := []domain.DailyReading{
		{Date: "2022-05-03", Lat: 48, Lon: 2},
		{Date: "2022-05-01", Lat: 48, Lon: 2},
		{Date: "2022-06-10", Lat: 47, Lon: 3},
		{Date: "2022-05-02", Lat: 48, Lon: 2},
	}

	got := enrich.LocationWindows(daily)
	want := []domain.LocationWindow{
		{Location: domain.Location{Lat: 47, Lon: 3}, DateMin: "2022-06-10", DateMax: "2022-06-10"},
		{Location: domain.Location{Lat: 48, Lon: 2}, DateMin: "2022-05-01", DateMax: "2022-05-03"},
	}
	assert.Equal(t, want, got)
}

func TestEnricher_JoinsWeatherAndParcels(t *testing.T) {
	here := domain.Location{Lat: 48, Lon: 2}
	there := domain.Location{Lat: 47, Lon: 3}
	weather := &mockWeather{days: map[domain.Location][]domain.WeatherDay{
		here: {
			{Date: "2022-05-01", TemperatureMax: 21, WeatherCode: 3},
			{Date: "2022-05-02", TemperatureMax: 23, WeatherCode: 61},
		},
	}}
	carto := &mockCarto{parcels: map[domain.Location]domain.CartoInfo{
		here: {Culture: "colza", Bio: "0", Legende: "Colza d'hiver"},
	}}
	e := enrich.NewEnricher(weather, carto, slog.Default())

	daily := []domain.DailyReading{
		{Date: "2022-05-01", Bal: "A", Lat: 48, Lon: 2},
		{Date: "2022-05-03", Bal: "A", Lat: 48, Lon: 2},
		{Date: "2022-05-01", Bal: "B", Lat: 47, Lon: 3},
	}

	got, err := e.Enrich(context.Background(), daily)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.True(t, got[0].HasWeather)
	assert.InDelta(t, 21, got[0].Weather.TemperatureMax, 0)
	assert.InDelta(t, 48, got[0].Weather.Lat, 0)
	assert.Equal(t, "colza", got[0].Carto.Culture)

	assert.False(t, got[1].HasWeather, "no weather for 2022-05-03")
	assert.True(t, math.IsNaN(got[1].Weather.TemperatureMax))
	assert.Equal(t, "colza", got[1].Carto.Culture)

	assert.False(t, got[2].HasWeather)
	assert.Equal(t, domain.CartoInfo{}, got[2].Carto)

	require.Len(t, weather.calls, 2)
	assert.Equal(t, there, weather.calls[0].Location)
	assert.Equal(t, "2022-05-01", weather.calls[1].DateMin)
	assert.Equal(t, "2022-05-03", weather.calls[1].DateMax)
}

func TestEnricher_FetchFailureLeavesContextMissing(t *testing.T) {
	here := domain.Location{Lat: 48, Lon: 2}
	weather := &mockWeather{fail: map[domain.Location]bool{here: true}}
	carto := &mockCarto{err: errors.New("boom")}
	e := enrich.NewEnricher(weather, carto, slog.Default())

	got, err := e.Enrich(context.Background(), []domain.DailyReading{{Date: "2022-05-01", Lat: 48, Lon: 2}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].HasWeather)
	assert.Equal(t, domain.CartoInfo{}, got[0].Carto)
}

func TestEnricher_NilSources(t *testing.T) {
	e := enrich.NewEnricher(nil, nil, slog.Default())

	got, err := e.Enrich(context.Background(), []domain.DailyReading{{Date: "2022-05-01", Lat: 48, Lon: 2, PoidsMax: 1}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].HasWeather)
	assert.InDelta(t, 1, got[0].PoidsMax, 0)
}

func TestEnricher_CancelledContext(t *testing.T) {
	weather := &mockWeather{fail: map[domain.Location]bool{{Lat: 48, Lon: 2}: true}}
	e := enrich.NewEnricher(weather, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Enrich(ctx, []domain.DailyReading{{Date: "2022-05-01", Lat: 48, Lon: 2}})
	require.ErrorIs(t, err, context.Canceled)
}
