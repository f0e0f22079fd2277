//go:build openmeteo

package openmeteo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
)

// These tests hit the real Open-Meteo API and need network access.
// Run with: go test -tags=openmeteo ./internal/adapter/openmeteo/ -v -count=1

func smokeClient() *Client {
	return NewClient("", 15*time.Second, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_DailyWeather(t *testing.T) {
	c := smokeClient()

	days, err := c.DailyWeather(context.Background(), domain.LocationWindow{
		Location: domain.Location{Lat: 45.764, Lon: 4.8357},
		DateMin:  "2022-06-01",
		DateMax:  "2022-06-07",
	})
	require.NoError(t, err)
	require.Len(t, days, 7)
	assert.Equal(t, "2022-06-01", days[0].Date)
	assert.Equal(t, "2022-06-07", days[6].Date)
	for _, d := range days {
		assert.Greater(t, d.TemperatureMax, d.TemperatureMin, d.Date)
		assert.GreaterOrEqual(t, d.WindDirectionMode, 0.0)
	}
}
