package openmeteo

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var testWindow = domain.LocationWindow{
	Location: domain.Location{Lat: 45.75, Lon: 4.85},
	DateMin:  "2022-05-01",
	DateMax:  "2022-05-02",
}

func testClient(baseURL string, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		models:     "best_match",
		retries:    2,
		backoff:    time.Millisecond,
		metrics:    metrics,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_DailyWeather_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "45.75", q.Get("latitude"))
		assert.Equal(t, "4.85", q.Get("longitude"))
		assert.Equal(t, "2022-05-01", q.Get("start_date"))
		assert.Equal(t, "2022-05-02", q.Get("end_date"))
		assert.Contains(t, q.Get("daily"), "wind_direction_10m_dominant")

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{
			"latitude": 45.74, "longitude": 4.86,
			"daily": {
				"time": ["2022-05-01", "2022-05-02"],
				"weather_code": [3, 61],
				"temperature_2m_max": [21.5, null],
				"temperature_2m_min": [9.1, 11.0],
				"precipitation_sum": [0, 4.2],
				"rain_sum": [0, 4.2],
				"snowfall_sum": [0, 0],
				"wind_speed_10m_max": [12.3, 30.1],
				"wind_direction_10m_dominant": [200, 350]
			}
		}`))
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	c := testClient(srv.URL, metrics)

	days, err := c.DailyWeather(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "2022-05-01", days[0].Date)
	assert.InDelta(t, 45.75, days[0].Lat, 0, "rows carry the requested location")
	assert.InDelta(t, 21.5, days[0].TemperatureMax, 0)
	assert.InDelta(t, 3, days[0].WeatherCode, 0)
	assert.True(t, math.IsNaN(days[1].TemperatureMax))
	assert.InDelta(t, 350, days[1].WindDirectionMode, 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SourceRequests.WithLabelValues(source, "success")), 0)
}

func TestClient_DailyWeather_MissingVariableIsNaN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"daily": {"time": ["2022-05-01"], "weather_code": [1]}}`))
	}))
	defer srv.Close()

	days, err := testClient(srv.URL, observability.NewMetricsForTesting()).DailyWeather(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.True(t, math.IsNaN(days[0].RainSum))
}

func TestClient_DailyWeather_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"daily": {"time": ["2022-05-01"]}}`))
	}))
	defer srv.Close()

	days, err := testClient(srv.URL, observability.NewMetricsForTesting()).DailyWeather(context.Background(), testWindow)
	require.NoError(t, err)
	assert.Len(t, days, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DailyWeather_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"reason":"Parameter 'start_date' is out of allowed range"}`))
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	_, err := testClient(srv.URL, metrics).DailyWeather(context.Background(), testWindow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SourceRequests.WithLabelValues(source, "error")), 0)
}

func TestClient_DailyWeather_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL, observability.NewMetricsForTesting())
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	c.retries = 0

	_, err := c.DailyWeather(context.Background(), testWindow)
	require.Error(t, err)
}
