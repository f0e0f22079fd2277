// Package openmeteo implements domain.WeatherSource over the Open-Meteo daily forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
)

// DefaultURL is the historical forecast endpoint.
const DefaultURL = "https://historical-forecast-api.open-meteo.com/v1/forecast"

const source = "weather"

// dailyVariables are requested in this order and decoded by name.
var dailyVariables = []string{
	"weather_code",
	"temperature_2m_max",
	"temperature_2m_min",
	"precipitation_sum",
	"rain_sum",
	"snowfall_sum",
	"wind_speed_10m_max",
	"wind_direction_10m_dominant",
}

// Client implements domain.WeatherSource using the Open-Meteo API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	models     string
	retries    int
	backoff    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client. Failed requests are retried with exponential backoff.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		models:  "best_match",
		retries: 3,
		backoff: 200 * time.Millisecond,
		metrics: metrics,
		logger:  logger,
	}
}

// DailyWeather returns one WeatherDay per day of the window. Missing values are NaN.
func (c *Client) DailyWeather(ctx context.Context, w domain.LocationWindow) ([]domain.WeatherDay, error) {
	params := url.Values{
		"latitude":   {strconv.FormatFloat(w.Lat, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(w.Lon, 'f', -1, 64)},
		"daily":      {strings.Join(dailyVariables, ",")},
		"models":     {c.models},
		"start_date": {w.DateMin},
		"end_date":   {w.DateMax},
		"timezone":   {"GMT"},
	}
	fullURL := c.baseURL + "?" + params.Encode()

	backoff := c.backoff
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		days, retry, err := c.doRequest(ctx, fullURL, w)
		if err == nil {
			if len(days) == 0 {
				c.metrics.SourceRequests.WithLabelValues(source, "empty").Inc()
			} else {
				c.metrics.SourceRequests.WithLabelValues(source, "success").Inc()
			}
			return days, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		c.logger.Debug("weather request failed, retrying", "error", err, "attempt", attempt+1)
	}
	c.metrics.SourceRequests.WithLabelValues(source, "error").Inc()
	return nil, lastErr
}

// doRequest performs one call. retry reports whether the failure is worth another attempt.
func (c *Client) doRequest(ctx context.Context, fullURL string, w domain.LocationWindow) (days []domain.WeatherDay, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.SourceAPIDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, true, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		retry = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}

	var apiResp response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	days, err = apiResp.days(w.Location)
	return days, false, err
}

// Open-Meteo API response types.

type response struct {
	Latitude  float64                    `json:"latitude"`
	Longitude float64                    `json:"longitude"`
	Daily     map[string]json.RawMessage `json:"daily"`
}

func (r response) days(loc domain.Location) ([]domain.WeatherDay, error) {
	var dates []string
	if raw, ok := r.Daily["time"]; ok {
		if err := json.Unmarshal(raw, &dates); err != nil {
			return nil, fmt.Errorf("decode daily time: %w", err)
		}
	}

	series := make(map[string][]float64, len(dailyVariables))
	for _, name := range dailyVariables {
		values := make([]float64, len(dates))
		for i := range values {
			values[i] = math.NaN()
		}
		if raw, ok := r.Daily[name]; ok {
			var vs []*float64
			if err := json.Unmarshal(raw, &vs); err != nil {
				return nil, fmt.Errorf("decode daily %s: %w", name, err)
			}
			for i := 0; i < len(vs) && i < len(values); i++ {
				if vs[i] != nil {
					values[i] = *vs[i]
				}
			}
		}
		series[name] = values
	}

	out := make([]domain.WeatherDay, len(dates))
	for i, d := range dates {
		out[i] = domain.WeatherDay{
			Date:              d,
			Lat:               loc.Lat,
			Lon:               loc.Lon,
			WeatherCode:       series["weather_code"][i],
			TemperatureMax:    series["temperature_2m_max"][i],
			TemperatureMin:    series["temperature_2m_min"][i],
			PrecipitationSum:  series["precipitation_sum"][i],
			RainSum:           series["rain_sum"][i],
			SnowfallSum:       series["snowfall_sum"][i],
			WindSpeedMax:      series["wind_speed_10m_max"][i],
			WindDirectionMode: series["wind_direction_10m_dominant"][i],
		}
	}
	return out, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
