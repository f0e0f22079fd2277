// Package carto implements domain.CartoSource over the cartographic parcel API.
package carto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
)

const source = "carto"

// Client implements domain.CartoSource using the parcel registry (RPG) endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	radius     int
	year       int
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a cartographic client querying parcels of the given registry year within
// radius meters of each location.
func NewClient(url string, radius, year int, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url:     url,
		radius:  radius,
		year:    year,
		metrics: metrics,
		logger:  logger,
	}
}

// Parcel returns the first parcel the API reports around loc. A zero CartoInfo means none.
func (c *Client) Parcel(ctx context.Context, loc domain.Location) (domain.CartoInfo, error) {
	body, err := json.Marshal([]request{{
		LocationName: "location",
		Latitude:     loc.Lat,
		Longitude:    loc.Lon,
		DataType:     []string{"rpg"},
		Years:        []int{c.year},
		Radius:       c.radius,
	}})
	if err != nil {
		return domain.CartoInfo{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.CartoInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.SourceAPIDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceRequests.WithLabelValues(source, "error").Inc()
		return domain.CartoInfo{}, fmt.Errorf("parcel request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.SourceRequests.WithLabelValues(source, "error").Inc()
		b, _ := io.ReadAll(resp.Body)
		return domain.CartoInfo{}, fmt.Errorf("cartographic API error: status %d: %s", resp.StatusCode, b)
	}

	var apiResp response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		c.metrics.SourceRequests.WithLabelValues(source, "error").Inc()
		return domain.CartoInfo{}, fmt.Errorf("decode response: %w", err)
	}

	layer := "rpg-" + strconv.Itoa(c.year)
	parcels := apiResp.Location[layer][layer]
	if len(parcels) == 0 {
		c.metrics.SourceRequests.WithLabelValues(source, "empty").Inc()
		c.logger.Debug("no parcel near location", "lat", loc.Lat, "lon", loc.Lon, "radius", c.radius)
		return domain.CartoInfo{}, nil
	}
	c.metrics.SourceRequests.WithLabelValues(source, "success").Inc()
	p := parcels[0]
	return domain.CartoInfo{
		Culture: string(p.Culture),
		Bio:     string(p.Bio),
		Legende: string(p.Legende),
	}, nil
}

// Cartographic API request and response types.

type request struct {
	LocationName string   `json:"location_name"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	DataType     []string `json:"data_type"`
	Years        []int    `json:"years"`
	Radius       int      `json:"radius"`
}

type response struct {
	Location map[string]map[string][]parcel `json:"location"`
}

type parcel struct {
	Culture text `json:"culture"`
	Bio     text `json:"bio"`
	Legende text `json:"legende"`
}

// text accepts a JSON string, number, boolean or null.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = text(s)
		return nil
	}
	*t = text(bytes.TrimSpace(b))
	return nil
}
