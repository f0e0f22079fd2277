package openmeteo

import (
	"context"

	"github.com/couchcryptid/hive-weight-etl/internal/cache"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
)

// CachedSource wraps a WeatherSource with an in-memory LRU cache keyed by location window.
type CachedSource struct {
	inner   domain.WeatherSource
	cache   *cache.LRU[domain.LocationWindow, []domain.WeatherDay]
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a weather source.
func NewCachedSource(inner domain.WeatherSource, maxEntries int, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   cache.NewLRU[domain.LocationWindow, []domain.WeatherDay](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedSource) DailyWeather(ctx context.Context, w domain.LocationWindow) ([]domain.WeatherDay, error) {
	if days, ok := c.cache.Get(w); ok {
		c.metrics.SourceCache.WithLabelValues(source, "hit").Inc()
		return days, nil
	}
	c.metrics.SourceCache.WithLabelValues(source, "miss").Inc()

	days, err := c.inner.DailyWeather(ctx, w)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so a window the API had no data for can be retried.
	if len(days) > 0 {
		c.cache.Put(w, days)
	}
	return days, nil
}
