package carto

import (
	"context"

	"github.com/golang/geo/s2"

	"github.com/couchcryptid/hive-weight-etl/internal/cache"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
)

// CellLevel is the S2 level locations are bucketed at; level 16 cells are roughly 150 m wide.
const CellLevel = 16

// CachedSource wraps a CartoSource with an LRU cache keyed by the S2 cell of the location, so
// scales standing a few meters apart share one lookup.
type CachedSource struct {
	inner   domain.CartoSource
	cache   *cache.LRU[s2.CellID, domain.CartoInfo]
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a cartographic source.
func NewCachedSource(inner domain.CartoSource, maxEntries int, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   cache.NewLRU[s2.CellID, domain.CartoInfo](maxEntries),
		metrics: metrics,
	}
}

// CellKey returns the cache key of a location.
func CellKey(loc domain.Location) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(loc.Lat, loc.Lon)).Parent(CellLevel)
}

func (c *CachedSource) Parcel(ctx context.Context, loc domain.Location) (domain.CartoInfo, error) {
	key := CellKey(loc)
	if info, ok := c.cache.Get(key); ok {
		c.metrics.SourceCache.WithLabelValues(source, "hit").Inc()
		return info, nil
	}
	c.metrics.SourceCache.WithLabelValues(source, "miss").Inc()

	info, err := c.inner.Parcel(ctx, loc)
	if err != nil {
		return info, err
	}
	if info != (domain.CartoInfo{}) {
		c.cache.Put(key, info)
	}
	return info, nil
}
