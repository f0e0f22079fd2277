// Package enrich aggregates cleaned readings per day and joins them with weather and
// cartographic context.
package enrich

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/stats"
)

type dailyKey struct {
	date, cst, bal string
	lat, lon       float64
}

func compareDailyKey(a, b dailyKey) int {
	return cmp.Or(
		cmp.Compare(a.date, b.date),
		cmp.Compare(a.cst, b.cst),
		cmp.Compare(a.bal, b.bal),
		cmp.Compare(a.lat, b.lat),
		cmp.Compare(a.lon, b.lon),
	)
}

// AggregateDaily groups readings by (date, const, bal, lat, lon) and summarises the weight of
// each group. The result is ordered by the group key.
func AggregateDaily(rows []domain.Reading) []domain.DailyReading {
	poids := make(map[dailyKey][]float64)
	corrected := make(map[dailyKey][]float64)
	var keys []dailyKey
	for _, r := range rows {
		k := dailyKey{date: r.Date, cst: r.Const, bal: r.Bal, lat: r.Lat, lon: r.Lon}
		if _, ok := poids[k]; !ok {
			keys = append(keys, k)
		}
		poids[k] = append(poids[k], r.Poids)
		corrected[k] = append(corrected[k], r.CorrectedWeight)
	}
	slices.SortFunc(keys, compareDailyKey)

	out := make([]domain.DailyReading, len(keys))
	for i, k := range keys {
		w := poids[k]
		lo, hi := stats.MinMax(w)
		out[i] = domain.DailyReading{
			Date:         k.date,
			Const:        k.cst,
			Bal:          k.bal,
			Lat:          k.lat,
			Lon:          k.lon,
			PoidsMean:    stat.Mean(w, nil),
			PoidsMedian:  stats.Median(w),
			PoidsMin:     lo,
			PoidsMax:     hi,
			CorrectedSum: floats.Sum(corrected[k]),
		}
	}
	return out
}

// LocationWindows returns the first and last date observed at each distinct location, ordered
// by latitude then longitude.
func LocationWindows(rows []domain.DailyReading) []domain.LocationWindow {
	idx := make(map[domain.Location]int)
	var out []domain.LocationWindow
	for _, r := range rows {
		loc := domain.Location{Lat: r.Lat, Lon: r.Lon}
		i, ok := idx[loc]
		if !ok {
			idx[loc] = len(out)
			out = append(out, domain.LocationWindow{Location: loc, DateMin: r.Date, DateMax: r.Date})
			continue
		}
		if r.Date < out[i].DateMin {
			out[i].DateMin = r.Date
		}
		if r.Date > out[i].DateMax {
			out[i].DateMax = r.Date
		}
	}
	slices.SortFunc(out, func(a, b domain.LocationWindow) int {
		return compareLocation(a.Location, b.Location)
	})
	return out
}

func compareLocation(a, b domain.Location) int {
	return cmp.Or(cmp.Compare(a.Lat, b.Lat), cmp.Compare(a.Lon, b.Lon))
}
