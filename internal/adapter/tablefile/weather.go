package tablefile

import (
	"context"
	"sort"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// WeatherFile implements domain.WeatherSource over a pre-fetched daily weather table.
type WeatherFile struct {
	days map[domain.Location][]domain.WeatherDay
}

// OpenWeatherFile reads and indexes a weather table by location.
func OpenWeatherFile(path string) (*WeatherFile, error) {
	t, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	days, err := WeatherDays(t)
	if err != nil {
		return nil, err
	}
	return NewWeatherFile(days), nil
}

// NewWeatherFile indexes days by location.
func NewWeatherFile(days []domain.WeatherDay) *WeatherFile {
	idx := make(map[domain.Location][]domain.WeatherDay)
	for _, d := range days {
		loc := domain.Location{Lat: d.Lat, Lon: d.Lon}
		idx[loc] = append(idx[loc], d)
	}
	for _, ds := range idx {
		sort.SliceStable(ds, func(i, j int) bool { return ds[i].Date < ds[j].Date })
	}
	return &WeatherFile{days: idx}
}

// DailyWeather returns the indexed days of the window's location whose date lies in
// [DateMin, DateMax].
func (f *WeatherFile) DailyWeather(ctx context.Context, w domain.LocationWindow) ([]domain.WeatherDay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.WeatherDay
	for _, d := range f.days[w.Location] {
		if d.Date >= w.DateMin && d.Date <= w.DateMax {
			out = append(out, d)
		}
	}
	return out, nil
}
