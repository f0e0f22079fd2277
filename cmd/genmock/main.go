// Command genmock writes synthetic provider exports and a matching daily weather table for
// local runs and demos. Each scale follows a seasonal weight curve with sensor noise, a few
// frame manipulations and the faults the cleaning stage is expected to remove.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out-dir storage/raw_data \
//	  -weather-out storage/weather.csv \
//	  -scales 4 -year 2022
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/couchcryptid/hive-weight-etl/internal/adapter/tablefile"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// provider describes one synthetic data provider.
type provider struct {
	name string
	// swapped providers export latitude and longitude inverted.
	swapped bool
}

var providers = []provider{
	{name: "ACME"},
	{name: domain.InvertedAxisProvider, swapped: true},
}

// apiary locations around Lyon.
var sites = []domain.Location{
	{Lat: 45.7640, Lon: 4.8357},
	{Lat: 45.8992, Lon: 4.7256},
	{Lat: 45.6028, Lon: 5.1003},
	{Lat: 45.9871, Lon: 4.4412},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "", "directory receiving one raw export per provider")
	weatherOut := flag.String("weather-out", "", "output path for the daily weather table")
	scales := flag.Int("scales", 4, "number of scales to generate")
	year := flag.Int("year", 2022, "season year")
	seed := flag.Uint64("seed", 7, "random seed")
	format := flag.String("format", "csv", "raw export format: csv or json")
	flag.Parse()

	if *outDir == "" || *weatherOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out-dir, -weather-out")
	}
	f, err := tablefile.ParseFormat(*format)
	if err != nil {
		return err
	}
	if *scales < 1 {
		return fmt.Errorf("-scales must be positive")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	from := time.Date(*year, time.March, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(*year, time.September, 15, 0, 0, 0, 0, time.UTC)

	exports := make(map[string][]domain.RawReading)
	used := make(map[domain.Location]bool)
	for i := range *scales {
		p := providers[i%len(providers)]
		site := sites[i%len(sites)]
		used[site] = true
		rows := scaleReadings(rng, fmt.Sprintf("%s-%03d", p.name, i+1), p, site, from, to)
		exports[p.name] = append(exports[p.name], rows...)
	}

	for name, rows := range exports {
		path := filepath.Join(*outDir, "export_"+name+f.Ext())
		if err := tablefile.WriteFile(path, tablefile.RawTable(rows)); err != nil {
			return err
		}
		log.Printf("wrote %d readings to %s", len(rows), path)
	}

	var days []domain.WeatherDay
	for _, site := range sites {
		if used[site] {
			days = append(days, siteWeather(rng, site, from, to)...)
		}
	}
	if err := tablefile.WriteFile(*weatherOut, tablefile.WeatherTable(days)); err != nil {
		return err
	}
	log.Printf("wrote %d weather days to %s", len(days), *weatherOut)
	return nil
}

// scaleReadings produces four readings a day. Weight builds up through the spring flow, drops
// through summer and carries the occasional super added or removed.
func scaleReadings(rng *rand.Rand, bal string, p provider, site domain.Location, from, to time.Time) []domain.RawReading {
	base := 25000 + rng.Float64()*15000
	peak := 140 + rng.IntN(40)
	rise := 150 + rng.Float64()*150
	fall := -(40 + rng.Float64()*80)
	offset := 0.0
	start := from.YearDay() - 1

	var out []domain.RawReading
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		day := d.YearDay() - 1
		trend := rise * float64(min(day, peak)-start)
		if day > peak {
			trend += fall * float64(day-peak)
		}
		// A super is added or removed roughly once a month.
		if rng.IntN(30) == 0 {
			offset += float64(rng.IntN(2)*2-1) * 9000
		}
		for _, hour := range []int{2, 8, 14, 20} {
			w := base + max(trend, -base/2) + offset + rng.NormFloat64()*120
			lat, lon := site.Lat, site.Lon
			if p.swapped {
				lat, lon = lon, lat
			}
			r := domain.RawReading{
				Bal:   bal,
				Const: p.name,
				Time:  d.Add(time.Duration(hour) * time.Hour).Format("2006-01-02 15:04:05"),
				Lat:   &lat,
				Lon:   &lon,
				Poids: &w,
				Name:  "Hive " + bal,
				Ruche: bal,
				Qloc:  "1",
				Activ: "1",
			}
			out = append(out, fault(rng, r)...)
		}
	}
	return out
}

// fault occasionally corrupts a reading the way real exports do.
func fault(rng *rand.Rand, r domain.RawReading) []domain.RawReading {
	switch rng.IntN(200) {
	case 0:
		r.Lat = nil
	case 1:
		zero := 0.0
		r.Lon = &zero
	case 2:
		empty := 2000.0
		r.Poids = &empty
	case 3:
		overload := 250000.0
		r.Poids = &overload
	case 4:
		return []domain.RawReading{r, r}
	}
	return []domain.RawReading{r}
}

// siteWeather produces a plausible temperate season.
func siteWeather(rng *rand.Rand, site domain.Location, from, to time.Time) []domain.WeatherDay {
	var out []domain.WeatherDay
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		season := math.Sin(math.Pi * float64(d.YearDay()-80) / 180)
		tmax := 12 + 18*season + rng.NormFloat64()*3
		rain := 0.0
		code := float64([]int{0, 1, 2, 3}[rng.IntN(4)])
		if rng.IntN(4) == 0 {
			rain = rng.ExpFloat64() * 4
			code = float64([]int{51, 61, 63, 80, 95}[rng.IntN(5)])
		}
		out = append(out, domain.WeatherDay{
			Date:              d.Format(domain.DateLayout),
			Lat:               site.Lat,
			Lon:               site.Lon,
			WeatherCode:       code,
			TemperatureMax:    math.Round(tmax*10) / 10,
			TemperatureMin:    math.Round((tmax-9-rng.Float64()*4)*10) / 10,
			PrecipitationSum:  math.Round(rain*10) / 10,
			RainSum:           math.Round(rain*10) / 10,
			SnowfallSum:       0,
			WindSpeedMax:      math.Round(rng.Float64()*300) / 10,
			WindDirectionMode: float64(rng.IntN(360)),
		})
	}
	return out
}
