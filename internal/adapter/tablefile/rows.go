package tablefile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// Columns of the combined provider export that every reading must carry.
var rawRequired = []string{"bal", "const", "time", "lat", "lon", "poids"}

var readingColumns = []Column{
	{Name: "bal"}, {Name: "const"}, {Name: "time"},
	{Name: "lat", Numeric: true}, {Name: "lon", Numeric: true}, {Name: "poids", Numeric: true},
	{Name: "date"}, {Name: "corrected_weight", Numeric: true},
}

var dailyColumns = []Column{
	{Name: "date"}, {Name: "const"}, {Name: "bal"},
	{Name: "lat", Numeric: true}, {Name: "lon", Numeric: true},
	{Name: "poids_mean", Numeric: true}, {Name: "poids_median", Numeric: true},
	{Name: "poids_min", Numeric: true}, {Name: "poids_max", Numeric: true},
	{Name: "weight_variation_corrected_sum", Numeric: true},
}

var weatherColumns = []Column{
	{Name: "weather_code", Numeric: true},
	{Name: "temperature_2m_max", Numeric: true},
	{Name: "temperature_2m_min", Numeric: true},
	{Name: "precipitation_sum", Numeric: true},
	{Name: "rain_sum", Numeric: true},
	{Name: "snowfall_sum", Numeric: true},
	{Name: "wind_speed_10m_max", Numeric: true},
	{Name: "wind_direction_10m_dominant", Numeric: true},
}

var cartoColumns = []Column{{Name: "culture"}, {Name: "bio"}, {Name: "legende"}}

// Segmented table headers.
const (
	colSegment     = "Segment"
	colStart       = "Start"
	colEnd         = "End"
	colSlope       = "Slope"
	colWeightStart = "Weight Start"
	colWeightEnd   = "Weight End"
	colWeightDiff  = "Weight diff"
	colScale       = "scale"
	colYear        = "year"
)

var summaryCounts = []string{
	"tmin_too_cold", "tmin_opti", "tmin_hot", "tmin_too_hot",
	"tmax_too_cold", "tmax_opti", "tmax_hot", "tmax_too_hot",
	"days_weak_wind", "days_average_wind", "days_strong_wind",
	"N", "NE", "E", "SE", "S", "SW", "W", "NW",
}

var summarySums = []string{"precipitation", "rain", "snowfall"}

// SegmentColumns returns the fixed schema of the segmented table.
func SegmentColumns() []Column {
	cols := []Column{
		{Name: colSegment, Numeric: true},
		{Name: colStart, Numeric: true},
		{Name: colEnd, Numeric: true},
		{Name: colSlope, Numeric: true},
		{Name: colWeightStart, Numeric: true},
		{Name: colWeightEnd, Numeric: true},
		{Name: colWeightDiff, Numeric: true},
		{Name: colScale},
		{Name: colYear, Numeric: true},
	}
	for _, n := range summaryCounts {
		cols = append(cols, Column{Name: n, Numeric: true})
	}
	for _, n := range summarySums {
		cols = append(cols, Column{Name: n, Numeric: true})
	}
	for i := 1; i <= domain.WeatherCodeBuckets; i++ {
		cols = append(cols, Column{Name: weatherCodeColumn(i), Numeric: true})
	}
	return cols
}

func weatherCodeColumn(bucket int) string {
	return "weather_code_" + strconv.Itoa(bucket)
}

// RawReadings decodes the combined provider export. Provider columns other than the required
// ones are optional; empty numeric cells decode to nil.
func RawReadings(t Table) ([]domain.RawReading, error) {
	ix, err := indexColumns(t, rawRequired...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RawReading, len(t.Rows))
	for i, row := range t.Rows {
		r := domain.RawReading{
			Bal:   ix.str(row, "bal"),
			Const: ix.str(row, "const"),
			Time:  ix.str(row, "time"),
			Name:  ix.str(row, "name"),
			Ruche: ix.str(row, "ruche"),
			Qloc:  ix.str(row, "qloc"),
			Activ: ix.str(row, "activ"),
		}
		if r.Lat, err = ix.optional(row, "lat"); err != nil {
			return nil, err
		}
		if r.Lon, err = ix.optional(row, "lon"); err != nil {
			return nil, err
		}
		if r.Poids, err = ix.optional(row, "poids"); err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// RawTable encodes raw readings with the provider columns.
func RawTable(rows []domain.RawReading) Table {
	t := Table{Columns: []Column{
		{Name: "bal"}, {Name: "const"}, {Name: "time"},
		{Name: "lat", Numeric: true}, {Name: "lon", Numeric: true}, {Name: "poids", Numeric: true},
		{Name: "name"}, {Name: "ruche"}, {Name: "qloc"}, {Name: "activ"},
	}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.Bal, r.Const, r.Time,
			formatPtr(r.Lat), formatPtr(r.Lon), formatPtr(r.Poids),
			r.Name, r.Ruche, r.Qloc, r.Activ,
		})
	}
	return t
}

// ReadingsTable encodes cleaned readings.
func ReadingsTable(rows []domain.Reading) Table {
	t := Table{Columns: readingColumns}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.Bal, r.Const, r.Time,
			formatFloat(r.Lat), formatFloat(r.Lon), formatFloat(r.Poids),
			r.Date, formatFloat(r.CorrectedWeight),
		})
	}
	return t
}

// EnrichedTable encodes daily readings joined with weather and cartographic context.
func EnrichedTable(rows []domain.EnrichedRow) Table {
	cols := make([]Column, 0, len(dailyColumns)+len(weatherColumns)+len(cartoColumns))
	cols = append(cols, dailyColumns...)
	cols = append(cols, weatherColumns...)
	cols = append(cols, cartoColumns...)
	t := Table{Columns: cols}
	for _, r := range rows {
		d, w := r.DailyReading, r.Weather
		if !r.HasWeather {
			w = domain.MissingWeather(d.Date, d.Lat, d.Lon)
		}
		t.Rows = append(t.Rows, []string{
			d.Date, d.Const, d.Bal, formatFloat(d.Lat), formatFloat(d.Lon),
			formatFloat(d.PoidsMean), formatFloat(d.PoidsMedian),
			formatFloat(d.PoidsMin), formatFloat(d.PoidsMax), formatFloat(d.CorrectedSum),
			formatFloat(w.WeatherCode), formatFloat(w.TemperatureMax), formatFloat(w.TemperatureMin),
			formatFloat(w.PrecipitationSum), formatFloat(w.RainSum), formatFloat(w.SnowfallSum),
			formatFloat(w.WindSpeedMax), formatFloat(w.WindDirectionMode),
			r.Carto.Culture, r.Carto.Bio, r.Carto.Legende,
		})
	}
	return t
}

// EnrichedRows decodes an enriched table. Weather and cartographic columns are optional; a
// row has weather when at least one indicator is present.
func EnrichedRows(t Table) ([]domain.EnrichedRow, error) {
	ix, err := indexColumns(t, columnNames(dailyColumns)...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.EnrichedRow, len(t.Rows))
	for i, row := range t.Rows {
		var r domain.EnrichedRow
		r.Date = ix.str(row, "date")
		r.Const = ix.str(row, "const")
		r.Bal = ix.str(row, "bal")
		floats := []struct {
			name string
			dst  *float64
		}{
			{"lat", &r.Lat}, {"lon", &r.Lon},
			{"poids_mean", &r.PoidsMean}, {"poids_median", &r.PoidsMedian},
			{"poids_min", &r.PoidsMin}, {"poids_max", &r.PoidsMax},
			{"weight_variation_corrected_sum", &r.CorrectedSum},
		}
		for _, f := range floats {
			if *f.dst, err = ix.float(row, f.name); err != nil {
				return nil, err
			}
		}
		if r.Weather, err = ix.weather(row, r.Date, r.Lat, r.Lon); err != nil {
			return nil, err
		}
		r.HasWeather = hasWeather(r.Weather)
		r.Carto = domain.CartoInfo{
			Culture: ix.str(row, "culture"),
			Bio:     ix.str(row, "bio"),
			Legende: ix.str(row, "legende"),
		}
		out[i] = r
	}
	return out, nil
}

// WeatherDays decodes a pre-fetched daily weather table keyed by date, lat and lon.
func WeatherDays(t Table) ([]domain.WeatherDay, error) {
	ix, err := indexColumns(t, "date", "lat", "lon")
	if err != nil {
		return nil, err
	}
	out := make([]domain.WeatherDay, len(t.Rows))
	for i, row := range t.Rows {
		lat, err := ix.float(row, "lat")
		if err != nil {
			return nil, err
		}
		lon, err := ix.float(row, "lon")
		if err != nil {
			return nil, err
		}
		if out[i], err = ix.weather(row, ix.str(row, "date"), lat, lon); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WeatherTable encodes daily weather with its date and location.
func WeatherTable(days []domain.WeatherDay) Table {
	cols := []Column{{Name: "date"}, {Name: "lat", Numeric: true}, {Name: "lon", Numeric: true}}
	t := Table{Columns: append(cols, weatherColumns...)}
	for _, w := range days {
		t.Rows = append(t.Rows, []string{
			w.Date, formatFloat(w.Lat), formatFloat(w.Lon),
			formatFloat(w.WeatherCode), formatFloat(w.TemperatureMax), formatFloat(w.TemperatureMin),
			formatFloat(w.PrecipitationSum), formatFloat(w.RainSum), formatFloat(w.SnowfallSum),
			formatFloat(w.WindSpeedMax), formatFloat(w.WindDirectionMode),
		})
	}
	return t
}

// SegmentTable encodes segmented rows with the fixed segmented schema.
func SegmentTable(rows []domain.SegmentRow) Table {
	t := Table{Columns: SegmentColumns()}
	for _, r := range rows {
		s, w := r.WeightSegment, r.Weather
		cells := []string{
			strconv.Itoa(s.Segment),
			formatFloat(s.Start), formatFloat(s.End), formatFloat(s.Slope),
			formatFloat(s.WeightStart), formatFloat(s.WeightEnd), formatFloat(s.WeightDiff),
			s.Scale, strconv.Itoa(r.Year),
		}
		for _, n := range summaryCounts {
			cells = append(cells, strconv.Itoa(*countField(&w, n)))
		}
		cells = append(cells, formatFloat(w.Precipitation), formatFloat(w.Rain), formatFloat(w.Snowfall))
		for _, c := range w.WeatherCode {
			cells = append(cells, strconv.Itoa(c))
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// SegmentRows decodes a segmented table.
func SegmentRows(t Table) ([]domain.SegmentRow, error) {
	ix, err := indexColumns(t, columnNames(SegmentColumns())...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SegmentRow, len(t.Rows))
	for i, row := range t.Rows {
		var r domain.SegmentRow
		if r.Year, err = ix.integer(row, colYear); err != nil {
			return nil, err
		}
		if r.Segment, err = ix.integer(row, colSegment); err != nil {
			return nil, err
		}
		r.Scale = ix.str(row, colScale)
		floats := []struct {
			name string
			dst  *float64
		}{
			{colStart, &r.Start}, {colEnd, &r.End}, {colSlope, &r.Slope},
			{colWeightStart, &r.WeightStart}, {colWeightEnd, &r.WeightEnd}, {colWeightDiff, &r.WeightDiff},
			{"precipitation", &r.Weather.Precipitation}, {"rain", &r.Weather.Rain}, {"snowfall", &r.Weather.Snowfall},
		}
		for _, f := range floats {
			if *f.dst, err = ix.float(row, f.name); err != nil {
				return nil, err
			}
		}
		r.Weather.Scale = r.Scale
		r.Weather.Segment = r.Segment
		for _, n := range summaryCounts {
			if *countField(&r.Weather, n), err = ix.integer(row, n); err != nil {
				return nil, err
			}
		}
		for b := range r.Weather.WeatherCode {
			if r.Weather.WeatherCode[b], err = ix.integer(row, weatherCodeColumn(b+1)); err != nil {
				return nil, err
			}
		}
		out[i] = r
	}
	return out, nil
}

func countField(s *domain.WeatherSummary, name string) *int {
	switch name {
	case "tmin_too_cold":
		return &s.TminTooCold
	case "tmin_opti":
		return &s.TminOpti
	case "tmin_hot":
		return &s.TminHot
	case "tmin_too_hot":
		return &s.TminTooHot
	case "tmax_too_cold":
		return &s.TmaxTooCold
	case "tmax_opti":
		return &s.TmaxOpti
	case "tmax_hot":
		return &s.TmaxHot
	case "tmax_too_hot":
		return &s.TmaxTooHot
	case "days_weak_wind":
		return &s.DaysWeakWind
	case "days_average_wind":
		return &s.DaysAverageWind
	case "days_strong_wind":
		return &s.DaysStrongWind
	case "N":
		return &s.N
	case "NE":
		return &s.NE
	case "E":
		return &s.E
	case "SE":
		return &s.SE
	case "S":
		return &s.S
	case "SW":
		return &s.SW
	case "W":
		return &s.W
	case "NW":
		return &s.NW
	default:
		panic("tablefile: unknown summary column " + name)
	}
}

func hasWeather(w domain.WeatherDay) bool {
	for _, v := range []float64{
		w.WeatherCode, w.TemperatureMax, w.TemperatureMin, w.PrecipitationSum,
		w.RainSum, w.SnowfallSum, w.WindSpeedMax, w.WindDirectionMode,
	} {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}

// columnIndex maps column names to cell positions.
type columnIndex map[string]int

func indexColumns(t Table, required ...string) (columnIndex, error) {
	ix := make(columnIndex, len(t.Columns))
	for i, c := range t.Columns {
		ix[strings.TrimSpace(c.Name)] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := ix[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.MalformedInputError{
			Field:  strings.Join(missing, ","),
			Reason: "required column missing",
		}
	}
	return ix, nil
}

func (ix columnIndex) str(row []string, name string) string {
	i, ok := ix[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// float decodes a numeric cell; a missing cell or column decodes to NaN.
func (ix columnIndex) float(row []string, name string) (float64, error) {
	s := ix.str(row, name)
	if isMissing(s) {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &domain.MalformedInputError{Field: name, Reason: fmt.Sprintf("not a number: %q", s)}
	}
	return v, nil
}

func (ix columnIndex) optional(row []string, name string) (*float64, error) {
	s := ix.str(row, name)
	if isMissing(s) {
		return nil, nil
	}
	v, err := ix.float(row, name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (ix columnIndex) integer(row []string, name string) (int, error) {
	s := ix.str(row, name)
	if isMissing(s) {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != math.Trunc(v) {
		return 0, &domain.MalformedInputError{Field: name, Reason: fmt.Sprintf("not an integer: %q", s)}
	}
	return int(v), nil
}

func (ix columnIndex) weather(row []string, date string, lat, lon float64) (domain.WeatherDay, error) {
	w := domain.WeatherDay{Date: date, Lat: lat, Lon: lon}
	dst := []*float64{
		&w.WeatherCode, &w.TemperatureMax, &w.TemperatureMin, &w.PrecipitationSum,
		&w.RainSum, &w.SnowfallSum, &w.WindSpeedMax, &w.WindDirectionMode,
	}
	for i, c := range weatherColumns {
		v, err := ix.float(row, c.Name)
		if err != nil {
			return domain.WeatherDay{}, err
		}
		*dst[i] = v
	}
	return w, nil
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return true
	}
	return false
}

func columnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
