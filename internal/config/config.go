package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/hive-weight-etl/internal/adapter/tablefile"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// Weather source kinds.
const (
	WeatherNone      = "none"
	WeatherFile      = "file"
	WeatherOpenMeteo = "openmeteo"
)

// Config holds all service settings. Values come from environment variables, then from the
// optional TOML parameter file named by CONFIG_FILE, then from defaults.
type Config struct {
	RawDataPath  string
	OutputDir    string
	OutputFormat tablefile.Format
	ModelSaveDir string

	// Cleaning.
	WeightMin      float64
	WeightMax      float64
	CleanMinDate   string
	SwapScope      domain.SwapScope
	ZScoreQuantile float64

	// Segmentation.
	SegmentMinMonth string // "-MM-DD"
	SegmentMaxMonth string // "-MM-DD"
	Breakpoints     int
	WeightReference domain.WeightColumn
	SegmentWorkers  int
	FitRestarts     int
	FitSeed         uint64

	// Enrichment.
	WeatherSource    string
	WeatherFile      string
	OpenMeteoURL     string
	OpenMeteoTimeout time.Duration
	WeatherCacheSize int
	CartoURL         string
	CartoRadius      int
	CartoYear        int
	CartoTimeout     time.Duration
	CartoCacheSize   int

	// Sinks. Empty values disable them.
	SQLitePath     string
	KafkaBrokers   []string
	KafkaSinkTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ExitAfterRun    bool
}

// Load reads configuration from environment variables and the optional parameter file,
// applying defaults where unset.
func Load() (*Config, error) {
	l, err := newLoader(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RawDataPath:     l.get("RAW_DATA_PATH", "./storage/raw_data"),
		OutputDir:       l.get("OUTPUT_DIR", "./storage/cleaned_data"),
		ModelSaveDir:    l.get("MODEL_SAVEDIR", "./storage/segmentation_models"),
		CleanMinDate:    l.get("CLEAN_MIN_DATE", "2022-01-01"),
		SegmentMinMonth: l.get("SEGMENTATION_MIN_MONTH", "-04-01"),
		SegmentMaxMonth: l.get("SEGMENTATION_MAX_MONTH", "-09-01"),
		WeatherSource:   strings.ToLower(l.get("WEATHER_SOURCE", WeatherNone)),
		WeatherFile:     l.get("WEATHER_FILE", ""),
		OpenMeteoURL:    l.get("OPENMETEO_URL", "https://historical-forecast-api.open-meteo.com/v1/forecast"),
		CartoURL:        l.get("CARTO_URL", ""),
		SQLitePath:      l.get("SQLITE_PATH", ""),
		KafkaBrokers:    parseBrokers(l.get("KAFKA_BROKERS", "")),
		KafkaSinkTopic:  l.get("KAFKA_SINK_TOPIC", "segmented-scale-data"),
		HTTPAddr:        l.get("HTTP_ADDR", ":8080"),
		LogLevel:        l.get("LOG_LEVEL", "info"),
		LogFormat:       l.get("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.OutputFormat, err = tablefile.ParseFormat(l.get("OUTPUT_FORMAT", "csv")); err != nil {
		return nil, fmt.Errorf("invalid OUTPUT_FORMAT: %w", err)
	}
	if cfg.SwapScope, err = domain.ParseSwapScope(l.get("LAB_SWAP_SCOPE", string(domain.SwapGlobal))); err != nil {
		return nil, fmt.Errorf("invalid LAB_SWAP_SCOPE: %w", err)
	}
	if cfg.WeightReference, err = domain.ParseWeightColumn(l.get("SEGMENT_WEIGHT_REFERENCE", string(domain.WeightMax))); err != nil {
		return nil, fmt.Errorf("invalid SEGMENT_WEIGHT_REFERENCE: %w", err)
	}

	floats := []struct {
		key, def string
		dst      *float64
	}{
		{"WEIGHT_INTERVAL_MIN", "15000", &cfg.WeightMin},
		{"WEIGHT_INTERVAL_MAX", "200000", &cfg.WeightMax},
		{"ZSCORE_QUANTILE", "0.995", &cfg.ZScoreQuantile},
	}
	for _, f := range floats {
		if *f.dst, err = l.float(f.key, f.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key, def string
		dst      *int
	}{
		{"N_BREAKPOINTS", "7", &cfg.Breakpoints},
		{"SEGMENT_WORKERS", "1", &cfg.SegmentWorkers},
		{"FIT_RESTARTS", "20", &cfg.FitRestarts},
		{"WEATHER_CACHE_SIZE", "1000", &cfg.WeatherCacheSize},
		{"CARTO_RADIUS", "500", &cfg.CartoRadius},
		{"CARTO_YEAR", "2022", &cfg.CartoYear},
		{"CARTO_CACHE_SIZE", "1000", &cfg.CartoCacheSize},
	}
	for _, i := range ints {
		if *i.dst, err = l.integer(i.key, i.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"OPENMETEO_TIMEOUT", "10s", &cfg.OpenMeteoTimeout},
		{"CARTO_TIMEOUT", "10s", &cfg.CartoTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = l.duration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.FitSeed, err = strconv.ParseUint(l.get("FIT_SEED", "42"), 10, 64); err != nil {
		return nil, errors.New("invalid FIT_SEED")
	}
	if cfg.ExitAfterRun, err = strconv.ParseBool(l.get("EXIT_AFTER_RUN", "false")); err != nil {
		return nil, errors.New("invalid EXIT_AFTER_RUN")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KafkaEnabled reports whether segmented rows are published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// CartoEnabled reports whether cartographic context is fetched.
func (c *Config) CartoEnabled() bool { return c.CartoURL != "" }

// SegmentWindow returns the [min, max] date strings of the season window of year.
func (c *Config) SegmentWindow(year int) (string, string) {
	y := strconv.Itoa(year)
	return y + c.SegmentMinMonth, y + c.SegmentMaxMonth
}

func (c *Config) validate() error {
	if c.RawDataPath == "" {
		return errors.New("RAW_DATA_PATH is required")
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if c.ModelSaveDir == "" {
		return errors.New("MODEL_SAVEDIR is required")
	}
	if c.WeightMin >= c.WeightMax {
		return errors.New("WEIGHT_INTERVAL_MIN must be below WEIGHT_INTERVAL_MAX")
	}
	if _, err := time.Parse(domain.DateLayout, c.CleanMinDate); err != nil {
		return errors.New("invalid CLEAN_MIN_DATE")
	}
	if c.ZScoreQuantile <= 0 || c.ZScoreQuantile >= 1 {
		return errors.New("ZSCORE_QUANTILE must be in (0, 1)")
	}
	for key, v := range map[string]string{
		"SEGMENTATION_MIN_MONTH": c.SegmentMinMonth,
		"SEGMENTATION_MAX_MONTH": c.SegmentMaxMonth,
	} {
		if _, err := time.Parse(domain.DateLayout, "2000"+v); err != nil {
			return fmt.Errorf("invalid %s: want -MM-DD, got %q", key, v)
		}
	}
	if c.SegmentMinMonth >= c.SegmentMaxMonth {
		return errors.New("SEGMENTATION_MIN_MONTH must be before SEGMENTATION_MAX_MONTH")
	}
	if c.Breakpoints < 1 {
		return errors.New("N_BREAKPOINTS must be positive")
	}
	if c.SegmentWorkers < 1 {
		return errors.New("SEGMENT_WORKERS must be positive")
	}
	if c.FitRestarts < 0 {
		return errors.New("FIT_RESTARTS must not be negative")
	}
	switch c.WeatherSource {
	case WeatherNone, WeatherOpenMeteo:
	case WeatherFile:
		if c.WeatherFile == "" {
			return errors.New("WEATHER_SOURCE is file but WEATHER_FILE is not set")
		}
	default:
		return fmt.Errorf("invalid WEATHER_SOURCE %q", c.WeatherSource)
	}
	if c.KafkaEnabled() && c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// loader resolves a key from the environment, then the parameter file, then the default.
type loader struct {
	file map[string]string
}

func newLoader(path string) (*loader, error) {
	l := &loader{file: map[string]string{}}
	if path == "" {
		return l, nil
	}
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("read CONFIG_FILE %s: %w", path, err)
	}
	for k, v := range raw {
		s, err := scalar(v)
		if err != nil {
			return nil, fmt.Errorf("CONFIG_FILE key %s: %w", k, err)
		}
		l.file[strings.ToUpper(k)] = s
	}
	return l, nil
}

func parseBrokers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(s)
}

func scalar(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			s, err := scalar(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}

func (l *loader) get(key, def string) string {
	if v, ok := l.file[key]; ok {
		def = v
	}
	return sharedcfg.EnvOrDefault(key, def)
}

func (l *loader) float(key, def string) (float64, error) {
	v, err := strconv.ParseFloat(l.get(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func (l *loader) integer(key, def string) (int, error) {
	v, err := strconv.Atoi(l.get(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func (l *loader) duration(key, def string) (time.Duration, error) {
	v, err := time.ParseDuration(l.get(key, def))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}
