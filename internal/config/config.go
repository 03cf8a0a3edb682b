package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the application configuration structure
type Config struct {
	Yahoo      YahooConfig      `mapstructure:"yahoo"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Historical HistoricalConfig `mapstructure:"historical"`
	FX         FXConfig         `mapstructure:"fx"`
	Export     ExportConfig     `mapstructure:"export"`
	Log        LogConfig        `mapstructure:"log"`
}

// YahooConfig defines the provider endpoints and transport settings
type YahooConfig struct {
	HistoricalURL  string        `mapstructure:"historical_url"`
	HistoricalXURL string        `mapstructure:"historical_x_url"`
	MainPageURL    string        `mapstructure:"main_page_url"`
	StatsURL       string        `mapstructure:"stats_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	StatsTimeout   time.Duration `mapstructure:"stats_timeout"`
	PoolSize       int           `mapstructure:"pool_size"`
	PoolBlock      bool          `mapstructure:"pool_block"`
}

// RetryConfig defines how transient failures are retried
type RetryConfig struct {
	Delay       time.Duration `mapstructure:"delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// HistoricalConfig defines the historical data download configuration
type HistoricalConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
	Frequency string `mapstructure:"frequency"`
	Workers   int    `mapstructure:"workers"`
}

// FXConfig defines where exchange rates come from
type FXConfig struct {
	FREDURL   string        `mapstructure:"fred_url"`
	StartDate string        `mapstructure:"start_date"`
	EndDate   string        `mapstructure:"end_date"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ExportConfig defines optional sinks for converted series
type ExportConfig struct {
	ParquetEnabled bool   `mapstructure:"parquet_enabled"`
	ParquetDir     string `mapstructure:"parquet_dir"`
	SQLitePath     string `mapstructure:"sqlite_path"`
}

// LogConfig defines logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig loads configuration from file and overrides with environment
// variables (EODFETCH_SECTION_KEY). A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EODFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Unmarshal only sees keys viper knows about, so register every key
	// for environment lookup.
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
			}
			slog.Debug("config file not found, using environment and defaults", "path", path)
		} else {
			slog.Debug("loaded config file", "path", v.ConfigFileUsed())
		}
	}

	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyDefaults(&config)
	return config, nil
}

var keys = []string{
	"yahoo.historical_url",
	"yahoo.historical_x_url",
	"yahoo.main_page_url",
	"yahoo.stats_url",
	"yahoo.user_agent",
	"yahoo.timeout",
	"yahoo.stats_timeout",
	"yahoo.pool_size",
	"yahoo.pool_block",
	"retry.delay",
	"retry.max_attempts",
	"historical.output_dir",
	"historical.start_date",
	"historical.end_date",
	"historical.frequency",
	"historical.workers",
	"fx.fred_url",
	"fx.start_date",
	"fx.end_date",
	"fx.timeout",
	"export.parquet_enabled",
	"export.parquet_dir",
	"export.sqlite_path",
	"log.level",
}

// applyDefaults sets default values for any config values not set from file or environment
func applyDefaults(config *Config) {
	// Provider defaults
	if config.Yahoo.HistoricalURL == "" {
		config.Yahoo.HistoricalURL = "http://ichart.finance.yahoo.com/table.csv"
	}
	if config.Yahoo.HistoricalXURL == "" {
		config.Yahoo.HistoricalXURL = "http://ichart.finance.yahoo.com/x"
	}
	if config.Yahoo.MainPageURL == "" {
		config.Yahoo.MainPageURL = "http://finance.yahoo.com/q"
	}
	if config.Yahoo.StatsURL == "" {
		config.Yahoo.StatsURL = "http://finance.yahoo.com/d/quotes.csv"
	}
	if config.Yahoo.UserAgent == "" {
		config.Yahoo.UserAgent = "Mozilla/5.0"
	}
	if config.Yahoo.Timeout == 0 {
		config.Yahoo.Timeout = 600 * time.Second
	}
	if config.Yahoo.StatsTimeout == 0 {
		config.Yahoo.StatsTimeout = 60 * time.Second
	}
	if config.Yahoo.PoolSize == 0 {
		config.Yahoo.PoolSize = 10
	}

	// Retry defaults; MaxAttempts stays 0 (unbounded)
	if config.Retry.Delay == 0 {
		config.Retry.Delay = 5 * time.Second
	}

	// Historical data defaults
	if config.Historical.OutputDir == "" {
		config.Historical.OutputDir = "./historical_data"
	}
	if config.Historical.StartDate == "" {
		config.Historical.StartDate = "1900-01-01"
	}
	if config.Historical.Frequency == "" {
		config.Historical.Frequency = "d"
	}
	if config.Historical.Workers == 0 {
		config.Historical.Workers = 1
	}

	// FX defaults
	if config.FX.FREDURL == "" {
		config.FX.FREDURL = "https://fred.stlouisfed.org/graph/fredgraph.csv"
	}
	if config.FX.StartDate == "" {
		config.FX.StartDate = "1900-01-01"
	}
	if config.FX.Timeout == 0 {
		config.FX.Timeout = 60 * time.Second
	}

	// Export defaults
	if config.Export.ParquetDir == "" {
		config.Export.ParquetDir = "./parquet_data"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

// ParseDate parses a YYYY-MM-DD date. An empty string yields fallback.
func ParseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
