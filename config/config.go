package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // schedule timezones must resolve on minimal images

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Import   ImportConfig   `yaml:"import"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ScheduleConfig controls how source documents are interpreted.
type ScheduleConfig struct {
	// Timezone is the civil zone the source documents express departure times in.
	Timezone      string         `yaml:"timezone"`
	Location      *time.Location `yaml:"-"`
	Carriers      []string       `yaml:"carriers"`
	AlertKeywords []string       `yaml:"alert_keywords"`
}

// ImportConfig bounds a single import.
type ImportConfig struct {
	MaxBytes              int64         `yaml:"max_bytes"`
	ExtractTimeoutSeconds int           `yaml:"extract_timeout_seconds"`
	ExtractTimeout        time.Duration `yaml:"-"`
}

// FetcherConfig configures the optional periodic pull of schedule files.
type FetcherConfig struct {
	Enabled         bool              `yaml:"enabled"`
	IntervalSeconds int               `yaml:"interval_seconds"`
	Interval        time.Duration     `yaml:"-"`
	URL             string            `yaml:"url"`
	Headers         map[string]string `yaml:"headers"`
	HTTPProxy       string            `yaml:"http_proxy"`
	TimeoutSeconds  int               `yaml:"timeout_seconds"`
	ActorID         string            `yaml:"actor_id"`
}

// LogConfig holds the logger configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig holds the prometheus configuration.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// DefaultCarriers are the bus companies known to appear in the trip PDFs.
var DefaultCarriers = []string{
	"PIRACICABANA",
	"EXPRESSO PENHA",
	"PRINCESA DO NORTE",
	"EMPRESA DE ONIBUS NOSSA SENHORA DA PENHA",
	"CATARINENSE",
}

// DefaultAlertKeywords mark client observations in the trip PDFs.
var DefaultAlertKeywords = []string{"CARRO SEM", "CARRO COM", "MANTA"}

// Load reads the configuration from the given path. Values from a .env file
// and the process environment override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no file.
func Default() *Config {
	cfg := &Config{}
	if err := cfg.applyDefaults(); err != nil {
		// The built-in timezone always resolves with embedded tzdata.
		panic(err)
	}
	return cfg
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "America/Sao_Paulo"
	}
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load schedule timezone %q: %w", cfg.Schedule.Timezone, err)
	}
	cfg.Schedule.Location = loc
	if len(cfg.Schedule.Carriers) == 0 {
		cfg.Schedule.Carriers = DefaultCarriers
	}
	if len(cfg.Schedule.AlertKeywords) == 0 {
		cfg.Schedule.AlertKeywords = DefaultAlertKeywords
	}

	if cfg.Import.MaxBytes <= 0 {
		cfg.Import.MaxBytes = 20 << 20
	}
	if cfg.Import.ExtractTimeoutSeconds <= 0 {
		cfg.Import.ExtractTimeoutSeconds = 30
	}
	cfg.Import.ExtractTimeout = time.Duration(cfg.Import.ExtractTimeoutSeconds) * time.Second

	if cfg.Fetcher.IntervalSeconds <= 0 {
		cfg.Fetcher.IntervalSeconds = 900
	}
	cfg.Fetcher.Interval = time.Duration(cfg.Fetcher.IntervalSeconds) * time.Second
	if cfg.Fetcher.TimeoutSeconds <= 0 {
		cfg.Fetcher.TimeoutSeconds = 60
	}
	if cfg.Fetcher.ActorID == "" {
		cfg.Fetcher.ActorID = "schedule-fetcher"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "cleaning"
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCHEDULE_TIMEZONE"); v != "" {
		cfg.Schedule.Timezone = v
	}
}
