package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port           int              `json:"port"`
	LogConfig      logger.LogConfig `json:"log_config"`
	Database       DatabaseConfig   `json:"database"`
	FileStore      FileStoreConfig  `json:"file_store"`
	Fetch          FetchConfig      `json:"fetch"`
	Image          ImageConfig      `json:"image"`
	Schedule       ScheduleConfig   `json:"schedule"`
	Trigger        TriggerConfig    `json:"trigger"`
	Admin          AdminConfig      `json:"admin"`
	RichTextFormat string           `json:"rich_text_format"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	DSN    string `json:"dsn"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type FetchConfig struct {
	TimeoutSeconds      int     `json:"timeout_seconds"`
	MaxBodyBytes        int64   `json:"max_body_bytes"`
	BreakerMinRequests  int     `json:"breaker_min_requests"`
	BreakerFailureRatio float64 `json:"breaker_failure_ratio"`
	BreakerOpenSeconds  int     `json:"breaker_open_seconds"`
}

type ImageConfig struct {
	TimeoutSeconds  int     `json:"timeout_seconds"`
	MaxBytes        int64   `json:"max_bytes"`
	RatePerSecond   float64 `json:"rate_per_second"`
	Burst           int     `json:"burst"`
	CacheSize       int     `json:"cache_size"`
	CacheTTLMinutes int     `json:"cache_ttl_minutes"`
}

type ScheduleConfig struct {
	Spec     string `json:"spec"`
	Disabled bool   `json:"disabled"`
}

type TriggerConfig struct {
	Secret           string `json:"secret"`
	RateLimitSeconds int    `json:"rate_limit_seconds"`
}

type AdminConfig struct {
	KeyHash string `json:"key_hash"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultRichTextFormat = "filtered_html"
	defaultScheduleSpec   = "* * * * *"
	defaultFileDir        = "data/files"
)

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Trigger.Secret == "" {
		return fmt.Errorf("trigger.secret is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	switch cfg.Database.Driver {
	case DriverSQLite:
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres")
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.FileStore.Type == "local" && cfg.FileStore.Data == nil {
		cfg.FileStore.Data = map[string]interface{}{"dir": defaultFileDir}
	}
	if cfg.Fetch.TimeoutSeconds <= 0 {
		cfg.Fetch.TimeoutSeconds = 30
	}
	if cfg.Fetch.MaxBodyBytes <= 0 {
		cfg.Fetch.MaxBodyBytes = 64 << 20
	}
	if cfg.Fetch.BreakerMinRequests <= 0 {
		cfg.Fetch.BreakerMinRequests = 3
	}
	if cfg.Fetch.BreakerFailureRatio <= 0 || cfg.Fetch.BreakerFailureRatio > 1 {
		cfg.Fetch.BreakerFailureRatio = 0.6
	}
	if cfg.Fetch.BreakerOpenSeconds <= 0 {
		cfg.Fetch.BreakerOpenSeconds = 120
	}
	if cfg.Image.TimeoutSeconds <= 0 {
		cfg.Image.TimeoutSeconds = 30
	}
	if cfg.Image.MaxBytes <= 0 {
		cfg.Image.MaxBytes = 20 << 20
	}
	if cfg.Image.RatePerSecond <= 0 {
		cfg.Image.RatePerSecond = 5
	}
	if cfg.Image.Burst <= 0 {
		cfg.Image.Burst = 1
	}
	if cfg.Image.CacheSize <= 0 {
		cfg.Image.CacheSize = 1024
	}
	if cfg.Image.CacheTTLMinutes <= 0 {
		cfg.Image.CacheTTLMinutes = 60
	}
	if cfg.Schedule.Spec == "" {
		cfg.Schedule.Spec = defaultScheduleSpec
	}
	if cfg.Trigger.RateLimitSeconds < 0 {
		cfg.Trigger.RateLimitSeconds = 0
	}
	if cfg.RichTextFormat == "" {
		cfg.RichTextFormat = defaultRichTextFormat
	}
	return nil
}
