package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Signalflow SignalflowConfig          `yaml:"signalflow"`
	Metrics    MetricsConfig             `yaml:"metrics"`
	Channels   ChannelsConfig            `yaml:"channels"`
	Source     SourceConfig              `yaml:"source"`
	Scan       ScanConfig                `yaml:"scan"`
	Indicators []IndicatorInstanceConfig `yaml:"indicators"`
	Storage    StorageConfig             `yaml:"storage"`
	Kafka      KafkaConfig               `yaml:"kafka"`
	Logging    LoggingConfig             `yaml:"logging"`
}

type SignalflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	ScanProgress bool `yaml:"scan_progress"`
	QueueSize    bool `yaml:"queue_size"`
}

type ChannelsConfig struct {
	TickerBuffer int `yaml:"ticker_buffer"`
	ResultBuffer int `yaml:"result_buffer"`
	ErrorBuffer  int `yaml:"error_buffer"`
}

// SourceConfig describes the HTTP vendor that serves daily price history.
type SourceConfig struct {
	BaseURL   string          `yaml:"base_url"`
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type ScanConfig struct {
	MaxWorkers   int      `yaml:"max_workers"`
	Interval     string   `yaml:"interval"`
	Benchmarks   []string `yaml:"benchmarks"`
	UniverseFile string   `yaml:"universe_file"`
	OutputDir    string   `yaml:"output_dir"`
	ReportEvery  int      `yaml:"report_every"`
}

// IndicatorInstanceConfig is one indicator instance in the scan. Settings
// collects every key that is not id, instance_id or criteria so each
// evaluator can read its own knobs.
type IndicatorInstanceConfig struct {
	ID         string                 `yaml:"id"`
	InstanceID string                 `yaml:"instance_id"`
	Criteria   interface{}            `yaml:"criteria"`
	Settings   map[string]interface{} `yaml:",inline"`
}

type StorageConfig struct {
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Archive ArchiveConfig `yaml:"archive"`
	S3      S3Config      `yaml:"s3"`
}

type SQLiteConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	SkipExisting bool   `yaml:"skip_existing"`
}

// ArchiveConfig controls the parquet signal archive written per run.
type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Metrics: MetricsConfig{
			ScanProgress: true,
			QueueSize:    true,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Channels.TickerBuffer == 0 {
		cfg.Channels.TickerBuffer = 256
	}
	if cfg.Channels.ResultBuffer == 0 {
		cfg.Channels.ResultBuffer = 256
	}
	if cfg.Channels.ErrorBuffer == 0 {
		cfg.Channels.ErrorBuffer = 64
	}
	if cfg.Scan.MaxWorkers == 0 {
		cfg.Scan.MaxWorkers = 8
	}
	if cfg.Scan.Interval == "" {
		cfg.Scan.Interval = "1d"
	}
	if cfg.Scan.OutputDir == "" {
		cfg.Scan.OutputDir = "out"
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 30 * time.Second
	}
	if cfg.Source.RateLimit.RequestsPerSecond == 0 {
		cfg.Source.RateLimit.RequestsPerSecond = 5
	}
	if cfg.Source.RateLimit.BurstSize == 0 {
		cfg.Source.RateLimit.BurstSize = 10
	}
	if cfg.Source.Retry.MaxAttempts == 0 {
		cfg.Source.Retry.MaxAttempts = 3
	}
	if cfg.Source.Retry.BaseDelay == 0 {
		cfg.Source.Retry.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Source.Retry.MaxDelay == 0 {
		cfg.Source.Retry.MaxDelay = 10 * time.Second
	}
	if cfg.Source.Retry.BackoffMultiplier == 0 {
		cfg.Source.Retry.BackoffMultiplier = 2
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Signalflow.Name == "" {
		return fmt.Errorf("signalflow.name is required")
	}

	if cfg.Signalflow.Version == "" {
		return fmt.Errorf("signalflow.version is required")
	}

	if cfg.Channels.TickerBuffer <= 0 {
		return fmt.Errorf("channels.ticker_buffer must be greater than 0")
	}

	if cfg.Scan.MaxWorkers <= 0 {
		return fmt.Errorf("scan.max_workers must be greater than 0")
	}

	if cfg.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if cfg.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be greater than 0")
	}
	if cfg.Source.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("source.retry.max_attempts must be greater than 0")
	}

	if len(cfg.Indicators) == 0 {
		return fmt.Errorf("at least one indicator must be configured")
	}
	for i, inst := range cfg.Indicators {
		if inst.ID == "" {
			return fmt.Errorf("indicators[%d].id is required", i)
		}
	}

	if cfg.Storage.SQLite.Enabled && cfg.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required when sqlite is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if cfg.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
