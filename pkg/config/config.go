// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Redis, Kafka, Index, Cache, Eviction, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Index    IndexSettings  `yaml:"index"`
	Cache    CacheConfig    `yaml:"cache"`
	Eviction EvictionConfig `yaml:"eviction"`
	Search   SearchConfig   `yaml:"search"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds the optional second cache tier. When disabled, the
// query cache runs memory-only.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds broker settings for the scraped-record ingest topic.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	RecordsTopic  string   `yaml:"recordsTopic"`
}

// IndexSettings controls tokenization and relevance scoring. Settings are
// loaded once and immutable for the process lifetime; changing them requires
// a full re-index because derived token sets depend on them.
type IndexSettings struct {
	MinTokenLength int                 `yaml:"minTokenLength"`
	MaxTokenLength int                 `yaml:"maxTokenLength"`
	StopWords      []string            `yaml:"stopWords"`
	Synonyms       map[string][]string `yaml:"synonyms"`
	Boosts         BoostSettings       `yaml:"boosts"`
}

// BoostSettings holds per-field relevance weights.
type BoostSettings struct {
	Title       float64 `yaml:"title"`
	Category    float64 `yaml:"category"`
	Description float64 `yaml:"description"`
	Brand       float64 `yaml:"brand"`
	Synonym     float64 `yaml:"synonym"`
}

// CacheConfig controls the query-result cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
	MaxEntries    int           `yaml:"maxEntries"`
}

// EvictionConfig controls the index size budget and the document sweep.
type EvictionConfig struct {
	BudgetBytes     int64         `yaml:"budgetBytes"`
	TriggerFraction float64       `yaml:"triggerFraction"`
	MaxDocumentAge  time.Duration `yaml:"maxDocumentAge"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`
	IngestBatchSize int           `yaml:"ingestBatchSize"`
}

// SearchConfig controls pagination limits.
type SearchConfig struct {
	DefaultLimit   int `yaml:"defaultLimit"`
	MaxLimit       int `yaml:"maxLimit"`
	MaxSuggestions int `yaml:"maxSuggestions"`
}

// HistoryConfig controls search-history retention.
type HistoryConfig struct {
	MaxAge time.Duration `yaml:"maxAge"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultIndexSettings returns the settings used when no config file is
// present, and the baseline for tests.
func DefaultIndexSettings() IndexSettings {
	return IndexSettings{
		MinTokenLength: 3,
		MaxTokenLength: 20,
		StopWords: []string{
			"the", "and", "for", "with", "this", "that", "from",
			"are", "was", "not", "has", "have", "will", "its",
		},
		Synonyms: map[string][]string{
			"phone":    {"smartphone", "telephone"},
			"laptop":   {"notebook", "ultrabook"},
			"tv":       {"television"},
			"sneakers": {"trainers"},
		},
		Boosts: BoostSettings{
			Title:       3.0,
			Category:    2.0,
			Description: 1.0,
			Brand:       2.5,
			Synonym:     1.5,
		},
	}
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Enabled:         true,
			Host:            "localhost",
			Port:            5432,
			Database:        "searchcore",
			User:            "searchcore",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchcore-group",
			RecordsTopic:  "product-records",
		},
		Index: DefaultIndexSettings(),
		Cache: CacheConfig{
			TTL:           60 * time.Second,
			SweepInterval: 5 * time.Minute,
			MaxEntries:    1024,
		},
		Eviction: EvictionConfig{
			BudgetBytes:     64 << 20,
			TriggerFraction: 0.9,
			MaxDocumentAge:  30 * 24 * time.Hour,
			SweepInterval:   time.Hour,
			IngestBatchSize: 100,
		},
		Search: SearchConfig{
			DefaultLimit:   20,
			MaxLimit:       100,
			MaxSuggestions: 5,
		},
		History: HistoryConfig{
			MaxAge: 90 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SC_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SC_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = v == "true"
	}
	if v := os.Getenv("SC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("SC_KAFKA_RECORDS_TOPIC"); v != "" {
		cfg.Kafka.RecordsTopic = v
	}
	if v := os.Getenv("SC_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("SC_EVICTION_BUDGET_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Eviction.BudgetBytes = n
		}
	}
	if v := os.Getenv("SC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SC_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
