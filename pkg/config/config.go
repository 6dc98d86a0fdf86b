// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Kafka, Redis, Ingest, Publisher, etc.).
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
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Publisher PublisherConfig `yaml:"publisher"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the metastore.
type PostgresConfig struct {
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SegmentUploaded string `yaml:"segmentUploaded"`
}

// RedisConfig holds Redis connection parameters for the publish dedup cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// IngestConfig controls the write-ingress decompression stage.
type IngestConfig struct {
	MaxDecodedBodyBytes int64 `yaml:"maxDecodedBodyBytes"`
	BrotliBufferBytes   int   `yaml:"brotliBufferBytes"`
}

// PublisherConfig controls the segment publisher actors: shard count, inbox
// capacity, and the retry policy applied to transient metastore failures.
type PublisherConfig struct {
	Shards              int           `yaml:"shards"`
	InboxSize           int           `yaml:"inboxSize"`
	RetryMaxAttempts    int           `yaml:"retryMaxAttempts"`
	RetryInitialBackoff time.Duration `yaml:"retryInitialBackoff"`
	RetryMaxBackoff     time.Duration `yaml:"retryMaxBackoff"`
	DedupTTL            time.Duration `yaml:"dedupTtl"`
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
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            7280,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  25 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "meridian",
			User:            "meridian",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "meridian-publisher",
			Topics: KafkaTopics{
				SegmentUploaded: "segment-uploaded",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Ingest: IngestConfig{
			MaxDecodedBodyBytes: 64 << 20,
			BrotliBufferBytes:   4096,
		},
		Publisher: PublisherConfig{
			Shards:              4,
			InboxSize:           128,
			RetryMaxAttempts:    5,
			RetryInitialBackoff: 250 * time.Millisecond,
			RetryMaxBackoff:     10 * time.Second,
			DedupTTL:            15 * time.Minute,
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

// validate rejects configurations that would disable required safety limits.
// The decoded-body cap must never be unbounded.
func validate(cfg *Config) error {
	if cfg.Ingest.MaxDecodedBodyBytes <= 0 {
		return fmt.Errorf("ingest.maxDecodedBodyBytes must be positive, got %d", cfg.Ingest.MaxDecodedBodyBytes)
	}
	if cfg.Ingest.BrotliBufferBytes <= 0 {
		return fmt.Errorf("ingest.brotliBufferBytes must be positive, got %d", cfg.Ingest.BrotliBufferBytes)
	}
	if cfg.Publisher.Shards <= 0 {
		return fmt.Errorf("publisher.shards must be positive, got %d", cfg.Publisher.Shards)
	}
	if cfg.Publisher.InboxSize <= 0 {
		return fmt.Errorf("publisher.inboxSize must be positive, got %d", cfg.Publisher.InboxSize)
	}
	if cfg.Publisher.RetryMaxAttempts <= 0 {
		return fmt.Errorf("publisher.retryMaxAttempts must be positive, got %d", cfg.Publisher.RetryMaxAttempts)
	}
	return nil
}

// applyEnvOverrides reads MD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MD_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("MD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MD_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("MD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("MD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MD_INGEST_MAX_DECODED_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Ingest.MaxDecodedBodyBytes = n
		}
	}
	if v := os.Getenv("MD_PUBLISHER_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Publisher.Shards = n
		}
	}
	if v := os.Getenv("MD_PUBLISHER_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Publisher.RetryMaxAttempts = n
		}
	}
	if v := os.Getenv("MD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
