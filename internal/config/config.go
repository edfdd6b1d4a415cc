package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when LEDGER_CONFIG is unset; it may be absent.
const DefaultPath = "ledger.yml"

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	ServiceName string        `yaml:"service_name"`
	Environment string        `yaml:"environment"`
	LogLevel    string        `yaml:"log_level"`
	HTTP        HTTPConfig    `yaml:"http"`
	GRPC        GRPCConfig    `yaml:"grpc"`
	Storage     StorageConfig `yaml:"storage"`
	Redis       RedisConfig   `yaml:"redis"`
	Kafka       KafkaConfig   `yaml:"kafka"`
	Lock        LockConfig    `yaml:"lock"`
	Events      EventsConfig  `yaml:"events"`
	Tracing     TracingConfig `yaml:"tracing"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

// RedisConfig enables the shared locker and idempotency store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LockConfig struct {
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	TTL         time.Duration `yaml:"ttl"`
}

type EventsConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// TracingConfig exports spans to Jaeger when JaegerEndpoint is set.
// SampleRatio applies to root spans; zero samples everything.
type TracingConfig struct {
	JaegerEndpoint string  `yaml:"jaeger_endpoint"`
	SampleRatio    float64 `yaml:"sample_ratio"`
}

func Default() *Config {
	return &Config{
		ServiceName: "stock-ledger",
		Environment: "development",
		LogLevel:    "info",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		GRPC: GRPCConfig{Addr: ":50051"},
		Storage: StorageConfig{
			Driver:          DriverMemory,
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Redis: RedisConfig{PoolSize: 100},
		Kafka: KafkaConfig{Topic: "ledger.transaction.committed"},
		Lock: LockConfig{
			WaitTimeout: 2 * time.Second,
			TTL:         10 * time.Second,
		},
		Events: EventsConfig{QueueSize: 10000, Workers: 4},
	}
}

// Load reads LEDGER_CONFIG (or ledger.yml) over the defaults and then applies
// environment overrides.
func Load() (*Config, error) {
	path := os.Getenv("LEDGER_CONFIG")
	if path == "" {
		path = DefaultPath
	}

	cfg, err := LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) && path == DefaultPath {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg.applyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.HTTP.Addr, "HTTP_ADDR")
	set(&c.GRPC.Addr, "GRPC_ADDR")
	set(&c.Storage.Driver, "STORAGE_DRIVER")
	set(&c.Storage.DSN, "STORAGE_DSN")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.Environment, "ENVIRONMENT")
	set(&c.Tracing.JaegerEndpoint, "JAEGER_ENDPOINT")

	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverMySQL, DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be memory, mysql or postgres, got %q", c.Storage.Driver)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Lock.WaitTimeout <= 0 {
		return fmt.Errorf("lock.wait_timeout must be positive")
	}
	if c.Redis.Addr != "" && c.Lock.TTL <= c.Lock.WaitTimeout {
		return fmt.Errorf("lock.ttl (%s) must exceed lock.wait_timeout (%s)", c.Lock.TTL, c.Lock.WaitTimeout)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	if c.Events.QueueSize < 0 || c.Events.Workers <= 0 {
		return fmt.Errorf("events.queue_size must be >= 0 and events.workers > 0")
	}
	return nil
}
