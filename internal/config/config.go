// Package config loads the fhe-server configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config is the complete server configuration.
type Config struct {
	Log      LogConfig      `toml:"log"`
	HTTP     HTTPConfig     `toml:"http"`
	Metrics  MetricsConfig  `toml:"metrics"`
	NATS     NATSConfig     `toml:"nats"`
	Queue    QueueConfig    `toml:"queue"`
	Worker   WorkerConfig   `toml:"worker"`
	Registry RegistryConfig `toml:"registry"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type HTTPConfig struct {
	Addr         string        `toml:"addr"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	// MaxBodyBytes caps request bodies; inline ciphertexts can be large.
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

// MetricsConfig configures the Prometheus listener. An empty Addr serves
// /metrics on the API listener instead.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

type NATSConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Subject    string `toml:"subject"`
	QueueGroup string `toml:"queue_group"`
}

type QueueConfig struct {
	Enabled  bool        `toml:"enabled"`
	Backend  string      `toml:"backend"`
	Name     string      `toml:"name"`
	Capacity int         `toml:"capacity"`
	Redis    RedisConfig `toml:"redis"`
}

type RedisConfig struct {
	Addr     string        `toml:"addr"`
	Password string        `toml:"password"`
	DB       int           `toml:"db"`
	Prefix   string        `toml:"prefix"`
	TTL      time.Duration `toml:"ttl"`
}

type WorkerConfig struct {
	// ComputeSlots bounds concurrent cryptographic work. Zero means GOMAXPROCS.
	ComputeSlots    int           `toml:"compute_slots"`
	JobRunners      int           `toml:"job_runners"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type RegistryConfig struct {
	Shards int `toml:"shards"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			MaxBodyBytes: 64 << 20,
		},
		NATS: NATSConfig{
			URL:        "nats://localhost:4222",
			Subject:    "fhe",
			QueueGroup: "fhe-server",
		},
		Queue: QueueConfig{
			Enabled:  true,
			Backend:  QueueMemory,
			Name:     "jobs",
			Capacity: 1024,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "fhe:",
				TTL:    24 * time.Hour,
			},
		},
		Worker: WorkerConfig{
			JobRunners:      4,
			ShutdownTimeout: 30 * time.Second,
		},
		Registry: RegistryConfig{Shards: registry.DefaultShards},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected so typos do not pass silently.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var problems []error

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Errorf("log.level: %w", err))
	}
	if c.HTTP.Addr == "" {
		problems = append(problems, errors.New("http.addr is required"))
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 {
		problems = append(problems, errors.New("http timeouts must not be negative"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		problems = append(problems, errors.New("http.max_body_bytes must be positive"))
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			problems = append(problems, errors.New("nats.url is required when nats is enabled"))
		}
		if c.NATS.Subject == "" {
			problems = append(problems, errors.New("nats.subject is required when nats is enabled"))
		}
	}
	if c.Queue.Enabled {
		switch c.Queue.Backend {
		case QueueMemory:
			if c.Queue.Capacity <= 0 {
				problems = append(problems, errors.New("queue.capacity must be positive"))
			}
		case QueueRedis:
			if c.Queue.Redis.Addr == "" {
				problems = append(problems, errors.New("queue.redis.addr is required for the redis backend"))
			}
		default:
			problems = append(problems, fmt.Errorf("queue.backend: unknown backend %q", c.Queue.Backend))
		}
		if c.Queue.Name == "" {
			problems = append(problems, errors.New("queue.name is required"))
		}
		if c.Worker.JobRunners <= 0 {
			problems = append(problems, errors.New("worker.job_runners must be positive when the queue is enabled"))
		}
	}
	if c.Worker.ComputeSlots < 0 {
		problems = append(problems, errors.New("worker.compute_slots must not be negative"))
	}
	if c.Registry.Shards <= 0 {
		problems = append(problems, errors.New("registry.shards must be positive"))
	}

	return errors.Join(problems...)
}
