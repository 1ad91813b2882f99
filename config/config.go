// Package config loads service configuration from a YAML file with
// TXQ_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/siga-labs/txq/queue"
)

// Config is the full configuration of a txqd instance.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Reclaim  ReclaimConfig  `mapstructure:"reclaim"`
	Callback CallbackConfig `mapstructure:"callback"`
	Queues   []QueueConfig  `mapstructure:"queues"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig configures the backlog and status backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig configures the academic entity store.
type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// ReclaimConfig configures the visibility reclaimer.
type ReclaimConfig struct {
	Visibility time.Duration `mapstructure:"visibility"`
	Schedule   string        `mapstructure:"schedule"`
}

// CallbackConfig configures the outbound webhook notifier.
type CallbackConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// QueueConfig declares one queue. Zero values fall back to the
// descriptor defaults.
type QueueConfig struct {
	Name        string        `mapstructure:"name"`
	Workers     int           `mapstructure:"workers"`
	Priorities  int           `mapstructure:"priorities"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
	MaxQueued   int64         `mapstructure:"max_queued"`
	Policy      string        `mapstructure:"policy"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
	Paused      bool          `mapstructure:"paused"`
}

// Descriptor converts the declaration into a normalized queue descriptor.
func (q QueueConfig) Descriptor() queue.Descriptor {
	d := queue.Descriptor{
		Name:         q.Name,
		Workers:      q.Workers,
		Priorities:   q.Priorities,
		MaxInFlight:  q.MaxInFlight,
		MaxQueued:    q.MaxQueued,
		RejectPolicy: queue.RejectPolicy(q.Policy),
		MaxRetries:   q.MaxRetries,
		BaseBackoff:  q.BaseBackoff,
		RateLimit:    q.RateLimit,
		RateBurst:    q.RateBurst,
		Paused:       q.Paused,
	}
	return d.Normalize()
}

// Load reads the configuration file at path. An empty path falls back to
// txq.yaml in the working directory or /etc/txq. Environment variables
// prefixed TXQ_ override file values (TXQ_REDIS_ADDR overrides
// redis.addr).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TXQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("txq")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/txq")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("txq/config: read config: %w", err)
		}
		// No file anywhere on the search path: defaults plus env only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("txq/config: unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("postgres.migrate", true)
	v.SetDefault("reclaim.visibility", time.Minute)
	v.SetDefault("reclaim.schedule", "@every 30s")
	v.SetDefault("callback.timeout", 10*time.Second)
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("txq/config: redis.addr is required")
	}
	seen := make(map[string]bool, len(c.Queues))
	for _, q := range c.Queues {
		if q.Name == "" {
			return fmt.Errorf("txq/config: queue declarations require a name")
		}
		if seen[q.Name] {
			return fmt.Errorf("txq/config: queue %q declared twice", q.Name)
		}
		seen[q.Name] = true
		switch queue.RejectPolicy(q.Policy) {
		case "", queue.PolicyReject, queue.PolicyDeadLetter, queue.PolicyBlock:
		default:
			return fmt.Errorf("txq/config: queue %q has unknown policy %q", q.Name, q.Policy)
		}
	}
	return nil
}

// Descriptors returns the declared queues as normalized descriptors.
func (c *Config) Descriptors() []queue.Descriptor {
	out := make([]queue.Descriptor, 0, len(c.Queues))
	for _, q := range c.Queues {
		out = append(out, q.Descriptor())
	}
	return out
}
