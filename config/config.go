// Package config loads the service configuration from file and environment.
// Every value has a default; a missing config file is not an error.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the TrailGuard service.
type Config struct {
	API struct {
		Host           string   `mapstructure:"host"`
		Port           int      `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
		TrustProxy     bool     `mapstructure:"trust_proxy"`
		RateLimit      struct {
			RequestsPerSecond float64 `mapstructure:"requests_per_second"`
			Burst             int     `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Auth struct {
		// APIKey is the shared secret every device presents. Empty disables
		// the server entirely at validation time; intake without auth is
		// never allowed.
		APIKey string `mapstructure:"api_key"`
		// DeviceSecrets maps device id to its HMAC signing secret.
		DeviceSecrets map[string]string `mapstructure:"device_secrets"`
		TimestampSkew time.Duration     `mapstructure:"timestamp_skew"`
	} `mapstructure:"auth"`

	Intake struct {
		DedupWindow    time.Duration `mapstructure:"dedup_window"`
		HistorySize    int           `mapstructure:"history_size"`
		AckCapacity    int           `mapstructure:"ack_capacity"`
		AuditSize      int           `mapstructure:"audit_size"`
		AllowedSpecies []string      `mapstructure:"allowed_species"`
	} `mapstructure:"intake"`

	Devices struct {
		// StaleAfter is how long without contact before a device is
		// reported offline.
		StaleAfter time.Duration `mapstructure:"stale_after"`
	} `mapstructure:"devices"`

	Alerts struct {
		// MessageDelay paces consecutive sends in a dispatch batch.
		MessageDelay time.Duration `mapstructure:"message_delay"`
		Breaker      struct {
			MaxFailures         uint32        `mapstructure:"max_failures"`
			Timeout             time.Duration `mapstructure:"timeout"`
			MaxHalfOpenRequests uint32        `mapstructure:"max_half_open_requests"`
		} `mapstructure:"breaker"`
		WhatsApp struct {
			GatewayURL string `mapstructure:"gateway_url"`
			Token      string `mapstructure:"token"`
		} `mapstructure:"whatsapp"`
		SMS struct {
			GatewayURL string `mapstructure:"gateway_url"`
			APIKey     string `mapstructure:"api_key"`
			SenderID   string `mapstructure:"sender_id"`
		} `mapstructure:"sms"`
		Email struct {
			SMTPHost    string `mapstructure:"smtp_host"`
			SMTPPort    int    `mapstructure:"smtp_port"`
			Username    string `mapstructure:"username"`
			Password    string `mapstructure:"password"`
			FromAddress string `mapstructure:"from_address"`
		} `mapstructure:"email"`
	} `mapstructure:"alerts"`

	Stream struct {
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
		SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
	} `mapstructure:"stream"`

	Storage struct {
		// DedupBackend selects "memory" or "redis".
		DedupBackend string `mapstructure:"dedup_backend"`
		Redis        struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
		// LedgerBackend selects "memory" or "sqlite".
		LedgerBackend string `mapstructure:"ledger_backend"`
		SQLitePath    string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`

	Client struct {
		RequestTimeout   time.Duration `mapstructure:"request_timeout"`
		RequestRetries   int           `mapstructure:"request_retries"`
		StreamRetryDelay time.Duration `mapstructure:"stream_retry_delay"`
		HealthInterval   time.Duration `mapstructure:"health_interval"`
		HealthTimeout    time.Duration `mapstructure:"health_timeout"`
		BackoffBase      time.Duration `mapstructure:"backoff_base"`
		BackoffMax       time.Duration `mapstructure:"backoff_max"`
	} `mapstructure:"client"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("api.trust_proxy", false)
	viper.SetDefault("api.rate_limit.requests_per_second", 50)
	viper.SetDefault("api.rate_limit.burst", 100)

	viper.SetDefault("auth.api_key", "")
	viper.SetDefault("auth.timestamp_skew", 300*time.Second)

	viper.SetDefault("intake.dedup_window", 300*time.Second)
	viper.SetDefault("intake.history_size", 1000)
	viper.SetDefault("intake.ack_capacity", 4096)
	viper.SetDefault("intake.audit_size", 2048)
	viper.SetDefault("intake.allowed_species",
		[]string{"tiger", "leopard", "elephant", "bear", "boar", "lion"})

	viper.SetDefault("devices.stale_after", 180*time.Second)

	viper.SetDefault("alerts.message_delay", 200*time.Millisecond)
	viper.SetDefault("alerts.breaker.max_failures", 3)
	viper.SetDefault("alerts.breaker.timeout", 60*time.Second)
	viper.SetDefault("alerts.breaker.max_half_open_requests", 1)
	viper.SetDefault("alerts.email.smtp_port", 587)

	viper.SetDefault("stream.heartbeat_interval", 30*time.Second)
	viper.SetDefault("stream.subscriber_buffer", 64)

	viper.SetDefault("storage.dedup_backend", "memory")
	viper.SetDefault("storage.redis.addr", "127.0.0.1:6379")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.ledger_backend", "memory")
	viper.SetDefault("storage.sqlite_path", "./data/trailguard.db")

	viper.SetDefault("client.request_timeout", 10*time.Second)
	viper.SetDefault("client.request_retries", 3)
	viper.SetDefault("client.stream_retry_delay", 3*time.Second)
	viper.SetDefault("client.health_interval", 5*time.Second)
	viper.SetDefault("client.health_timeout", 5*time.Second)
	viper.SetDefault("client.backoff_base", time.Second)
	viper.SetDefault("client.backoff_max", 30*time.Second)

	viper.SetDefault("log.level", "info")
}

// LoadConfig reads configuration from ./config.yaml (optional) and the
// TRAILGUARD_* environment, applying defaults for everything else.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("TRAILGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func validateConfig(config *Config) error {
	if config.API.Port < 1 || config.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", config.API.Port)
	}
	if config.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set; intake without authentication is not supported")
	}
	if config.Auth.TimestampSkew <= 0 {
		return fmt.Errorf("auth.timestamp_skew must be positive")
	}
	if config.Intake.DedupWindow <= 0 {
		return fmt.Errorf("intake.dedup_window must be positive")
	}
	if config.Intake.HistorySize < 1 {
		return fmt.Errorf("intake.history_size must be at least 1")
	}
	if config.Intake.AckCapacity < 1 {
		return fmt.Errorf("intake.ack_capacity must be at least 1")
	}
	switch config.Storage.DedupBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("storage.dedup_backend %q is not supported (memory, redis)", config.Storage.DedupBackend)
	}
	switch config.Storage.LedgerBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.ledger_backend %q is not supported (memory, sqlite)", config.Storage.LedgerBackend)
	}
	if config.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("stream.heartbeat_interval must be positive")
	}
	if config.Alerts.Breaker.MaxFailures == 0 {
		return fmt.Errorf("alerts.breaker.max_failures must be at least 1")
	}
	return nil
}
