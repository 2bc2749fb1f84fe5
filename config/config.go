package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Push     PushConfig     `yaml:"push"`
	FCM      FCMConfig      `yaml:"fcm"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                int `yaml:"port"`
	RateLimitPerWindow  int `yaml:"rate_limit_per_window"`
	RateLimitWindowSecs int `yaml:"rate_limit_window_seconds"`
	DeliveryTimeoutSecs int `yaml:"delivery_timeout_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// FCMConfig holds the cloud push provider settings.
type FCMConfig struct {
	Endpoint  string `yaml:"endpoint"`
	ServerKey string `yaml:"server_key"`
}

// AuthConfig holds the API key authorization settings.
type AuthConfig struct {
	// Environment gates the development sentinel key; the sentinel is only
	// honored when this is "development".
	Environment     string `yaml:"environment"`
	DevSentinelKey  string `yaml:"dev_sentinel_key"`
	MinKeyLength    int    `yaml:"min_key_length"`
	KeyCacheSeconds int    `yaml:"key_cache_seconds"`
}

// DeliveryTimeout returns the bounded timeout applied to provider calls.
func (s ServerConfig) DeliveryTimeout() time.Duration {
	return time.Duration(s.DeliveryTimeoutSecs) * time.Second
}

// RateLimitWindow returns the fixed admission-control window.
func (s ServerConfig) RateLimitWindow() time.Duration {
	return time.Duration(s.RateLimitWindowSecs) * time.Second
}

// KeyCacheTTL returns how long successful key lookups may be cached.
func (a AuthConfig) KeyCacheTTL() time.Duration {
	return time.Duration(a.KeyCacheSeconds) * time.Second
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
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

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerWindow <= 0 {
		cfg.Server.RateLimitPerWindow = 60
	}
	if cfg.Server.RateLimitWindowSecs <= 0 {
		cfg.Server.RateLimitWindowSecs = 60
	}
	if cfg.Server.DeliveryTimeoutSecs <= 0 {
		cfg.Server.DeliveryTimeoutSecs = 10
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.FCM.Endpoint == "" {
		cfg.FCM.Endpoint = "https://fcm.googleapis.com/fcm/send"
	}

	if cfg.Auth.MinKeyLength <= 0 {
		cfg.Auth.MinKeyLength = 32
	}
	if cfg.Auth.KeyCacheSeconds <= 0 {
		cfg.Auth.KeyCacheSeconds = 30
	}
	if cfg.Auth.DevSentinelKey != "" && cfg.Auth.Environment != "development" {
		log.Printf("auth.dev_sentinel_key is set but environment is %q; sentinel disabled", cfg.Auth.Environment)
		cfg.Auth.DevSentinelKey = ""
	}

	return &cfg, nil
}
