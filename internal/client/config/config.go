package config

import "time"

// Config holds runtime settings for the GophBell client.
type Config struct {
	// Backend.
	BackendURL  string
	AnonKey     string
	RealtimeURL string

	// API client.
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64

	// Realtime.
	ReconnectDelay    time.Duration
	JoinTimeout       time.Duration
	HeartbeatInterval time.Duration

	// Local storage. An empty DeviceSecret disables the secure store.
	DatabasePath string
	DeviceSecret string

	// S3-compatible object storage for avatars.
	StorageEndpoint        string
	StorageRegion          string
	StorageAccessKeyID     string
	StorageSecretAccessKey string
	AvatarBucket           string

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:54321"
	c.RequestTimeout = 10 * time.Second
	c.MaxRetries = 3
	c.RetryBaseDelay = 1 * time.Second
	c.ReconnectDelay = 5 * time.Second
	c.JoinTimeout = 10 * time.Second
	c.HeartbeatInterval = 30 * time.Second
	c.DatabasePath = "gophbell.db"
	c.StorageRegion = "local"
	c.AvatarBucket = "avatars"
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, JSON (if present) and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
