package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophbell/internal/flagx"
	"github.com/dmitrijs2005/gophbell/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-value fields that are absent from the file leave Config untouched.
type JsonConfig struct {
	BackendURL             string          `json:"backend_url"`
	AnonKey                string          `json:"anon_key"`
	RealtimeURL            string          `json:"realtime_url"`
	RequestTimeout         *timex.Duration `json:"request_timeout"`
	MaxRetries             *int            `json:"max_retries"`
	RetryBaseDelay         *timex.Duration `json:"retry_base_delay"`
	RequestsPerSecond      *float64        `json:"requests_per_second"`
	ReconnectDelay         *timex.Duration `json:"reconnect_delay"`
	JoinTimeout            *timex.Duration `json:"join_timeout"`
	HeartbeatInterval      *timex.Duration `json:"heartbeat_interval"`
	DatabasePath           string          `json:"database_path"`
	DeviceSecret           string          `json:"device_secret"`
	StorageEndpoint        string          `json:"storage_endpoint"`
	StorageRegion          string          `json:"storage_region"`
	StorageAccessKeyID     string          `json:"storage_access_key_id"`
	StorageSecretAccessKey string          `json:"storage_secret_access_key"`
	AvatarBucket           string          `json:"avatar_bucket"`
	LogLevel               string          `json:"log_level"`
	LogFormat              string          `json:"log_format"`
}

// parseJson overlays cfg with values from the JSON file named by -c/-config
// or $GOPHBELL_CONFIG. It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&cfg.BackendURL, jc.BackendURL)
	str(&cfg.AnonKey, jc.AnonKey)
	str(&cfg.RealtimeURL, jc.RealtimeURL)
	str(&cfg.DatabasePath, jc.DatabasePath)
	str(&cfg.DeviceSecret, jc.DeviceSecret)
	str(&cfg.StorageEndpoint, jc.StorageEndpoint)
	str(&cfg.StorageRegion, jc.StorageRegion)
	str(&cfg.StorageAccessKeyID, jc.StorageAccessKeyID)
	str(&cfg.StorageSecretAccessKey, jc.StorageSecretAccessKey)
	str(&cfg.AvatarBucket, jc.AvatarBucket)
	str(&cfg.LogLevel, jc.LogLevel)
	str(&cfg.LogFormat, jc.LogFormat)

	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}
	if jc.RetryBaseDelay != nil {
		cfg.RetryBaseDelay = jc.RetryBaseDelay.Duration
	}
	if jc.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *jc.RequestsPerSecond
	}
	if jc.ReconnectDelay != nil {
		cfg.ReconnectDelay = jc.ReconnectDelay.Duration
	}
	if jc.JoinTimeout != nil {
		cfg.JoinTimeout = jc.JoinTimeout.Duration
	}
	if jc.HeartbeatInterval != nil {
		cfg.HeartbeatInterval = jc.HeartbeatInterval.Duration
	}
}
