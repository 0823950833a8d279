package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// parseEnv overlays cfg with environment variables. A .env file in the
// working directory is loaded first if it exists; variables already set in
// the process environment are not overwritten by it.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	setString(&cfg.BackendURL, "SUPABASE_URL")
	setString(&cfg.AnonKey, "SUPABASE_ANON_KEY")
	setString(&cfg.RealtimeURL, "SUPABASE_REALTIME_URL")
	setString(&cfg.DatabasePath, "GOPHBELL_DB_PATH")
	setString(&cfg.DeviceSecret, "GOPHBELL_DEVICE_SECRET")
	setString(&cfg.StorageEndpoint, "SUPABASE_S3_ENDPOINT")
	setString(&cfg.StorageRegion, "SUPABASE_S3_REGION")
	setString(&cfg.StorageAccessKeyID, "SUPABASE_S3_ACCESS_KEY_ID")
	setString(&cfg.StorageSecretAccessKey, "SUPABASE_S3_SECRET_ACCESS_KEY")
	setString(&cfg.LogLevel, "GOPHBELL_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}
