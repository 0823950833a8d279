// Package config loads runtime configuration for the GophBell client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A .env file in the working directory (optional) and process
//     environment variables (see parseEnv).
//  3. Optional JSON file (see parseJson) selected via -c/-config or
//     $GOPHBELL_CONFIG.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-u string   backend base URL (https://<project>.supabase.co)
//	-k string   anon API key
//	-d string   local database path
//	-t int      request timeout (seconds)
//	-r int      realtime reconnect delay (seconds)
//	-l string   log level (debug, info, warn, error)
//
// # JSON schema
//
// Durations use timex.Duration, so "10s" and integer nanoseconds both work:
//
//	{
//	  "backend_url": "https://abc.supabase.co",
//	  "anon_key": "eyJ...",
//	  "request_timeout": "10s",
//	  "reconnect_delay": "5s"
//	}
package config
