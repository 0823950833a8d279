package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd", "-u", "https://x.supabase.co", "-k", "key", "-d", "/tmp/a.db", "-t", "3", "-r", "7", "-l", "debug"},
			expected: &Config{
				BackendURL:     "https://x.supabase.co",
				AnonKey:        "key",
				DatabasePath:   "/tmp/a.db",
				RequestTimeout: 3 * time.Second,
				ReconnectDelay: 7 * time.Second,
				LogLevel:       "debug",
			},
		},
		{
			name:     "durations untouched when absent",
			args:     []string{"cmd", "-u", "https://x"},
			expected: &Config{BackendURL: "https://x", RequestTimeout: 1500 * time.Millisecond},
		},
		{name: "bad timeout", args: []string{"cmd", "-t", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			cfg := &Config{RequestTimeout: 1500 * time.Millisecond}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(cfg) })
				return
			}

			require.NotPanics(t, func() { parseFlags(cfg) })
			assert.Empty(t, cmp.Diff(tt.expected, cfg))
		})
	}
}
