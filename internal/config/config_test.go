package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/trackr/internal/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackr.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[tracker]
enabled = false
session_id = "build-42"

[queue]
max_batch_size = 64
flush_interval = "250ms"
high_water = 128

[storage]
dsn = "sqlite://calls.db"

[log.slog]
level = "debug"
format = "json"
color = false

[log.file]
path = "logs/trackr.log"

[server]
listen = ":8181"
base_path = "/ingest"
api_key = "s3cret"
metrics = false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracker.Enabled {
		t.Fatalf("expected tracker disabled")
	}
	if cfg.Tracker.SessionID != "build-42" {
		t.Fatalf("session_id = %q", cfg.Tracker.SessionID)
	}
	if cfg.Queue.MaxBatchSize != 64 || cfg.Queue.HighWater != 128 {
		t.Fatalf("queue sizes = %d/%d", cfg.Queue.MaxBatchSize, cfg.Queue.HighWater)
	}
	if cfg.Queue.FlushInterval != 250*time.Millisecond {
		t.Fatalf("flush_interval = %v", cfg.Queue.FlushInterval)
	}
	if cfg.Storage.DSN != "sqlite://calls.db" {
		t.Fatalf("dsn = %q", cfg.Storage.DSN)
	}
	if cfg.Log.Slog.Level != "debug" || cfg.Log.Slog.Format != "json" || cfg.Log.Slog.Color {
		t.Fatalf("unexpected slog config: %+v", cfg.Log.Slog)
	}
	if cfg.Log.File.Path != "logs/trackr.log" {
		t.Fatalf("log file path = %q", cfg.Log.File.Path)
	}
	if cfg.Log.File.MaxSizeMB != logger.DefaultMaxSizeMB {
		t.Fatalf("log rotation default not applied: %d", cfg.Log.File.MaxSizeMB)
	}
	if cfg.Server.Listen != ":8181" || cfg.Server.BasePath != "/ingest" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.APIKey != "s3cret" || cfg.Server.Metrics {
		t.Fatalf("server auth/metrics = %+v", cfg.Server)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[tracker]
session_id = "abc"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Tracker.Enabled {
		t.Fatalf("tracker should default to enabled")
	}
	if cfg.Queue.MaxBatchSize != DefaultMaxBatchSize {
		t.Fatalf("max_batch_size = %d", cfg.Queue.MaxBatchSize)
	}
	if cfg.Queue.FlushInterval != DefaultFlushInterval {
		t.Fatalf("flush_interval = %v", cfg.Queue.FlushInterval)
	}
	if cfg.Storage.DSN != DefaultDSN {
		t.Fatalf("dsn = %q", cfg.Storage.DSN)
	}
	if cfg.Server.Listen != DefaultListen || cfg.Server.BasePath != DefaultBasePath {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if !cfg.Server.Metrics {
		t.Fatalf("metrics should default to enabled")
	}
	if cfg.Log.Slog.Level != "info" || cfg.Log.Slog.Format != "text" {
		t.Fatalf("log defaults = %+v", cfg.Log.Slog)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "zero batch size",
			body: "[queue]\nmax_batch_size = 0\n",
			want: "max_batch_size",
		},
		{
			name: "negative interval",
			body: "[queue]\nflush_interval = \"-1s\"\n",
			want: "flush_interval",
		},
		{
			name: "negative high water",
			body: "[queue]\nhigh_water = -5\n",
			want: "high_water",
		},
		{
			name: "blank dsn",
			body: "[storage]\ndsn = \"  \"\n",
			want: "storage.dsn",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
