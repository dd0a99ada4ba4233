// Package logger builds the slog logger trackr reports its own diagnostics
// through. Tracked call records never pass through here; they belong to the
// sinks.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// SlogConfig controls the handler on the console side.
type SlogConfig struct {
	Level     string `toml:"level" mapstructure:"level"`
	Format    string `toml:"format" mapstructure:"format"` // "text" or "json"
	Color     bool   `toml:"color" mapstructure:"color"`
	AddSource bool   `toml:"add_source" mapstructure:"add_source"`
}

// FileConfig mirrors the console stream into a rotating file when Path is
// set.
type FileConfig struct {
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type Config struct {
	Slog SlogConfig `toml:"slog" mapstructure:"slog"`
	File FileConfig `toml:"file" mapstructure:"file"`
}

// Default returns the configuration used when the config file has no [log]
// section: info-level colored text on stderr, no file.
func Default() Config {
	return Config{Slog: SlogConfig{Level: "info", Format: "text", Color: true}}
}

// NewSlogger builds the logger described by c. Unknown levels fall back to
// info, unknown formats to text.
func (c Config) NewSlogger() *slog.Logger {
	var w io.Writer = os.Stderr
	if c.File.Path != "" {
		fw := &lj.Logger{
			Filename:   c.File.Path,
			MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.File.Compress,
		}
		w = io.MultiWriter(os.Stderr, fw)
	}
	return slog.New(c.handler(w))
}

// handler is split from NewSlogger so tests can capture output.
func (c Config) handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Slog.Level), AddSource: c.Slog.AddSource}
	if strings.EqualFold(c.Slog.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	if c.Slog.Color {
		return NewColorTextHandler(w, opts, true)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
