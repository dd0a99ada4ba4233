package trackr

import (
	"net/http"
	"sync"
	"time"

	cfg "github.com/loykin/trackr/internal/config"
	"github.com/loykin/trackr/internal/event"
	"github.com/loykin/trackr/internal/metrics"
	"github.com/loykin/trackr/internal/pipeline"
	iapi "github.com/loykin/trackr/internal/server"
	"github.com/loykin/trackr/internal/sink"
	"github.com/loykin/trackr/internal/sink/factory"
	"github.com/loykin/trackr/pkg/track"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Record = event.Record

type Result = event.Result

type Origin = event.Origin

type Sink = sink.Sink

type Stats = pipeline.Stats

type Options = pipeline.Options

type Tracker = track.Tracker

type Config = cfg.Config

// Success builds the success arm of a call result.
func Success(v any) Result { return event.Success(v) }

// Failure builds the error arm of a call result.
func Failure(err error) Result { return event.Failure(err) }

// FormatArgs renders call arguments in display-safe form.
func FormatArgs(vs ...any) []string { return event.FormatArgs(vs...) }

// Pipeline is a thin facade over the internal event pipeline.
// It provides a stable public API for embedding.

type Pipeline struct{ inner *pipeline.Pipeline }

// New builds a pipeline from options. Call Start before enqueueing.
func New(opts Options) (*Pipeline, error) {
	p, err := pipeline.New(opts)
	if err != nil {
		return nil, err
	}
	return &Pipeline{inner: p}, nil
}

// NewFromConfig assembles a pipeline from a loaded configuration. The sink
// is built from storage.dsn; a disabled tracker section produces a no-op
// pipeline that never opens the sink.
func NewFromConfig(c *Config) (*Pipeline, error) {
	opts := Options{
		MaxBatchSize:  c.Queue.MaxBatchSize,
		FlushInterval: c.Queue.FlushInterval,
		HighWater:     c.Queue.HighWater,
		Disabled:      !c.Tracker.Enabled,
		Logger:        c.Log.NewSlogger(),
	}
	if c.Tracker.Enabled {
		s, err := factory.NewSinkFromDSN(c.Storage.DSN)
		if err != nil {
			return nil, err
		}
		opts.Sink = s
	}
	return New(opts)
}

func (p *Pipeline) Start() error                         { return p.inner.Start() }
func (p *Pipeline) Enqueue(rec Record) error             { return p.inner.Enqueue(rec) }
func (p *Pipeline) Shutdown(timeout time.Duration) error { return p.inner.Shutdown(timeout) }
func (p *Pipeline) Stats() Stats                         { return p.inner.Stats() }
func (p *Pipeline) State() pipeline.State                { return p.inner.State() }

// Tracker returns a call tracker feeding this pipeline.
func (p *Pipeline) Tracker(sessionID string) *Tracker {
	return track.New(p.inner, track.Options{SessionID: sessionID})
}

// Call runs fn through the tracker and records the returned value.
func Call[R any](t *Tracker, name string, fn func() (R, error), args ...any) (R, error) {
	return track.Call(t, name, fn, args...)
}

// LoadConfig reads a trackr TOML configuration file.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config { return cfg.Default() }

// NewSinkFromDSN builds a sink from a storage DSN: sqlite://, postgres://,
// clickhouse://, opensearch://, http(s)://, "stdout", or a JSONL file path.
func NewSinkFromDSN(dsn string) (Sink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts a collector HTTP server feeding the given pipeline.
func NewHTTPServer(addr, basePath string, p *Pipeline) (*http.Server, error) {
	return iapi.NewServer(addr, p.inner, iapi.Options{BasePath: basePath})
}

// NewServerFromConfig starts a collector HTTP server using the [server]
// section of the configuration, including API key auth and the /metrics
// mount when enabled.
func NewServerFromConfig(c *Config, p *Pipeline) (*http.Server, error) {
	return iapi.NewServer(c.Server.Listen, p.inner, iapi.Options{
		BasePath: c.Server.BasePath,
		APIKey:   c.Server.APIKey,
		Metrics:  c.Server.Metrics,
	})
}

// Process-wide default pipeline, created once by Init.

var (
	defaultMu sync.Mutex
	defaultPl *Pipeline
)

// Init builds and starts the process-wide pipeline from a config file.
// An empty path uses the built-in defaults. Repeated calls return the
// already-initialized pipeline.
func Init(path string) (*Pipeline, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPl != nil {
		return defaultPl, nil
	}
	c := DefaultConfig()
	if path != "" {
		loaded, err := cfg.Load(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	}
	pl, err := NewFromConfig(c)
	if err != nil {
		return nil, err
	}
	if err := pl.Start(); err != nil {
		return nil, err
	}
	defaultPl = pl
	return pl, nil
}

// Default returns the pipeline created by Init, or nil before Init.
func Default() *Pipeline {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultPl
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
