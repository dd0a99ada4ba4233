package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/trackr/internal/event"
	"github.com/loykin/trackr/internal/metrics"
	"github.com/loykin/trackr/internal/pipeline"
	"github.com/loykin/trackr/internal/sink"
)

// Router provides embeddable HTTP handlers for a trackr collector.
// Endpoints:
//   POST {basePath}/logs     body: JSON array of records
//   GET  {basePath}/stats    pipeline counters and state
//   GET  {basePath}/healthz  liveness plus pipeline state
//   GET  /metrics            Prometheus exposition (when enabled)
// Ingested records are re-sequenced by the collector's own queue, so
// ordering at the storage backend follows arrival order here.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	pl       *pipeline.Pipeline
	basePath string
	apiKey   string
	metrics  bool
}

// Options configures the collector surface. An empty APIKey disables
// authentication; Metrics mounts the Prometheus handler at /metrics.
type Options struct {
	BasePath string
	APIKey   string
	Metrics  bool
}

// NewRouter constructs a Router over a running pipeline.
// Example BasePath: "/api" results in /api/logs, /api/stats, /api/healthz.
func NewRouter(pl *pipeline.Pipeline, opts Options) *Router {
	return &Router{
		pl:       pl,
		basePath: sanitizeBase(opts.BasePath),
		apiKey:   opts.APIKey,
		metrics:  opts.Metrics,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.Use(r.requireAPIKey)
	group.POST("/logs", r.handleIngest)
	group.GET("/stats", r.handleStats)
	group.GET("/healthz", r.handleHealthz)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone collector HTTP server on addr using this
// router. The returned server can be stopped via its Shutdown or Close.
func NewServer(addr string, pl *pipeline.Pipeline, opts Options) (*http.Server, error) {
	r := NewRouter(pl, opts)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type ingestResp struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

type healthResp struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

func (r *Router) requireAPIKey(c *gin.Context) {
	if r.apiKey == "" {
		c.Next()
		return
	}
	if c.GetHeader(sink.APIKeyHeader) != r.apiKey {
		writeJSON(c, http.StatusUnauthorized, errorResp{Error: "invalid or missing api key"})
		c.Abort()
		return
	}
	c.Next()
}

func (r *Router) handleIngest(c *gin.Context) {
	var batch []event.Record
	if err := c.ShouldBindJSON(&batch); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	accepted, rejected := 0, 0
	for _, rec := range batch {
		if err := r.pl.Enqueue(rec); err != nil {
			rejected++
			continue
		}
		accepted++
	}
	if len(batch) > 0 && accepted == 0 {
		// Pipeline no longer accepts records (draining or stopped).
		writeJSON(c, http.StatusServiceUnavailable, ingestResp{Accepted: accepted, Rejected: rejected})
		return
	}
	writeJSON(c, http.StatusOK, ingestResp{Accepted: accepted, Rejected: rejected})
}

func (r *Router) handleStats(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.pl.Stats())
}

func (r *Router) handleHealthz(c *gin.Context) {
	st := r.pl.State()
	writeJSON(c, http.StatusOK, healthResp{OK: st == pipeline.StateRunning, State: st.String()})
}
