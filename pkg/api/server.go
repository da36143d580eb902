// Package api exposes the HTTP surface: query submission with SSE
// streaming, audit lookup by trace id, backend health, and Prometheus
// metrics.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fathomsearch/fathom/pkg/audit"
	"github.com/fathomsearch/fathom/pkg/backend"
	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/orchestrator"
)

// Server is the API server. Build with NewServer, wire optional
// collaborators with the setters, then Start.
type Server struct {
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	sink   audit.Sink
	checks map[string]backend.HealthChecker

	engine *gin.Engine
	http   *http.Server
}

// NewServer wires the routes. gatherer feeds GET /metrics; pass the same
// registry the metrics bundle was built against.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, sink audit.Sink, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), securityHeaders())

	s := &Server{
		cfg:    cfg,
		orch:   orch,
		sink:   sink,
		checks: make(map[string]backend.HealthChecker),
		engine: engine,
	}

	engine.POST("/search", s.handleSearch)
	engine.GET("/audit/:trace_id", s.handleAudit)
	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

// SetHealthCheck registers a backend probe under a stable name. Call
// before Start.
func (s *Server) SetHealthCheck(name string, hc backend.HealthChecker) {
	s.checks[name] = hc
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	return s.http.ListenAndServe()
}

// Shutdown stops the listener and waits for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
