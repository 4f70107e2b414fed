// Package server exposes the denoising pipeline over HTTP: a WebSocket
// streaming endpoint plus health and Prometheus metrics routes.
package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audxlabs/audx-go/internal/config"
	"github.com/audxlabs/audx-go/internal/health"
	"github.com/audxlabs/audx-go/internal/observe"
	"github.com/audxlabs/audx-go/pkg/denoise"
)

// Server wires the streaming endpoint, health checks, and metrics into one
// http.Handler. The denoising engine is shared by all streams; each stream
// gets its own pipeline session.
type Server struct {
	cfg     *config.Config
	engine  denoise.Engine
	metrics *observe.Metrics
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics overrides the metrics instance, primarily for tests that
// inspect recorded values through a manual reader.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server denoising through engine with per-stream defaults
// from cfg.
func New(cfg *config.Config, engine denoise.Engine, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	health.New(health.Check{
		Name: "engine",
		Probe: func(context.Context) error {
			sess, err := s.engine.NewSession()
			if err != nil {
				return err
			}
			return sess.Close()
		},
	}).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/denoise", s.handleStream)

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the fully assembled HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }
