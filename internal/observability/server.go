// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability serves metrics, health probes and a status document
// over HTTP.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Endpoint paths.
const (
	PathMetrics   = "/metrics"
	PathLiveness  = "/healthz/liveness"
	PathReadiness = "/healthz/readiness"
	PathInfo      = "/info"
)

// ReadinessChecker reports whether the process is ready for work.
type ReadinessChecker func() bool

// InfoProvider returns a JSON-encodable status document.
type InfoProvider func() any

// Server exposes the observability endpoints on its own listener.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	isReady    ReadinessChecker
	info       InfoProvider
	logger     *slog.Logger
	running    atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithReadiness sets the readiness probe. Without one the server is always ready.
func WithReadiness(fn ReadinessChecker) Option {
	return func(s *Server) {
		s.isReady = fn
	}
}

// WithInfo serves fn's result as JSON on /info.
func WithInfo(fn InfoProvider) Option {
	return func(s *Server) {
		s.info = fn
	}
}

// WithCollectors registers extra collectors on the server's registry.
func WithCollectors(cs ...prometheus.Collector) Option {
	return func(s *Server) {
		s.registry.MustRegister(cs...)
	}
}

// WithMetrics calls each register function with the server's registry.
func WithMetrics(register ...func(prometheus.Registerer)) Option {
	return func(s *Server) {
		for _, r := range register {
			r(s.registry)
		}
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a server for addr ("127.0.0.1:9100", ":0", ...). Go
// runtime and process collectors are always registered.
func NewServer(addr string, opts ...Option) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		addr:     addr,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start listens and serves in the background. The returned channel receives
// a serve failure, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").In("observability").Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.In("observability").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle(PathMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc(PathLiveness, s.handleLiveness)
	mux.HandleFunc(PathReadiness, s.handleReadiness)
	mux.HandleFunc(PathInfo, s.handleInfo)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.In("observability").With("operation", "shutdown").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok\n")
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.isReady == nil || s.isReady() {
		writeText(w, http.StatusOK, "ok\n")
		return
	}
	writeText(w, http.StatusServiceUnavailable, "not ready\n")
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if s.info == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.info()); err != nil {
		s.logger.Warn("failed to write info", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // probe write error is acceptable, client may disconnect
	w.Write([]byte(body))
}
