// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package observability serves the plugin host's metrics, health checks and
// the list of loaded plugins over HTTP.
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

// ReadinessChecker reports whether the host has finished loading plugins.
type ReadinessChecker func() bool

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithReadiness sets the readiness check. Without one the host is always
// ready.
func WithReadiness(ready ReadinessChecker) ServerOption {
	return func(s *Server) { s.isReady = ready }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server serves /metrics, /plugins and the /healthz checks.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer creates a server for addr ("host:port"). Its metrics live in a
// private Prometheus registry next to the Go and process collectors.
func NewServer(addr string, opts ...ServerOption) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the plugin metrics; pass them to the registry as its
// observer.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the routes without listening.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /plugins", s.handlePlugins)
	mux.HandleFunc("GET /healthz/liveness", s.handleLiveness)
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	return mux
}

// Start listens and serves in the background. The returned channel receives
// a serve failure, and is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.In("observability").Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.In("observability").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", "error", err)
			errCh <- err
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.In("observability").With("operation", "shutdown").Wrap(err)
	}
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// pluginStatus is one element of the /plugins response.
type pluginStatus struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Version  string    `json:"version"`
	Runtime  string    `json:"runtime"`
	Path     string    `json:"path"`
	Instance string    `json:"instance"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	entries := s.metrics.Loaded()
	out := make([]pluginStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, pluginStatus{
			ID:       int(e.ID),
			Name:     e.Name,
			Version:  e.Version,
			Runtime:  e.Runtime,
			Path:     e.Path,
			Instance: e.Instance.String(),
			LoadedAt: e.LoadedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Debug("plugins response not written", "error", err)
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	s.writeText(w, http.StatusOK, "ok\n")
}

// handleReadiness answers 503 until plugin loading has finished.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.isReady == nil || s.isReady() {
		s.writeText(w, http.StatusOK, "ok\n")
		return
	}
	s.writeText(w, http.StatusServiceUnavailable, "loading plugins\n")
}

func (s *Server) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Debug("health response not written", "error", err)
	}
}
