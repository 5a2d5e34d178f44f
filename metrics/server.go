package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxpert/amqp-peer/interfaces"
)

// DefaultAddress is the AMQP exporter port registered with Prometheus
const DefaultAddress = ":9419"

// HealthFunc reports the current server health for /health
type HealthFunc func() interfaces.HealthStatus

// Server provides an HTTP server for Prometheus metrics
type Server struct {
	httpServer *http.Server
}

// NewServer serves the metrics in gatherer on address. health may be nil,
// in which case /health always answers OK.
func NewServer(address string, gatherer prometheus.Gatherer, health HealthFunc) *Server {
	if address == "" {
		address = DefaultAddress
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := interfaces.HealthStatus{Status: "ok", Timestamp: time.Now()}
		if health != nil {
			status = health()
		}
		w.Header().Set("Content-Type", "application/json")
		if status.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until Stop
func (s *Server) Start() error {
	return s.ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve serves on an existing listener until Stop
func (s *Server) Serve(listener net.Listener) error {
	return s.ignoreClosed(s.httpServer.Serve(listener))
}

// Stop gracefully stops the metrics HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Address returns the configured listen address
func (s *Server) Address() string {
	return s.httpServer.Addr
}

func (s *Server) ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
