// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker returns whether the service is ready to accept connections.
type ReadinessChecker func() bool

// Metrics contains the store's custom Prometheus metrics.
type Metrics struct {
	AppendsTotal           *prometheus.CounterVec
	EventsAppendedTotal    prometheus.Counter
	SubscriptionDeliveries *prometheus.CounterVec
	SubscriptionParked     *prometheus.CounterVec
	CheckpointLag          *prometheus.GaugeVec
}

// NewMetrics creates and registers the store's custom metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventstore_appends_total",
				Help: "Total number of append calls by stream and outcome",
			},
			[]string{"stream", "outcome"},
		),
		EventsAppendedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eventstore_events_appended_total",
				Help: "Total number of events durably appended across all streams",
			},
		),
		SubscriptionDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventstore_subscription_deliveries_total",
				Help: "Total number of deliveries to subscription consumers by subscription and outcome",
			},
			[]string{"subscription", "outcome"},
		),
		SubscriptionParked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventstore_subscription_parked_total",
				Help: "Total number of events parked by a subscription after exhausting retries",
			},
			[]string{"subscription"},
		),
		CheckpointLag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventstore_subscription_checkpoint_lag",
				Help: "Catch-up progress of a subscription: 0 once it has read through to its stream's head, otherwise the size of the last full catch-up batch it delivered",
			},
			[]string{"subscription"},
		),
	}

	reg.MustRegister(m.AppendsTotal)
	reg.MustRegister(m.EventsAppendedTotal)
	reg.MustRegister(m.SubscriptionDeliveries)
	reg.MustRegister(m.SubscriptionParked)
	reg.MustRegister(m.CheckpointLag)

	return m
}

// ObserveAppend records the outcome of one Append call. eventCount is only
// added to EventsAppendedTotal when outcome is "success". m may be nil, in
// which case ObserveAppend is a no-op, so callers that build a Store without
// an observability Server (e.g. in unit tests) don't need a nil check at
// every call site.
func (m *Metrics) ObserveAppend(stream, outcome string, eventCount int) {
	if m == nil {
		return
	}
	m.AppendsTotal.WithLabelValues(stream, outcome).Inc()
	if outcome == "success" {
		m.EventsAppendedTotal.Add(float64(eventCount))
	}
}

// ObserveDelivery records one subscription delivery outcome ("ack", "skip",
// or "park"). m may be nil.
func (m *Metrics) ObserveDelivery(subscription, outcome string) {
	if m == nil {
		return
	}
	m.SubscriptionDeliveries.WithLabelValues(subscription, outcome).Inc()
}

// ObserveParked increments the parked-event counter for a subscription. m
// may be nil.
func (m *Metrics) ObserveParked(subscription string) {
	if m == nil {
		return
	}
	m.SubscriptionParked.WithLabelValues(subscription).Inc()
}

// SetCheckpointLag records a subscription's catch-up lag value: the worker
// sets 0 once it reaches the stream's head and the size of the last full
// catch-up batch otherwise. m may be nil.
func (m *Metrics) SetCheckpointLag(subscription string, lag float64) {
	if m == nil {
		return
	}
	m.CheckpointLag.WithLabelValues(subscription).Set(lag)
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Create a new registry to avoid polluting the global one
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Register custom metrics
	metrics := NewMetrics(registry)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}

	return s
}

// Metrics returns the custom metrics for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// Kubernetes-style health probes
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown observability server: %w", err)
		}
	}

	s.running.Store(false)
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string before the first successful Start; after Stop it
// still returns the last listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 if the process is running.
// This is a simple check that the process is alive.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 if the service is ready to accept connections,
// or 503 if not ready.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready\n"))
}
