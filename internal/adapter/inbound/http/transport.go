package http

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Commandability/commandability-web-sub001/internal/port/inbound"
)

// HTTPTransport is the inbound adapter that serves the sync API over HTTP.
type HTTPTransport struct {
	sync            inbound.SyncService
	control         inbound.SessionControl
	server          *http.Server
	addr            string
	allowedOrigins  []string
	certFile        string
	keyFile         string
	logger          *slog.Logger
	registry        *prometheus.Registry
	metrics         *Metrics
	healthChecker   *HealthChecker
	streamBuffer    int
	heartbeat       time.Duration
	shutdownTimeout time.Duration

	mu        sync.Mutex
	listener  net.Listener
	done      chan struct{}
	closeOnce sync.Once
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithAllowedOrigins sets the allowed origins for DNS rebinding protection.
// If empty, all requests with an Origin header are blocked (local-only mode).
// Example: []string{"https://example.com", "http://localhost:3000"}
func WithAllowedOrigins(origins []string) Option {
	return func(t *HTTPTransport) {
		t.allowedOrigins = origins
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithRegistry serves /metrics from reg and registers the HTTP metrics on
// it. Without it the transport creates a private registry with the Go and
// process collectors.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(t *HTTPTransport) {
		t.registry = reg
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// WithStreamBuffer sets the per-stream buffer of pending aggregate updates.
func WithStreamBuffer(n int) Option {
	return func(t *HTTPTransport) {
		t.streamBuffer = n
	}
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.heartbeat = d
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.shutdownTimeout = d
		}
	}
}

// NewHTTPTransport creates an HTTP transport over the sync service and the
// session control.
func NewHTTPTransport(sync inbound.SyncService, control inbound.SessionControl, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		sync:            sync,
		control:         control,
		addr:            "127.0.0.1:8080",
		allowedOrigins:  []string{},
		logger:          slog.Default(),
		heartbeat:       defaultHeartbeat,
		shutdownTimeout: 10 * time.Second,
		done:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
		t.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	t.metrics = NewMetrics(t.registry)

	return t
}

// Handler builds the routed handler with the middleware chain.
//
// Middleware order (outermost first):
//  1. MetricsMiddleware - record duration and status (outermost to capture full duration)
//  2. RequestID - extract/generate request ID and enrich logger
//  3. DNSRebinding - security check for Origin header
func (t *HTTPTransport) Handler() http.Handler {
	a := &api{
		sync:      t.sync,
		control:   t.control,
		metrics:   t.metrics,
		buffer:    t.streamBuffer,
		heartbeat: t.heartbeat,
		done:      t.done,
	}

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	a.register(mux)

	var handler http.Handler = mux
	handler = DNSRebindingProtection(t.allowedOrigins)(handler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)
	return handler
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.listener = ln
	t.server = &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}
	server := t.server
	t.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", ln.Addr().String())
			err = server.ServeTLS(ln, t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", ln.Addr().String())
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

// Addr returns the bound listen address once Start is serving.
func (t *HTTPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return t.addr
	}
	return t.listener.Addr().String()
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	// Event streams never go idle on their own.
	t.closeOnce.Do(func() { close(t.done) })

	t.mu.Lock()
	server := t.server
	t.mu.Unlock()
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	return t.shutdown()
}

var _ inbound.Server = (*HTTPTransport)(nil)
