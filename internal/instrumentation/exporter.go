// Package instrumentation exports the peer's metrics registry to an
// external scraper. The exporter exists only when scraper credentials are
// configured; without them no listener, registry or goroutine is created.
package instrumentation

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/holepunchto/blind-peer-cli/internal/logger"
	"github.com/holepunchto/blind-peer-cli/pkg/engine"
	"github.com/holepunchto/blind-peer-cli/pkg/keys"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultListenAddr is where the scrape endpoint binds unless overridden.
const DefaultListenAddr = ":9090"

// Options configures the exporter.
type Options struct {
	// ScraperPublicKey identifies the authorized scraper. Logged so the
	// operator can cross-check which collector this node trusts.
	ScraperPublicKey keys.PublicKey

	// Secret authenticates scrape requests: the scraper must present its
	// canonical encoding as a bearer token.
	Secret keys.Secret

	// Alias names this node towards the scraper.
	Alias string

	// ServiceName and Version label the build-info metric.
	ServiceName string
	Version     string

	// ListenAddr overrides DefaultListenAddr.
	ListenAddr string
}

// Exporter serves the peer's metrics registry over an authenticated
// /metrics endpoint.
type Exporter struct {
	log      *slog.Logger
	opts     Options
	registry *prometheus.Registry
	token    string
	server   *http.Server

	mu sync.Mutex
	ln net.Listener
}

// New builds an exporter. It allocates the registry but opens no network
// resource; Ready does that.
func New(opts Options, log *slog.Logger) (*Exporter, error) {
	if opts.Alias == "" {
		return nil, errors.New("instrumentation: alias is required")
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = DefaultListenAddr
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "blind_peer_build_info",
		Help: "Build and identity information for this blind peer.",
		ConstLabels: prometheus.Labels{
			"service": opts.ServiceName,
			"version": opts.Version,
			"alias":   opts.Alias,
		},
	})
	buildInfo.Set(1)
	registry.MustRegister(buildInfo)

	e := &Exporter{
		log:      log.With(logger.KeyComponent, "instrumentation"),
		opts:     opts,
		registry: registry,
		token:    keys.Format(opts.Secret[:]),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.requireToken(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return e, nil
}

// RegisterEngine registers the engine's own metrics plus gauges over its
// storage digest and swarm.
func (e *Exporter) RegisterEngine(eng engine.Engine) {
	eng.RegisterMetrics(e.registry)

	e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "blind_peer_bytes_allocated",
		Help: "Bytes currently allocated in the peer's storage.",
	}, func() float64 {
		return float64(eng.Digest().BytesAllocated)
	}))
	e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "blind_peer_max_storage_bytes",
		Help: "Configured storage budget in bytes.",
	}, func() float64 {
		return float64(eng.Digest().MaxBytes)
	}))
	e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "blind_peer_open_streams",
		Help: "Live raw transport streams in the swarm.",
	}, func() float64 {
		streams, err := eng.Swarm().Streams()
		if err != nil {
			return -1
		}
		return float64(len(streams))
	}))
}

// RegisterLogger points the exporter's own diagnostics at log.
func (e *Exporter) RegisterLogger(log *slog.Logger) {
	e.log = log.With(logger.KeyComponent, "instrumentation")
}

// Ready binds the scrape endpoint and starts serving. It returns once the
// listener is accepting connections.
func (e *Exporter) Ready(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("instrumentation: listen %s: %w", e.opts.ListenAddr, err)
	}
	e.mu.Lock()
	e.ln = ln
	e.mu.Unlock()

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics server failed", logger.KeyError, err.Error())
		}
	}()

	e.log.Info("metrics endpoint ready",
		"addr", ln.Addr().String(),
		"alias", e.opts.Alias,
		"scraper", e.opts.ScraperPublicKey.String())
	return nil
}

// Addr reports the bound listen address, or "" before Ready.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return ""
	}
	return e.ln.Addr().String()
}

// Close drains and stops the scrape endpoint. Safe to call even when Ready
// was never reached.
func (e *Exporter) Close(ctx context.Context) error {
	e.mu.Lock()
	ln := e.ln
	e.ln = nil
	e.mu.Unlock()
	if ln == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}

// requireToken rejects scrape requests lacking the shared secret.
func (e *Exporter) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(e.token)) != 1 {
			e.log.Warn("rejected scrape request", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
