// SPDX-License-Identifier: MPL-2.0

// Package metrics owns the Prometheus collectors stackctl updates while it
// provisions a stack, and serves them over HTTP during long-running commands.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "stackctl"

	ResultReady    = "ready"
	ResultNotReady = "not_ready"

	CacheHit  = "hit"
	CacheMiss = "miss"

	shutdownTimeout = 5 * time.Second
)

// Recorder holds the collectors of one stackctl process.
type Recorder struct {
	registry *prometheus.Registry

	serviceStarts     *prometheus.CounterVec
	readinessWait     *prometheus.HistogramVec
	readinessAttempts *prometheus.CounterVec
	imageBuilds       *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		serviceStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_starts_total",
			Help:      "Containers started, by service.",
		}, []string{"service"}),
		readinessWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readiness_wait_seconds",
			Help:      "Time spent waiting for a service to become ready.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"service"}),
		readinessAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readiness_attempts_total",
			Help:      "Readiness probe attempts, by service and result.",
		}, []string{"service", "result"}),
		imageBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_builds_total",
			Help:      "Image build requests, by service and cache outcome.",
		}, []string{"service", "cache"}),
	}
	r.registry.MustRegister(r.serviceStarts, r.readinessWait, r.readinessAttempts, r.imageBuilds)
	return r
}

// Registry returns the registry the collectors are registered with.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ServiceStarted counts a container start.
func (r *Recorder) ServiceStarted(service string) {
	r.serviceStarts.WithLabelValues(service).Inc()
}

// ReadinessAttempt counts one probe attempt.
func (r *Recorder) ReadinessAttempt(service string, ready bool) {
	result := ResultNotReady
	if ready {
		result = ResultReady
	}
	r.readinessAttempts.WithLabelValues(service, result).Inc()
}

// ReadinessWaited records how long a service took to become ready (or give up).
func (r *Recorder) ReadinessWaited(service string, d time.Duration) {
	r.readinessWait.WithLabelValues(service).Observe(d.Seconds())
}

// ImageBuilt counts an image build request.
func (r *Recorder) ImageBuilt(service string, cached bool) {
	cache := CacheMiss
	if cached {
		cache = CacheHit
	}
	r.imageBuilds.WithLabelValues(service, cache).Inc()
}

// Handler returns the /metrics handler for the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is bound; errors after that are sent on the returned channel,
// which is closed when the server stops.
func (r *Recorder) Serve(ctx context.Context, addr string) (net.Addr, <-chan error, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx) // Best-effort on exit
	}()

	return ln.Addr(), errCh, nil
}
