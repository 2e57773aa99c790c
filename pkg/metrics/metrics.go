// Package metrics exposes Prometheus instrumentation for the pipeline: blob
// operation latencies, routing decisions and worker outcomes, served over a
// plain HTTP endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p8fs/p8fs/internal/logger"
)

// Collector bundles every pipeline metric. It satisfies the metrics hooks of
// the blob client, the router and the workers.
type Collector struct {
	registry *prometheus.Registry

	blobOps      *prometheus.HistogramVec
	blobErrors   *prometheus.CounterVec
	blobBytes    *prometheus.CounterVec
	eventsRouted *prometheus.CounterVec
	eventsFailed *prometheus.CounterVec
	eventsDone   *prometheus.CounterVec
	chunks       *prometheus.CounterVec
}

// NewCollector creates and registers every metric on a private registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		blobOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "p8fs",
			Subsystem: "blob",
			Name:      "operation_duration_seconds",
			Help:      "Blob store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		blobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p8fs",
			Subsystem: "blob",
			Name:      "operation_errors_total",
			Help:      "Blob store operation failures.",
		}, []string{"operation"}),
		blobBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p8fs",
			Subsystem: "blob",
			Name:      "bytes_total",
			Help:      "Bytes moved through the blob client.",
		}, []string{"operation"}),
		eventsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p8fs",
			Subsystem: "router",
			Name:      "events_routed_total",
			Help:      "Events forwarded to a tier subject.",
		}, []string{"tier"}),
		eventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p8fs",
			Subsystem: "router",
			Name:      "events_rejected_total",
			Help:      "Events the router could not forward.",
		}, []string{"reason"}),
		eventsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p8fs",
			Subsystem: "worker",
			Name:      "events_processed_total",
			Help:      "Worker event outcomes.",
		}, []string{"tier", "outcome"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p8fs",
			Subsystem: "worker",
			Name:      "chunks_persisted_total",
			Help:      "Chunks written through the repository.",
		}, []string{"tier"}),
	}

	registry.MustRegister(
		c.blobOps, c.blobErrors, c.blobBytes,
		c.eventsRouted, c.eventsFailed,
		c.eventsDone, c.chunks,
	)
	return c
}

// ObserveOperation records one blob operation.
func (c *Collector) ObserveOperation(op string, d time.Duration, err error) {
	c.blobOps.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		c.blobErrors.WithLabelValues(op).Inc()
	}
}

// RecordBytes records payload bytes moved by the blob client.
func (c *Collector) RecordBytes(op string, n int64) {
	c.blobBytes.WithLabelValues(op).Add(float64(n))
}

// EventRouted records one successful routing decision.
func (c *Collector) EventRouted(tier string) {
	c.eventsRouted.WithLabelValues(tier).Inc()
}

// EventRejected records one routing failure.
func (c *Collector) EventRejected(reason string) {
	c.eventsFailed.WithLabelValues(reason).Inc()
}

// EventProcessed records one worker outcome.
func (c *Collector) EventProcessed(tier, outcome string) {
	c.eventsDone.WithLabelValues(tier, outcome).Inc()
}

// ChunksPersisted records chunks written for one event.
func (c *Collector) ChunksPersisted(tier string, n int) {
	c.chunks.WithLabelValues(tier).Add(float64(n))
}

// Handler returns the scrape handler for the private registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics endpoint until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics endpoint listening", "listen", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
