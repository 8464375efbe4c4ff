// Package metrics provides Prometheus instrumentation for deployvault.
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled      bool
	serviceName  string
	registerOnce sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Sync metrics
	syncRecordTotal    *prometheus.CounterVec
	broadcastFileTotal *prometheus.CounterVec

	// Verification metrics
	verificationTotal *prometheus.CounterVec
	sweepOutcomeTotal *prometheus.CounterVec

	// Reconstruction and drift metrics
	reconstructTotal *prometheus.CounterVec
	driftTotal       *prometheus.CounterVec

	// Resolver metrics
	resolverLookupTotal *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per
// process; later calls only toggle collection.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	registerOnce.Do(register)
}

func register() {
	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	syncRecordTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployvault_sync_records_total",
			Help: "Deployment records processed by sync",
		},
		[]string{"chain", "status"},
	)

	broadcastFileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployvault_broadcast_files_total",
			Help: "Broadcast run files read by sync",
		},
		[]string{"status"},
	)

	verificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployvault_verification_total",
			Help: "Verification strategy outcomes",
		},
		[]string{"strategy", "result"},
	)

	sweepOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployvault_sweep_outcomes_total",
			Help: "Post-deploy sweep outcomes per deployment",
		},
		[]string{"status"},
	)

	reconstructTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployvault_reconstruct_total",
			Help: "Project reconstructions",
		},
		[]string{"result"},
	)

	driftTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployvault_drift_checks_total",
			Help: "Drift comparisons by result",
		},
		[]string{"result"},
	)

	resolverLookupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployvault_resolver_lookups_total",
			Help: "Resolver lookups served",
		},
		[]string{"operation", "status"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry in the node-exporter textfile
// format. CLI runs use it since they do not live long enough to be scraped.
func WriteTextfile(path string) error {
	if !enabled || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
