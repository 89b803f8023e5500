// Package metrics exposes Prometheus collectors for scan, removal, and
// discovery throughput. The collectors are package-level singletons
// registered against the default registry, matching how the rest of the
// ecosystem wires promauto — callers just call the Inc/Observe methods
// without threading a registry handle through every layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansStarted counts start_scan invocations, labeled by broker count
	// bucket is intentionally omitted — label cardinality stays fixed.
	ScansStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spectral",
		Subsystem: "scanner",
		Name:      "scans_started_total",
		Help:      "Total number of scan jobs started.",
	})

	// BrokerScansCompleted counts individual per-broker scan completions,
	// labeled by outcome: found (the scan succeeded, with or without
	// listings), skipped, or error.
	BrokerScansCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spectral",
		Subsystem: "scanner",
		Name:      "broker_scans_completed_total",
		Help:      "Total number of per-broker scans completed, labeled by outcome.",
	}, []string{"outcome"})

	// BrokerScanDuration observes wall-clock time spent scanning a single
	// broker, from dispatch to result.
	BrokerScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spectral",
		Subsystem: "scanner",
		Name:      "broker_scan_duration_seconds",
		Help:      "Duration of a single broker scan.",
		Buckets:   prometheus.DefBuckets,
	})

	// RemovalAttemptsSubmitted counts removal attempts submitted to brokers,
	// labeled by method (web_form, email, manual).
	RemovalAttemptsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spectral",
		Subsystem: "removal",
		Name:      "attempts_submitted_total",
		Help:      "Total number of removal attempts submitted, labeled by method.",
	}, []string{"method"})

	// RemovalAttemptsTerminal counts each removal outcome the worker
	// persists, labeled by the attempt's resulting status (Submitted,
	// Pending for a CAPTCHA quarantine, or Failed).
	RemovalAttemptsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spectral",
		Subsystem: "removal",
		Name:      "attempts_terminal_total",
		Help:      "Total number of removal attempts reaching a terminal state.",
	}, []string{"status"})

	// DiscoveryScansCompleted counts filesystem discovery scan runs.
	DiscoveryScansCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spectral",
		Subsystem: "discovery",
		Name:      "scans_completed_total",
		Help:      "Total number of filesystem discovery scans completed.",
	})

	// WebSocketClientsConnected tracks the current number of connected
	// WebSocket clients (in practice 0 or 1 — the desktop shell's single
	// webview — but modeled as a gauge in case of multiple windows).
	WebSocketClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "spectral",
		Subsystem: "websocket",
		Name:      "clients_connected",
		Help:      "Current number of connected WebSocket clients.",
	})
)
