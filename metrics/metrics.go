// Package metrics provides Prometheus metrics for the wiki client.
// It tracks API traffic, mutation retries, governor waits, and session events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const (
	Namespace = "mwclient"
)

var (
	// RequestsTotal counts API requests by action and HTTP status
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "requests_total",
		Help:      "Total wiki API requests by action and status",
	}, []string{"action", "status"})

	// RequestDuration measures API request latency distribution
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "request_duration_seconds",
		Help:      "Wiki API request latency distribution by action",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"action"})

	// LoginsTotal counts login attempts by result
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "logins_total",
		Help:      "Login attempts by result",
	}, []string{"result"})

	// MutationRetries counts mutations retried after a transient failure
	MutationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "mutation_retries_total",
		Help:      "Mutations retried after a transient server failure",
	})

	// ThrottleWaitSeconds accumulates time spent in the post-mutation throttle
	ThrottleWaitSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "throttle_wait_seconds_total",
		Help:      "Total seconds spent waiting in the post-mutation throttle",
	})

	// LagWaitSeconds accumulates time spent waiting out replication lag
	LagWaitSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "lag_wait_seconds_total",
		Help:      "Total seconds spent waiting for replication lag to clear",
	})

	// StatusChecksTotal counts pre-mutation status checks
	StatusChecksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "status_checks_total",
		Help:      "Pre-mutation session status checks performed",
	})

	// ToolCallsTotal counts MCP tool invocations by tool and status
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "tool_calls_total",
		Help:      "Total MCP tool calls by tool and status",
	}, []string{"tool", "status"})

	// PanicsRecovered counts recovered panics in tool handlers
	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "panics_recovered_total",
		Help:      "Number of panics recovered in tool handlers",
	}, []string{"tool"})
)

// RecordToolCall records a completed MCP tool call
func RecordToolCall(tool string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ToolCallsTotal.WithLabelValues(tool, status).Inc()
}
