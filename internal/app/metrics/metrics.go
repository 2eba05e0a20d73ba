// Package metrics exposes the Prometheus collectors for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zkvanguard",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zkvanguard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zkvanguard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	agentInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zkvanguard",
			Subsystem: "agents",
			Name:      "invocations_total",
			Help:      "Total number of agent capability invocations.",
		},
		[]string{"agent", "success"},
	)

	agentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zkvanguard",
			Subsystem: "agents",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of agent capability invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"agent"},
	)

	priceResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zkvanguard",
			Subsystem: "marketdata",
			Name:      "price_resolutions_total",
			Help:      "Price resolution attempts by source and outcome.",
		},
		[]string{"source", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		agentInvocations,
		agentDuration,
		priceResolutions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordAgentInvocation records one orchestrator dispatch.
func RecordAgentInvocation(agent string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	agentInvocations.WithLabelValues(agent, strconv.FormatBool(success)).Inc()
	agentDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordPriceResolution records one source attempt in the fallback chain.
func RecordPriceResolution(source string, success bool) {
	priceResolutions.WithLabelValues(source, strconv.FormatBool(success)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses dynamic segments so label cardinality stays low.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "agents" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/agents"
	}
	return "/agents/" + parts[1]
}
