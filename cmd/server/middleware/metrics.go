package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/TFMV/cachewatch/pkg/infrastructure/metrics"
)

// MetricsCollector defines the interface for collecting metrics.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() float64
}

// MetricsMiddleware provides metrics collection middleware.
type MetricsMiddleware struct {
	collector MetricsCollector
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(collector MetricsCollector) *MetricsMiddleware {
	return &MetricsMiddleware{
		collector: collector,
	}
}

// Handler records request counts, latency and response codes.
func (m *MetricsMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := m.collector.StartTimer(metrics.HTTPRequestDuration)
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		m.collector.RecordHistogram(metrics.HTTPRequestDuration, timer.Stop(), "method", r.Method, "route", route)
		m.collector.IncrementCounter(metrics.HTTPRequests, "method", r.Method, "route", route)
		m.collector.IncrementCounter(metrics.HTTPResponses, "method", r.Method, "route", route, "code", strconv.Itoa(rec.status))
	})
}

// routeLabel keeps the leading path segment, or two under /api/, so ids
// and file names never become label values.
func routeLabel(r *http.Request) string {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case segments[0] == "":
		return "/"
	case segments[0] == "api" && len(segments) > 1:
		return "/api/" + segments[1]
	default:
		return "/" + segments[0]
	}
}
