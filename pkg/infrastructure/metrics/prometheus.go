package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector using Prometheus. Known metric
// names get their help text and label order from the family table; any other
// name is registered on first use with the labels of that first call.
type PrometheusCollector struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusCollector creates a collector registering with the default registry.
func NewPrometheusCollector() Collector {
	return NewPrometheusCollectorWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPrometheusCollectorWithRegisterer creates a collector registering with reg.
func NewPrometheusCollectorWithRegisterer(reg prometheus.Registerer) Collector {
	return &PrometheusCollector{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// IncrementCounter increments a counter metric.
func (p *PrometheusCollector) IncrementCounter(name string, labels ...string) {
	fam, values := resolve(name, counterKind, labels)

	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: fam.help}, fam.labels)
		p.registerer.MustRegister(vec)
		p.counters[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Inc()
}

// RecordHistogram records a value in a histogram metric.
func (p *PrometheusCollector) RecordHistogram(name string, value float64, labels ...string) {
	fam, values := resolve(name, histogramKind, labels)

	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		buckets := fam.buckets
		if buckets == nil {
			buckets = prometheus.DefBuckets
		}
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: fam.help, Buckets: buckets}, fam.labels)
		p.registerer.MustRegister(vec)
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Observe(value)
}

// RecordGauge records a gauge metric value.
func (p *PrometheusCollector) RecordGauge(name string, value float64, labels ...string) {
	fam, values := resolve(name, gaugeKind, labels)

	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: fam.help}, fam.labels)
		p.registerer.MustRegister(vec)
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	vec.WithLabelValues(values...).Set(value)
}

// StartTimer starts a timer for measuring duration.
func (p *PrometheusCollector) StartTimer(name string) Timer {
	return newTimer()
}

// resolve returns the family of name and the label values in family order.
// Labels a known family declares but the call omits are left empty; labels
// it does not declare are ignored.
func resolve(name string, k kind, labels []string) (family, []string) {
	names, values := parseLabelPairs(labels)

	fam, known := families[name]
	if !known || fam.kind != k {
		return family{kind: k, help: "cachewatch " + k.String() + " " + name, labels: names}, values
	}

	ordered := make([]string, len(fam.labels))
	for i, want := range fam.labels {
		for j, got := range names {
			if got == want {
				ordered[i] = values[j]
				break
			}
		}
	}
	return fam, ordered
}

// parseLabelPairs splits "key1", "value1", "key2", "value2", ... into names
// and values. A trailing key without a value is dropped.
func parseLabelPairs(labels []string) ([]string, []string) {
	n := len(labels) / 2
	names := make([]string, 0, n)
	values := make([]string, 0, n)
	for i := 0; i+1 < len(labels); i += 2 {
		names = append(names, labels[i])
		values = append(values, labels[i+1])
	}
	return names, values
}

// MetricsServer serves the Prometheus endpoint on its own listener.
type MetricsServer struct {
	address  string
	path     string
	gatherer prometheus.Gatherer

	mu     sync.Mutex
	server *http.Server
}

// NewMetricsServer creates a metrics server exposing gatherer on path.
// An empty path defaults to /metrics and a nil gatherer to the default registry.
func NewMetricsServer(address, path string, gatherer prometheus.Gatherer) *MetricsServer {
	if path == "" {
		path = "/metrics"
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &MetricsServer{address: address, path: path, gatherer: gatherer}
}

// Handler returns the metrics HTTP handler.
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start blocks serving metrics until Shutdown.
func (s *MetricsServer) Start() error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the metrics server gracefully. It is a no-op before Start.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
