// Package handlers serves the monitoring dashboard over HTTP.
package handlers

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector counts handler failures. Request latency is recorded by
// the HTTP middleware.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
}
