package services

import (
	"context"
	"sync"
	"time"

	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/infrastructure/converter"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/repositories"
)

// mockServerRepo implements repositories.ServerRepository
type mockServerRepo struct {
	address           string
	executionPlans    func(ctx context.Context) ([]models.PlanRecord, error)
	cacheInfo         func(ctx context.Context) (*models.CacheInfo, error)
	parquetCacheUsage func(ctx context.Context) (*models.ParquetCacheUsage, error)
	systemInfo        func(ctx context.Context) (*models.SystemInfo, error)
	command           func(ctx context.Context, action models.Action, path string) (*models.APIResponse, error)
}

func (m *mockServerRepo) Address() string { return m.address }

func (m *mockServerRepo) ExecutionPlans(ctx context.Context) ([]models.PlanRecord, error) {
	return m.executionPlans(ctx)
}

func (m *mockServerRepo) CacheInfo(ctx context.Context) (*models.CacheInfo, error) {
	return m.cacheInfo(ctx)
}

func (m *mockServerRepo) ParquetCacheUsage(ctx context.Context) (*models.ParquetCacheUsage, error) {
	return m.parquetCacheUsage(ctx)
}

func (m *mockServerRepo) SystemInfo(ctx context.Context) (*models.SystemInfo, error) {
	return m.systemInfo(ctx)
}

func (m *mockServerRepo) ResetCache(ctx context.Context) (*models.APIResponse, error) {
	return m.command(ctx, models.ActionResetCache, "")
}

func (m *mockServerRepo) Shutdown(ctx context.Context) (*models.APIResponse, error) {
	return m.command(ctx, models.ActionShutdown, "")
}

func (m *mockServerRepo) StartTrace(ctx context.Context) (*models.APIResponse, error) {
	return m.command(ctx, models.ActionStartTrace, "")
}

func (m *mockServerRepo) StopTrace(ctx context.Context, path string) (*models.APIResponse, error) {
	return m.command(ctx, models.ActionStopTrace, path)
}

func (m *mockServerRepo) CacheStats(ctx context.Context, path string) (*models.APIResponse, error) {
	return m.command(ctx, models.ActionCacheStats, path)
}

// mockDecoder implements converter.PlanDecoder
type mockDecoder struct {
	decodeFunc func(records []models.PlanRecord) (*converter.DecodeResult, error)
}

func (m *mockDecoder) Decode(records []models.PlanRecord) (*converter.DecodeResult, error) {
	return m.decodeFunc(records)
}

// mockArchive implements repositories.ArchiveRepository
type mockArchive struct {
	mu       sync.Mutex
	saved    map[string][]models.ExecutionPlan
	pruned   []int
	saveErr  error
	closed   bool
	listFunc func(ctx context.Context, host string, limit int) ([]repositories.ArchivedPlan, error)
}

func (m *mockArchive) Save(_ context.Context, host string, plans []models.ExecutionPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.saved == nil {
		m.saved = make(map[string][]models.ExecutionPlan)
	}
	m.saved[host] = append(m.saved[host], plans...)
	return nil
}

func (m *mockArchive) List(ctx context.Context, host string, limit int) ([]repositories.ArchivedPlan, error) {
	return m.listFunc(ctx, host, limit)
}

func (m *mockArchive) Get(_ context.Context, host, id string) (*repositories.ArchivedPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := models.FindPlan(m.saved[host], id)
	if !ok {
		return nil, errors.ErrPlanNotFound
	}
	return &repositories.ArchivedPlan{Host: host, Plan: *plan}, nil
}

func (m *mockArchive) Prune(_ context.Context, maxRows int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, maxRows)
	return 0, nil
}

func (m *mockArchive) Close() error {
	m.closed = true
	return nil
}

// mockProbe implements repositories.FlightProbe
type mockProbe struct {
	probeFunc func(ctx context.Context) (*repositories.ProbeResult, error)
	closed    bool
}

func (m *mockProbe) Probe(ctx context.Context) (*repositories.ProbeResult, error) {
	return m.probeFunc(ctx)
}

func (m *mockProbe) Close() error {
	m.closed = true
	return nil
}

// mockLogger implements Logger
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// mockMetricsCollector implements MetricsCollector and counts counter calls.
type mockMetricsCollector struct {
	mu       sync.Mutex
	counters map[string]int
	gauges   map[string]float64
}

func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		counters: make(map[string]int),
		gauges:   make(map[string]float64),
	}
}

func (m *mockMetricsCollector) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

func (m *mockMetricsCollector) RecordHistogram(name string, value float64, labels ...string) {}

func (m *mockMetricsCollector) RecordGauge(name string, value float64, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

func (m *mockMetricsCollector) StartTimer(name string) Timer {
	return &mockTimer{start: time.Now()}
}

func (m *mockMetricsCollector) counter(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type mockTimer struct {
	start time.Time
}

func (t *mockTimer) Stop() time.Duration {
	return time.Since(t.start)
}

// recordingNotifier implements Notifier
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) add(kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, kind+": "+message)
}

func (r *recordingNotifier) Success(message string) { r.add("success", message) }
func (r *recordingNotifier) Error(message string)   { r.add("error", message) }
func (r *recordingNotifier) Info(message string)    { r.add("info", message) }
