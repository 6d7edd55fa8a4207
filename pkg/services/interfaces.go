// Package services contains business logic implementations.
package services

import (
	"context"
	"time"

	"github.com/TFMV/cachewatch/pkg/cache"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/repositories"
	"github.com/TFMV/cachewatch/pkg/view"
)

// DashboardService keeps one monitoring session per cache server and drives
// fetches, selection, toggles and control actions against it.
type DashboardService interface {
	// RefreshPlans replaces the plan list of host and re-runs auto-selection.
	RefreshPlans(ctx context.Context, host string) error
	// RefreshCacheInfo refreshes the cache panel and the parquet usage.
	RefreshCacheInfo(ctx context.Context, host string) error
	// RefreshSystemInfo refreshes the system panel.
	RefreshSystemInfo(ctx context.Context, host string) error
	// RefreshAll refreshes every panel concurrently.
	RefreshAll(ctx context.Context, host string) error

	SelectPlan(host, id string) error
	Toggle(host, planID string, panel view.Panel, path string) (bool, error)

	ResetCache(ctx context.Context, host string) (*models.APIResponse, error)
	Shutdown(ctx context.Context, host string) (*models.APIResponse, error)
	StartTrace(ctx context.Context, host string) (*models.APIResponse, error)
	StopTrace(ctx context.Context, host, path string) (*models.APIResponse, error)
	CacheStats(ctx context.Context, host, path string) (*models.APIResponse, error)
	// RunAction dispatches to one of the control actions above.
	RunAction(ctx context.Context, host string, action models.Action, path string) (*models.APIResponse, error)

	// Snapshot returns a consistent copy of the session state of host.
	Snapshot(host string) (*Snapshot, error)
	// Flamegraph returns the SVG of a plan, or of the selected plan when id is empty.
	Flamegraph(host, id string) (string, error)
	// Dismiss removes a notification from the session of host.
	Dismiss(host, id string) bool

	// History lists archived plans; an empty host lists every server.
	History(ctx context.Context, host string, limit int) ([]repositories.ArchivedPlan, error)
	// ArchivedPlan returns one archived plan.
	ArchivedPlan(ctx context.Context, host, id string) (*repositories.ArchivedPlan, error)

	// ProbeFlight checks the Arrow Flight endpoint.
	ProbeFlight(ctx context.Context) (*repositories.ProbeResult, error)

	// SessionStats returns the session cache statistics.
	SessionStats() cache.Stats
	Close() error
}

// Snapshot is a read-only copy of one session.
type Snapshot struct {
	Host          string                    `json:"host"`
	State         string                    `json:"state"`
	Plans         []models.ExecutionPlan    `json:"plans"`
	SelectedID    string                    `json:"selected_id,omitempty"`
	Current       *view.PlanView            `json:"-"`
	CacheInfo     *models.CacheInfo         `json:"cache_info,omitempty"`
	Parquet       *models.ParquetCacheUsage `json:"parquet_cache_usage,omitempty"`
	System        *models.SystemInfo        `json:"system_info,omitempty"`
	TraceActive   bool                      `json:"trace_active"`
	LastError     string                    `json:"last_error,omitempty"`
	LastRefresh   time.Time                 `json:"last_refresh"`
	Notifications []Notification            `json:"notifications"`
	Flight        *repositories.ProbeResult `json:"flight,omitempty"`
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
