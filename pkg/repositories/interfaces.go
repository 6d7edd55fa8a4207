// Package repositories defines interfaces for data access operations.
package repositories

import (
	"context"
	"time"

	"github.com/TFMV/cachewatch/pkg/models"
)

// ServerRepository fetches state from, and sends commands to, one cache
// server over its REST API.
type ServerRepository interface {
	// Address returns the normalised base address of the server.
	Address() string
	// ExecutionPlans returns the raw (key, record) pairs of /execution_plans.
	ExecutionPlans(ctx context.Context) ([]models.PlanRecord, error)
	// CacheInfo returns the cache configuration and usage.
	CacheInfo(ctx context.Context) (*models.CacheInfo, error)
	// ParquetCacheUsage returns the on-disk cache usage.
	ParquetCacheUsage(ctx context.Context) (*models.ParquetCacheUsage, error)
	// SystemInfo returns host and process information.
	SystemInfo(ctx context.Context) (*models.SystemInfo, error)
	// ResetCache drops every cached entry.
	ResetCache(ctx context.Context) (*models.APIResponse, error)
	// Shutdown stops the server.
	Shutdown(ctx context.Context) (*models.APIResponse, error)
	// StartTrace starts trace collection.
	StartTrace(ctx context.Context) (*models.APIResponse, error)
	// StopTrace stops trace collection and saves it under path.
	StopTrace(ctx context.Context, path string) (*models.APIResponse, error)
	// CacheStats dumps cache statistics under path.
	CacheStats(ctx context.Context, path string) (*models.APIResponse, error)
}

// ServerRepositoryFactory builds a ServerRepository for a base address.
type ServerRepositoryFactory func(address string) (ServerRepository, error)

// ArchivedPlan is a plan kept in the archive.
type ArchivedPlan struct {
	Host       string               `json:"host"`
	Plan       models.ExecutionPlan `json:"plan"`
	NodeCount  int                  `json:"node_count"`
	ArchivedAt time.Time            `json:"archived_at"`
}

// ArchiveRepository keeps a history of decoded plans per server.
type ArchiveRepository interface {
	// Save stores plans for host. Plans already archived are replaced.
	Save(ctx context.Context, host string, plans []models.ExecutionPlan) error
	// List returns up to limit archived plans for host, newest first. An
	// empty host lists every server.
	List(ctx context.Context, host string, limit int) ([]ArchivedPlan, error)
	// Get returns one archived plan.
	Get(ctx context.Context, host, id string) (*ArchivedPlan, error)
	// Prune deletes the oldest plans so that about maxRows remain.
	Prune(ctx context.Context, maxRows int) (int64, error)
	// Close releases the underlying database.
	Close() error
}

// ProbeResult is the outcome of a Flight reachability probe.
type ProbeResult struct {
	Address   string        `json:"address"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
	Actions   []string      `json:"actions,omitempty"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// FlightProbe checks that the server's Arrow Flight endpoint answers.
type FlightProbe interface {
	Probe(ctx context.Context) (*ProbeResult, error)
	Close() error
}
