// Package models provides data structures used throughout the cache monitor.
package models

// CacheInfo is the payload of GET /cache_info.
type CacheInfo struct {
	BatchSize        uint64 `json:"batch_size"`
	MaxCacheBytes    uint64 `json:"max_cache_bytes"`
	MemoryUsageBytes uint64 `json:"memory_usage_bytes"`
	DiskUsageBytes   uint64 `json:"disk_usage_bytes"`
}

// MemoryUtilization returns memory usage as a percentage of the cache limit.
func (c CacheInfo) MemoryUtilization() float64 {
	if c.MaxCacheBytes == 0 {
		return 0
	}
	return float64(c.MemoryUsageBytes) / float64(c.MaxCacheBytes) * 100
}

// ParquetCacheUsage is the payload of GET /parquet_cache_usage.
type ParquetCacheUsage struct {
	Directory      string `json:"directory"`
	FileCount      uint64 `json:"file_count"`
	TotalSizeBytes uint64 `json:"total_size_bytes"`
}

// SystemInfo is the payload of GET /system_info.
type SystemInfo struct {
	TotalMemoryBytes          uint64 `json:"total_memory_bytes"`
	UsedMemoryBytes           uint64 `json:"used_memory_bytes"`
	Name                      string `json:"name"`
	Kernel                    string `json:"kernel"`
	OS                        string `json:"os"`
	HostName                  string `json:"host_name"`
	CPUCores                  uint64 `json:"cpu_cores"`
	ServerResidentMemoryBytes uint64 `json:"server_resident_memory_bytes"`
	ServerVirtualMemoryBytes  uint64 `json:"server_virtual_memory_bytes"`
}

// APIResponse is the payload returned by every control endpoint.
type APIResponse struct {
	Message string `json:"message"`
}

// PlanRecord is one (key, record JSON) pair of GET /execution_plans.
type PlanRecord struct {
	Key    string
	Record string
	// Invalid explains why the pair itself was malformed. Such records are
	// reported by the decoder and never parsed.
	Invalid string
}

// Action names a control endpoint on the cache server.
type Action string

const (
	ActionResetCache Action = "reset_cache"
	ActionShutdown   Action = "shutdown"
	ActionStartTrace Action = "start_trace"
	ActionStopTrace  Action = "stop_trace"
	ActionCacheStats Action = "cache_stats"
)

// Actions lists every control action in display order.
var Actions = []Action{
	ActionResetCache,
	ActionShutdown,
	ActionStartTrace,
	ActionStopTrace,
	ActionCacheStats,
}

// TakesPath reports whether the action needs a server-side path argument.
func (a Action) TakesPath() bool {
	return a == ActionStopTrace || a == ActionCacheStats
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}
