package metrics

// Metric names recorded by the monitor.
const (
	FetchDuration = "cachewatch_fetch_duration_seconds"
	FetchErrors   = "cachewatch_fetch_errors_total"
	DecodeErrors  = "cachewatch_plan_decode_errors_total"
	PlansLoaded   = "cachewatch_plans_loaded"
	ActionsTotal  = "cachewatch_actions_total"
	ArchiveErrors = "cachewatch_archive_errors_total"
	FlightProbes  = "cachewatch_flight_probes_total"

	SessionCacheHits      = "cachewatch_session_cache_hits"
	SessionCacheMisses    = "cachewatch_session_cache_misses"
	SessionCacheEvictions = "cachewatch_session_cache_evictions"
	SessionCacheSize      = "cachewatch_session_cache_size"

	HTTPRequests        = "cachewatch_http_requests_total"
	HTTPRequestDuration = "cachewatch_http_request_duration_seconds"
	HTTPResponses       = "cachewatch_http_responses_total"
	HandlerErrors       = "cachewatch_handler_errors_total"
)

type kind int

const (
	counterKind kind = iota
	gaugeKind
	histogramKind
)

func (k kind) String() string {
	switch k {
	case counterKind:
		return "counter"
	case gaugeKind:
		return "gauge"
	default:
		return "histogram"
	}
}

// family describes a known metric: its help text and the fixed label order.
type family struct {
	kind    kind
	help    string
	labels  []string
	buckets []float64
}

// fetchBuckets cover a local cache server answering in milliseconds up to a
// slow one hitting the request timeout.
var fetchBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

var families = map[string]family{
	FetchDuration: {histogramKind, "Latency of requests to the cache server by endpoint.", []string{"endpoint"}, fetchBuckets},
	FetchErrors:   {counterKind, "Failed requests to the cache server by endpoint and error code.", []string{"endpoint", "code"}, nil},
	DecodeErrors:  {counterKind, "Execution plan records dropped because they could not be decoded.", []string{"host"}, nil},
	PlansLoaded:   {gaugeKind, "Execution plans held for each cache server.", []string{"host"}, nil},
	ActionsTotal:  {counterKind, "Control actions sent to the cache server by outcome.", []string{"action", "outcome"}, nil},
	ArchiveErrors: {counterKind, "Failed plan archive operations.", []string{"operation"}, nil},
	FlightProbes:  {counterKind, "Arrow Flight probes by reachability.", []string{"reachable"}, nil},

	SessionCacheHits:      {gaugeKind, "Session cache hits since start.", nil, nil},
	SessionCacheMisses:    {gaugeKind, "Session cache misses since start.", nil, nil},
	SessionCacheEvictions: {gaugeKind, "Sessions evicted since start.", nil, nil},
	SessionCacheSize:      {gaugeKind, "Monitored cache servers with a live session.", nil, nil},

	HTTPRequests:        {counterKind, "Dashboard requests by route.", []string{"method", "route"}, nil},
	HTTPRequestDuration: {histogramKind, "Dashboard request latency by route.", []string{"method", "route"}, fetchBuckets},
	HTTPResponses:       {counterKind, "Dashboard responses by route and status code.", []string{"method", "route", "code"}, nil},
	HandlerErrors:       {counterKind, "Dashboard requests that ended in an error by code.", []string{"code"}, nil},
}
