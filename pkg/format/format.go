// Package format turns raw metric strings reported by the cache server into
// human readable values. Every function is total: input that cannot be
// interpreted is returned unchanged.
package format

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	kib = 1024
	mib = kib * 1024
	gib = mib * 1024
)

// Bytes renders n with binary unit scaling.
func Bytes(n uint64) string {
	switch {
	case n < kib:
		return fmt.Sprintf("%d B", n)
	case n < mib:
		return fmt.Sprintf("%.2f KB", float64(n)/kib)
	case n < gib:
		return fmt.Sprintf("%.2f MB", float64(n)/mib)
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/gib)
	}
}

// BytesString parses s as an unsigned byte count and renders it with Bytes.
func BytesString(s string) string {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return s
	}
	return Bytes(n)
}

// Duration renders durations reported with an "ms" or "ns" suffix.
func Duration(s string) string {
	if strings.HasSuffix(s, "ms") {
		return s
	}
	raw, ok := strings.CutSuffix(s, "ns")
	if !ok {
		return s
	}
	ns, err := strconv.ParseFloat(raw, 64)
	if err != nil || ns < 0 || math.IsInf(ns, 0) || math.IsNaN(ns) {
		return s
	}

	switch {
	case ns >= 1e9:
		return fmt.Sprintf("%.2fs", ns/1e9)
	case ns >= 1e6:
		return fmt.Sprintf("%.2fms", ns/1e6)
	case ns >= 1e3:
		return fmt.Sprintf("%.2fμs", ns/1e3)
	default:
		return fmt.Sprintf("%dns", uint64(ns))
	}
}

// Number renders row counts with B/M/K suffixes.
func Number(s string) string {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return s
	}

	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.2fK", float64(n)/1e3)
	default:
		return strconv.FormatUint(n, 10)
	}
}

// Metric picks a formatter from the metric name.
func Metric(name, value string) string {
	switch {
	case strings.Contains(name, "time"), strings.Contains(name, "elapsed"):
		return Duration(value)
	case strings.Contains(name, "bytes"):
		return BytesString(value)
	case strings.Contains(name, "rows"):
		return Number(value)
	default:
		return value
	}
}

// NamedValue is a formatted metric.
type NamedValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Metrics formats every entry of metrics, sorted by name.
func Metrics(metrics map[string]string) []NamedValue {
	out := make([]NamedValue, 0, len(metrics))
	for name, value := range metrics {
		out = append(out, NamedValue{Name: name, Value: Metric(name, value)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Percent renders used/total as a percentage with one decimal.
func Percent(used, total uint64) string {
	if total == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(used)/float64(total)*100)
}

// Millis renders an execution time reported in milliseconds.
func Millis(ms uint64) string {
	return fmt.Sprintf("%dms", ms)
}

// Count renders n with thousands separators.
func Count(n uint64) string {
	return humanize.Comma(int64(n))
}

// Age renders how long ago t was, relative to now.
func Age(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}
