package html_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/render/html"
	"github.com/TFMV/cachewatch/pkg/view"
)

func currentView(plans []models.ExecutionPlan) *view.PlanView {
	s := view.NewSelection()
	s.Replace(plans)
	pv, _ := s.Current()
	return pv
}

func render(t *testing.T, page html.Page) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, html.Render(&buf, page))
	return buf.String()
}

func TestRender_Empty(t *testing.T) {
	out := render(t, html.Page{Host: "http://localhost:53703"})

	assert.Contains(t, out, "<title>LiquidCache Monitor</title>")
	assert.Contains(t, out, "Connect to view system information")
	assert.Contains(t, out, "Connect to view cache configuration")
	assert.Contains(t, out, "No execution plans available")
	assert.Contains(t, out, "Start Trace")
	assert.Contains(t, out, `action="/refresh/plans?host=http%3a%2f%2flocalhost%3a53703"`)
}

func TestRender_Panels(t *testing.T) {
	out := render(t, html.Page{
		Host: "http://cache:53703",
		System: &models.SystemInfo{
			HostName:         "cache-1",
			Name:             "Ubuntu",
			OS:               "24.04",
			CPUCores:         16,
			UsedMemoryBytes:  1024,
			TotalMemoryBytes: 1048576,
		},
		Cache:       &models.CacheInfo{BatchSize: 8192, MaxCacheBytes: 1024, MemoryUsageBytes: 256},
		Parquet:     &models.ParquetCacheUsage{Directory: "/var/cache", FileCount: 1200, TotalSizeBytes: 2048},
		TraceActive: true,
		TracePath:   "/tmp",
		Notifications: []html.Notification{
			{ID: "n1", Kind: "error", Message: "Failed to fetch cache info: boom"},
		},
	})

	assert.Contains(t, out, "cache-1")
	assert.Contains(t, out, "Ubuntu (24.04)")
	assert.Contains(t, out, "1.00 KB / 1.00 MB used")
	assert.Contains(t, out, "25.0% utilized")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "Stop Trace")
	assert.Contains(t, out, "Trace collection is active")
	assert.Contains(t, out, `class="notification error"`)
	assert.Contains(t, out, "Failed to fetch cache info: boom")
}

func TestRender_PlanTree(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg"></svg>`
	leaf := models.ExecutionPlanNode{Name: "Level5", Schema: []models.SchemaField{{Name: "a", DataType: "Int64"}}}
	root := leaf
	for i := 4; i >= 0; i-- {
		root = models.ExecutionPlanNode{
			Name:     fmt.Sprintf("Level%d", i),
			Metrics:  map[string]string{"output_rows": "2000"},
			Children: []models.ExecutionPlanNode{root},
		}
	}

	plans := []models.ExecutionPlan{
		{
			ID: "0123456789abcdef", Plan: root, FormattedTime: "09:15:00",
			Stats: &models.ExecutionStats{DisplayName: "tpch q3", FlamegraphSVG: &svg, ExecutionTimeMs: 42, NetworkTrafficBytes: 3 * 1024 * 1024},
		},
		{ID: "older", Plan: leaf, FormattedTime: "09:00:00"},
	}

	out := render(t, html.Page{Host: "h", Plans: plans, Current: currentView(plans)})

	for i := 0; i <= 5; i++ {
		assert.Contains(t, out, fmt.Sprintf(">Level%d<", i))
	}
	assert.Equal(t, 5, strings.Count(out, `<ul class="node-children">`))
	assert.Contains(t, out, `id="node-0.0.0.0.0.0"`)
	assert.Contains(t, out, "2.00K")
	assert.Contains(t, out, "42ms")
	assert.Contains(t, out, "3.00 MB")
	assert.Contains(t, out, `<option value="0123456789abcdef" selected>tpch q3 (09:15:00)</option>`)
	assert.Contains(t, out, `<option value="older">older (09:00:00)</option>`)
	assert.Contains(t, out, "Hide Schema")
	assert.Contains(t, out, `download="flamegraph-0123456789abcdef.svg"`)
	assert.Contains(t, out, "srcdoc=\"&lt;!DOCTYPE html&gt;")
	assert.NotContains(t, out, "<svg xmlns", "flamegraph must be escaped inside srcdoc")
}

func TestRender_StatisticsPanel(t *testing.T) {
	rows := "Exact(42)"
	stats := &models.Statistics{NumRows: &rows}
	for i := 0; i < 7; i++ {
		stats.Columns = append(stats.Columns, models.ColumnStatistics{Name: fmt.Sprintf("col%d", i)})
	}
	plans := []models.ExecutionPlan{{ID: "p", Plan: models.ExecutionPlanNode{Name: "Scan", Statistics: stats}}}

	pv := currentView(plans)
	out := render(t, html.Page{Plans: plans, Current: pv})
	assert.Contains(t, out, "Show Statistics")
	assert.NotContains(t, out, "Exact(42)")

	pv.Toggles.Toggle(view.PanelStatistics, view.RootPath)
	out = render(t, html.Page{Plans: plans, Current: pv})
	assert.Contains(t, out, "Hide Statistics")
	assert.Contains(t, out, "Exact(42)")
	assert.Contains(t, out, "col4")
	assert.NotContains(t, out, "col5")
	assert.Contains(t, out, "... and 2 more columns")
}

func TestRender_EscapesContent(t *testing.T) {
	plans := []models.ExecutionPlan{{ID: "p", Plan: models.ExecutionPlanNode{Name: "<script>alert(1)</script>"}}}
	out := render(t, html.Page{Plans: plans, Current: currentView(plans)})

	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestRender_Flight(t *testing.T) {
	out := render(t, html.Page{Flight: &html.FlightStatus{
		Address:   "localhost:15214",
		Reachable: true,
		Latency:   "3ms",
		Actions:   []string{"CreatePreparedStatement", "ClosePreparedStatement"},
	}})

	assert.Contains(t, out, "Flight Endpoint")
	assert.Contains(t, out, "yes (3ms)")
	assert.Contains(t, out, "CreatePreparedStatement, ClosePreparedStatement")
}
