// Package html renders the monitoring dashboard page.
package html

import (
	"fmt"
	"html/template"
	"io"

	"github.com/TFMV/cachewatch/pkg/format"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/view"
)

// Notification is a message shown at the top of the page.
type Notification struct {
	ID      string
	Kind    string
	Message string
}

// Page is everything the dashboard template displays.
type Page struct {
	Title         string
	Host          string
	Notifications []Notification
	System        *models.SystemInfo
	Cache         *models.CacheInfo
	Parquet       *models.ParquetCacheUsage
	Plans         []models.ExecutionPlan
	Current       *view.PlanView
	TraceActive   bool
	TracePath     string
	StatsPath     string
	Flight        *FlightStatus
}

// FlightStatus is the outcome of the last Flight reachability probe.
type FlightStatus struct {
	Address   string
	Reachable bool
	Latency   string
	Actions   []string
	Error     string
}

// Render writes the dashboard page.
func Render(w io.Writer, page Page) error {
	if page.Title == "" {
		page.Title = "LiquidCache Monitor"
	}
	if err := pageTemplate.Execute(w, buildTemplateData(page)); err != nil {
		return fmt.Errorf("html render: execute template: %w", err)
	}
	return nil
}

type templateData struct {
	Page
	Utilization string
	PlanOptions []planOption
	Plan        *planView
}

type planOption struct {
	ID       string
	Label    string
	Selected bool
}

type planView struct {
	ID            string
	Name          string
	Created       string
	ExecutionTime string
	Network       string
	Flamegraph    string
	HasFlamegraph bool
	Root          *nodeView
}

type nodeView struct {
	Host        string
	PlanID      string
	Path        string
	Name        string
	Metrics     []format.NamedValue
	Schema      []models.SchemaField
	SchemaOpen  bool
	HasStats    bool
	StatsOpen   bool
	NumRows     string
	TotalBytes  string
	Columns     []columnView
	MoreColumns int
	Children    []*nodeView
}

type columnView struct {
	Name   string
	Values []format.NamedValue
}

func buildTemplateData(page Page) templateData {
	data := templateData{Page: page}
	if page.Cache != nil {
		data.Utilization = format.Percent(page.Cache.MemoryUsageBytes, page.Cache.MaxCacheBytes)
	}

	selected := ""
	if page.Current != nil && page.Current.Plan != nil {
		selected = page.Current.Plan.ID
		data.Plan = buildPlanView(page.Current, page.Host)
	}
	for i := range page.Plans {
		p := &page.Plans[i]
		data.PlanOptions = append(data.PlanOptions, planOption{
			ID:       p.ID,
			Label:    p.DisplayName(),
			Selected: p.ID == selected,
		})
	}
	return data
}

func buildPlanView(pv *view.PlanView, host string) *planView {
	plan := pv.Plan
	out := &planView{
		ID:      plan.ID,
		Created: plan.FormattedTime,
	}
	if plan.Stats != nil {
		out.Name = plan.Stats.DisplayName
		out.ExecutionTime = format.Millis(plan.Stats.ExecutionTimeMs)
		out.Network = format.Bytes(plan.Stats.NetworkTrafficBytes)
	}
	if svg, ok := plan.FlamegraphSVG(); ok {
		out.HasFlamegraph = true
		out.Flamegraph = flamegraphDocument(svg)
	}

	tree := pv.Tree
	if tree == nil {
		tree = view.Flatten(&plan.Plan)
	}
	if root := tree.Root(); root != nil {
		out.Root = buildNodeView(host, plan.ID, tree, root, pv.Toggles)
	}
	return out
}

func buildNodeView(host, planID string, tree *view.Tree, node *view.Node, toggles *view.Toggles) *nodeView {
	nv := &nodeView{
		Host:       host,
		PlanID:     planID,
		Path:       node.Path,
		Name:       node.Plan.Name,
		Metrics:    format.Metrics(node.Plan.Metrics),
		Schema:     node.Plan.Schema,
		SchemaOpen: toggles.Expanded(view.PanelSchema, node.Path),
		StatsOpen:  toggles.Expanded(view.PanelStatistics, node.Path),
	}

	if stats := node.Plan.Statistics; stats != nil {
		nv.HasStats = true
		if stats.NumRows != nil {
			nv.NumRows = *stats.NumRows
		}
		if stats.TotalByteSize != nil {
			nv.TotalBytes = *stats.TotalByteSize
		}
		cols, more := view.StatisticsPreview(stats)
		nv.MoreColumns = more
		for _, col := range cols {
			nv.Columns = append(nv.Columns, buildColumnView(col))
		}
	}

	for _, child := range tree.ChildNodes(node) {
		nv.Children = append(nv.Children, buildNodeView(host, planID, tree, child, toggles))
	}
	return nv
}

func buildColumnView(col models.ColumnStatistics) columnView {
	cv := columnView{Name: col.Name}
	add := func(label string, v *string) {
		if v != nil {
			cv.Values = append(cv.Values, format.NamedValue{Name: label, Value: *v})
		}
	}
	add("Min", col.Min)
	add("Max", col.Max)
	add("Sum", col.Sum)
	add("Null", col.Null)
	add("Distinct", col.Distinct)
	return cv
}

// flamegraphDocument wraps an SVG in the document embedded via srcdoc.
func flamegraphDocument(svg string) string {
	return "<!DOCTYPE html><html><head><style>body{margin:0;padding:0;} svg{width:100%;height:auto;}</style></head><body>" +
		svg + "</body></html>"
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"bytes": format.Bytes,
	"count": format.Count,
}).Parse(pageHTML))
