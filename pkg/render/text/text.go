// Package text renders execution plans as ASCII trees for terminals.
package text

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/TFMV/cachewatch/pkg/format"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/view"
)

// Options controls how the text renderer behaves.
type Options struct {
	EnableColor bool
	// MaxDepth stops descending below this depth when positive.
	MaxDepth int
	// Header prints the plan id, time and execution stats above the tree.
	Header bool
}

type palette struct {
	name    *color.Color
	metric  *color.Color
	detail  *color.Color
	warning *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		name:    color.New(color.FgCyan, color.Bold),
		metric:  color.New(color.FgGreen),
		detail:  color.New(color.Faint),
		warning: color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.name, p.metric, p.detail, p.warning} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

type renderer struct {
	w    io.Writer
	tree *view.Tree
	pv   *view.PlanView
	opts Options
	pal  palette
}

// Render prints the plan tree of pv. Panels honour pv.Toggles: schema lines
// are printed while the schema panel is expanded, statistics lines while the
// statistics panel is expanded.
func Render(w io.Writer, pv *view.PlanView, opts Options) error {
	if w == nil {
		return errors.New("text: writer is nil")
	}
	if pv == nil || pv.Plan == nil {
		return errors.New("text: empty plan")
	}

	tree := pv.Tree
	if tree == nil {
		tree = view.Flatten(&pv.Plan.Plan)
	}
	root := tree.Root()
	if root == nil {
		return errors.New("text: empty plan")
	}

	r := &renderer{w: w, tree: tree, pv: pv, opts: opts, pal: newPalette(opts.EnableColor)}
	if opts.Header {
		r.header(pv.Plan)
	}

	_, _ = fmt.Fprintf(w, "%s\n", r.line(root))
	r.details(root, "")
	r.children(root, "")
	return nil
}

func (r *renderer) header(plan *models.ExecutionPlan) {
	_, _ = fmt.Fprintf(r.w, "Plan %s\n", plan.ID)
	_, _ = fmt.Fprintf(r.w, "Name %s\n", plan.DisplayName())
	_, _ = fmt.Fprintf(r.w, "Created %s\n", plan.FormattedTime)
	if plan.Stats != nil {
		_, _ = fmt.Fprintf(r.w, "Query execution time %s | Network traffic %s\n",
			format.Millis(plan.Stats.ExecutionTimeMs), format.Bytes(plan.Stats.NetworkTrafficBytes))
	}
	_, _ = fmt.Fprintln(r.w)
}

func (r *renderer) children(parent *view.Node, prefix string) {
	for _, child := range r.tree.ChildNodes(parent) {
		r.branch(child, prefix, r.tree.IsLastChild(child))
	}
}

func (r *renderer) branch(node *view.Node, prefix string, isLast bool) {
	connector := "|-- "
	childPrefix := prefix + "|   "
	if isLast {
		connector = "`-- "
		childPrefix = prefix + "    "
	}

	_, _ = fmt.Fprintf(r.w, "%s%s%s\n", prefix, connector, r.line(node))
	r.details(node, childPrefix)

	if r.opts.MaxDepth > 0 && node.Depth >= r.opts.MaxDepth {
		if !node.IsLeaf() {
			_, _ = fmt.Fprintf(r.w, "%s`-- %s\n", childPrefix,
				r.pal.warning.Sprintf("... (%d more nodes)", node.Plan.CountNodes()-1))
		}
		return
	}

	r.children(node, childPrefix)
}

func (r *renderer) line(node *view.Node) string {
	label := r.pal.name.Sprint(node.Plan.Name)
	metrics := format.Metrics(node.Plan.Metrics)
	if len(metrics) == 0 {
		return label
	}

	parts := make([]string, 0, len(metrics))
	for _, m := range metrics {
		parts = append(parts, m.Name+"="+r.pal.metric.Sprint(m.Value))
	}
	return label + " [" + strings.Join(parts, ", ") + "]"
}

// details prints the expanded panels of node below its line.
func (r *renderer) details(node *view.Node, prefix string) {
	gutter := prefix + "    "
	if !node.IsLeaf() && (r.opts.MaxDepth <= 0 || node.Depth < r.opts.MaxDepth) {
		gutter = prefix + "|   "
	}

	if r.pv.Toggles.Expanded(view.PanelSchema, node.Path) && len(node.Plan.Schema) > 0 {
		fields := make([]string, 0, len(node.Plan.Schema))
		for _, f := range node.Plan.Schema {
			fields = append(fields, f.Name+": "+f.DataType)
		}
		_, _ = fmt.Fprintf(r.w, "%s%s\n", gutter, r.pal.detail.Sprint("schema: "+strings.Join(fields, ", ")))
	}

	stats := node.Plan.Statistics
	if stats == nil || !r.pv.Toggles.Expanded(view.PanelStatistics, node.Path) {
		return
	}

	var summary []string
	if stats.NumRows != nil {
		summary = append(summary, "rows "+*stats.NumRows)
	}
	if stats.TotalByteSize != nil {
		summary = append(summary, "bytes "+*stats.TotalByteSize)
	}
	if len(summary) > 0 {
		_, _ = fmt.Fprintf(r.w, "%s%s\n", gutter, r.pal.detail.Sprint("statistics: "+strings.Join(summary, ", ")))
	}

	cols, more := view.StatisticsPreview(stats)
	for _, col := range cols {
		_, _ = fmt.Fprintf(r.w, "%s%s\n", gutter, r.pal.detail.Sprint("  "+columnLine(col)))
	}
	if more > 0 {
		_, _ = fmt.Fprintf(r.w, "%s%s\n", gutter, r.pal.detail.Sprintf("  ... and %d more columns", more))
	}
}

func columnLine(col models.ColumnStatistics) string {
	parts := []string{col.Name}
	add := func(label string, v *string) {
		if v != nil {
			parts = append(parts, label+"="+*v)
		}
	}
	add("min", col.Min)
	add("max", col.Max)
	add("sum", col.Sum)
	add("null", col.Null)
	add("distinct", col.Distinct)
	return strings.Join(parts, " ")
}
