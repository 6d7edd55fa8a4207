package models

import (
	"fmt"
	"sort"
	"time"
)

// ExecutionPlanNode is one operator of an execution plan tree.
type ExecutionPlanNode struct {
	Name       string              `json:"name"`
	Schema     []SchemaField       `json:"schema"`
	Statistics *Statistics         `json:"statistics,omitempty"`
	Metrics    map[string]string   `json:"metrics"`
	Children   []ExecutionPlanNode `json:"children"`
}

// IsLeaf reports whether the node has no children.
func (n *ExecutionPlanNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// MetricNames returns the metric keys in display order.
func (n *ExecutionPlanNode) MetricNames() []string {
	names := make([]string, 0, len(n.Metrics))
	for name := range n.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CountNodes returns the number of nodes in the subtree rooted at n.
func (n *ExecutionPlanNode) CountNodes() int {
	count := 0
	stack := []*ExecutionPlanNode{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		for i := range top.Children {
			stack = append(stack, &top.Children[i])
		}
	}
	return count
}

// SchemaField is one output column of an operator.
type SchemaField struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// Statistics holds the optimizer statistics attached to an operator.
type Statistics struct {
	NumRows       *string            `json:"num_rows,omitempty"`
	TotalByteSize *string            `json:"total_byte_size,omitempty"`
	Columns       []ColumnStatistics `json:"columns"`
}

// ColumnStatistics holds per-column statistics. Every value is optional.
type ColumnStatistics struct {
	Name     string  `json:"name"`
	Null     *string `json:"null,omitempty"`
	Max      *string `json:"max,omitempty"`
	Min      *string `json:"min,omitempty"`
	Sum      *string `json:"sum,omitempty"`
	Distinct *string `json:"distinct,omitempty"`
}

// ExecutionStats carries the runtime numbers recorded for one plan.
type ExecutionStats struct {
	PlanID              string  `json:"plan_id"`
	DisplayName         string  `json:"display_name"`
	FlamegraphSVG       *string `json:"flamegraph_svg,omitempty"`
	NetworkTrafficBytes uint64  `json:"network_traffic_bytes"`
	ExecutionTimeMs     uint64  `json:"execution_time_ms"`
}

// ExecutionPlan is a decoded plan record.
type ExecutionPlan struct {
	ID            string            `json:"id"`
	Plan          ExecutionPlanNode `json:"plan"`
	CreatedAt     int64             `json:"created_at"`
	FormattedTime string            `json:"formatted_time"`
	Stats         *ExecutionStats   `json:"stats,omitempty"`
}

// shortIDLength is how much of a plan id the fallback display name keeps.
const shortIDLength = 8

// DisplayName is the label used in plan selectors.
func (p *ExecutionPlan) DisplayName() string {
	if p.Stats != nil && p.Stats.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", p.Stats.DisplayName, p.FormattedTime)
	}
	return fmt.Sprintf("%s (%s)", p.ShortID(), p.FormattedTime)
}

// ShortID truncates long ids to their first eight bytes followed by "...".
func (p *ExecutionPlan) ShortID() string {
	if len(p.ID) > shortIDLength {
		return p.ID[:shortIDLength] + "..."
	}
	return p.ID
}

// FlamegraphSVG returns the flamegraph document if the server recorded one.
func (p *ExecutionPlan) FlamegraphSVG() (string, bool) {
	if p.Stats == nil || p.Stats.FlamegraphSVG == nil {
		return "", false
	}
	return *p.Stats.FlamegraphSVG, true
}

// Created returns CreatedAt as a time in the given location.
func (p *ExecutionPlan) Created(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(p.CreatedAt, 0).In(loc)
}

// FindPlan returns the plan with the given id.
func FindPlan(plans []ExecutionPlan, id string) (*ExecutionPlan, bool) {
	for i := range plans {
		if plans[i].ID == id {
			return &plans[i], true
		}
	}
	return nil, false
}
