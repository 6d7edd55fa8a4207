package view

import (
	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/models"
)

// Panel names a collapsible section of a node.
type Panel string

const (
	PanelSchema     Panel = "schema"
	PanelStatistics Panel = "statistics"
)

// ParsePanel validates a panel name.
func ParsePanel(s string) (Panel, error) {
	switch Panel(s) {
	case PanelSchema, PanelStatistics:
		return Panel(s), nil
	default:
		return "", errors.ErrUnknownPanel
	}
}

// Default is the state a panel has before it is first toggled.
func (p Panel) Default() bool {
	return p == PanelSchema
}

type toggleKey struct {
	panel Panel
	path  string
}

// Toggles records the expand/collapse state of node panels, keyed by node
// path. Only panels flipped away from their default are stored.
type Toggles struct {
	flipped map[toggleKey]bool
}

// NewToggles returns toggles with every panel at its default.
func NewToggles() *Toggles {
	return &Toggles{flipped: make(map[toggleKey]bool)}
}

// Expanded reports whether the panel of the node at path is open.
func (t *Toggles) Expanded(panel Panel, path string) bool {
	if t == nil {
		return panel.Default()
	}
	if t.flipped[toggleKey{panel, path}] {
		return !panel.Default()
	}
	return panel.Default()
}

// Toggle flips a panel and returns its new state.
func (t *Toggles) Toggle(panel Panel, path string) bool {
	key := toggleKey{panel, path}
	if t.flipped[key] {
		delete(t.flipped, key)
	} else {
		t.flipped[key] = true
	}
	return t.Expanded(panel, path)
}

// Clone returns an independent copy.
func (t *Toggles) Clone() *Toggles {
	c := NewToggles()
	if t == nil {
		return c
	}
	for k, v := range t.flipped {
		c.flipped[k] = v
	}
	return c
}

// StatisticsPreviewLimit is how many column statistics a node shows.
const StatisticsPreviewLimit = 5

// StatisticsPreview returns the first columns of stats and how many were cut.
func StatisticsPreview(stats *models.Statistics) ([]models.ColumnStatistics, int) {
	if stats == nil {
		return nil, 0
	}
	if len(stats.Columns) <= StatisticsPreviewLimit {
		return stats.Columns, 0
	}
	return stats.Columns[:StatisticsPreviewLimit], len(stats.Columns) - StatisticsPreviewLimit
}
