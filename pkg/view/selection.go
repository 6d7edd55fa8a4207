package view

import (
	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/models"
)

// State is the phase of the plan selection state machine.
type State int

const (
	// StateNoData means no plan list has been loaded yet.
	StateNoData State = iota
	// StatePlanListLoaded means a list was loaded but it holds no plan.
	StatePlanListLoaded
	// StatePlanSelected means a plan is displayed.
	StatePlanSelected
)

func (s State) String() string {
	switch s {
	case StateNoData:
		return "no_data"
	case StatePlanListLoaded:
		return "plan_list_loaded"
	case StatePlanSelected:
		return "plan_selected"
	default:
		return "unknown"
	}
}

// Selection tracks the loaded plans and which one is displayed. It is not
// safe for concurrent use.
type Selection struct {
	loaded   bool
	plans    []models.ExecutionPlan
	selected string
	toggles  map[string]*Toggles
}

// NewSelection returns a selection in StateNoData.
func NewSelection() *Selection {
	return &Selection{toggles: make(map[string]*Toggles)}
}

// State returns the current phase.
func (s *Selection) State() State {
	switch {
	case !s.loaded:
		return StateNoData
	case s.selected == "":
		return StatePlanListLoaded
	default:
		return StatePlanSelected
	}
}

// Replace installs a freshly fetched plan list. The current selection is
// kept when its id is still present; otherwise the first plan is selected.
func (s *Selection) Replace(plans []models.ExecutionPlan) {
	s.loaded = true
	s.plans = plans

	if _, ok := models.FindPlan(plans, s.selected); ok && s.selected != "" {
		return
	}
	if len(plans) == 0 {
		s.selected = ""
		return
	}
	s.selected = plans[0].ID
}

// Select displays the plan with the given id.
func (s *Selection) Select(id string) error {
	if _, ok := models.FindPlan(s.plans, id); !ok {
		return errors.ErrPlanNotFound
	}
	s.selected = id
	return nil
}

// Clear drops the selection without touching the plan list.
func (s *Selection) Clear() {
	s.selected = ""
}

// Plans returns the loaded plans, newest first.
func (s *Selection) Plans() []models.ExecutionPlan {
	return s.plans
}

// SelectedID returns the id of the displayed plan, or "".
func (s *Selection) SelectedID() string {
	return s.selected
}

// Selected returns the displayed plan.
func (s *Selection) Selected() (*models.ExecutionPlan, bool) {
	if s.selected == "" {
		return nil, false
	}
	return models.FindPlan(s.plans, s.selected)
}

// Toggles returns the panel toggles of a plan, creating them on first use.
// Toggles outlive refreshes.
func (s *Selection) Toggles(planID string) *Toggles {
	t, ok := s.toggles[planID]
	if !ok {
		t = NewToggles()
		s.toggles[planID] = t
	}
	return t
}

// Toggle flips a panel of a node in the given plan.
func (s *Selection) Toggle(planID string, panel Panel, path string) (bool, error) {
	plan, ok := models.FindPlan(s.plans, planID)
	if !ok {
		return false, errors.ErrPlanNotFound
	}
	if _, ok := Flatten(&plan.Plan).Lookup(path); !ok {
		return false, errors.New(errors.CodeNotFound, "plan node not found").WithDetail("path", path)
	}
	return s.Toggles(planID).Toggle(panel, path), nil
}

// PlanView is everything a renderer needs to draw one plan.
type PlanView struct {
	Plan    *models.ExecutionPlan
	Tree    *Tree
	Toggles *Toggles
}

// Current builds the view of the displayed plan. The toggles are a copy.
func (s *Selection) Current() (*PlanView, bool) {
	plan, ok := s.Selected()
	if !ok {
		return nil, false
	}
	return &PlanView{
		Plan:    plan,
		Tree:    Flatten(&plan.Plan),
		Toggles: s.Toggles(plan.ID).Clone(),
	}, true
}
