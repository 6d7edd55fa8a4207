package services

import (
	"sync"
	"time"

	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/repositories"
	"github.com/TFMV/cachewatch/pkg/view"
)

// session is the dashboard state of one cache server. mu is never held
// across a network call.
type session struct {
	host  string
	repo  repositories.ServerRepository
	notes *NotificationCenter

	mu          sync.Mutex
	selection   *view.Selection
	cacheInfo   *models.CacheInfo
	parquet     *models.ParquetCacheUsage
	system      *models.SystemInfo
	traceActive bool
	lastError   string
	lastRefresh time.Time
}

func newSession(repo repositories.ServerRepository, notes *NotificationCenter) *session {
	return &session{
		host:      repo.Address(),
		repo:      repo,
		notes:     notes,
		selection: view.NewSelection(),
	}
}

func (s *session) applyPlans(plans []models.ExecutionPlan, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Replace(plans)
	s.lastError = ""
	s.lastRefresh = now
}

func (s *session) applyCacheInfo(info *models.CacheInfo, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheInfo = info
	s.lastRefresh = now
}

func (s *session) applyParquet(usage *models.ParquetCacheUsage, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parquet = usage
	s.lastRefresh = now
}

func (s *session) applySystem(info *models.SystemInfo, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = info
	s.lastRefresh = now
}

func (s *session) setTraceActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traceActive = active
}

func (s *session) recordError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = message
}

func (s *session) selectPlan(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Select(id)
}

func (s *session) toggle(planID string, panel view.Panel, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Toggle(planID, panel, path)
}

func (s *session) plan(id string) (*models.ExecutionPlan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		return s.selection.Selected()
	}
	return models.FindPlan(s.selection.Plans(), id)
}

func (s *session) snapshot(now time.Time) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Host:        s.host,
		State:       s.selection.State().String(),
		Plans:       s.selection.Plans(),
		SelectedID:  s.selection.SelectedID(),
		CacheInfo:   s.cacheInfo,
		Parquet:     s.parquet,
		System:      s.system,
		TraceActive: s.traceActive,
		LastError:   s.lastError,
		LastRefresh: s.lastRefresh,
	}
	if current, ok := s.selection.Current(); ok {
		snap.Current = current
	}
	if snap.Plans == nil {
		snap.Plans = []models.ExecutionPlan{}
	}
	snap.Notifications = s.notes.Active(now)
	return snap
}
