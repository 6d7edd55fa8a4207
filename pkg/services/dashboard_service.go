package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TFMV/cachewatch/pkg/cache"
	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/infrastructure/converter"
	"github.com/TFMV/cachewatch/pkg/infrastructure/metrics"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/repositories"
	"github.com/TFMV/cachewatch/pkg/view"
)

const archiveTimeout = 5 * time.Second

// DashboardConfig configures the dashboard service.
type DashboardConfig struct {
	// DefaultHost is used when a call passes an empty host.
	DefaultHost string
	// DefaultTracePath and DefaultStatsPath are used when an action gets no path.
	DefaultTracePath string
	DefaultStatsPath string

	Sessions          *cache.Config
	NotificationTTLs  NotificationTTLs
	NotificationLimit int

	// ArchiveMaxRows bounds the archive after every save. Zero disables pruning.
	ArchiveMaxRows int
}

// Option configures optional collaborators of the dashboard service.
type Option func(*dashboardService)

// WithArchive stores every decoded plan in archive.
func WithArchive(archive repositories.ArchiveRepository) Option {
	return func(s *dashboardService) {
		s.archive = archive
	}
}

// WithFlightProbe enables ProbeFlight.
func WithFlightProbe(probe repositories.FlightProbe) Option {
	return func(s *dashboardService) {
		s.probe = probe
	}
}

// WithNotifier mirrors every session notification to n.
func WithNotifier(n Notifier) Option {
	return func(s *dashboardService) {
		s.sink = n
	}
}

// WithClock replaces the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *dashboardService) {
		s.now = now
	}
}

// dashboardService implements DashboardService interface.
type dashboardService struct {
	factory  repositories.ServerRepositoryFactory
	decoder  converter.PlanDecoder
	sessions *cache.LRUCache[*session]
	config   DashboardConfig
	logger   Logger
	metrics  MetricsCollector

	archive repositories.ArchiveRepository
	probe   repositories.FlightProbe
	sink    Notifier
	now     func() time.Time

	probeMu   sync.Mutex
	lastProbe *repositories.ProbeResult
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(
	factory repositories.ServerRepositoryFactory,
	decoder converter.PlanDecoder,
	cfg DashboardConfig,
	logger Logger,
	metrics MetricsCollector,
	opts ...Option,
) (DashboardService, error) {
	sessions, err := cache.New[*session](cfg.Sessions)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create session cache")
	}
	if cfg.DefaultTracePath == "" {
		cfg.DefaultTracePath = "/tmp"
	}
	if cfg.DefaultStatsPath == "" {
		cfg.DefaultStatsPath = "/tmp"
	}
	if cfg.NotificationTTLs == (NotificationTTLs{}) {
		cfg.NotificationTTLs = DefaultNotificationTTLs()
	}

	s := &dashboardService{
		factory:  factory,
		decoder:  decoder,
		sessions: sessions,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// session returns the session of host, creating it on first use.
func (s *dashboardService) session(host string) (*session, error) {
	if host == "" {
		host = s.config.DefaultHost
	}
	repo, err := s.factory(host)
	if err != nil {
		return nil, err
	}

	sess := s.sessions.GetOrCreate(repo.Address(), func() *session {
		s.logger.Debug("Creating session", "host", repo.Address())
		return newSession(repo, NewNotificationCenter(s.config.NotificationTTLs, s.config.NotificationLimit))
	})
	s.publishSessionStats()
	return sess, nil
}

func (s *dashboardService) notifier(sess *session) Notifier {
	if s.sink == nil {
		return sess.notes
	}
	return multiNotifier{sess.notes, s.sink}
}

// RefreshPlans fetches /execution_plans, decodes the batch and replaces the
// plan list. An undecodable batch keeps the previous list.
func (s *dashboardService) RefreshPlans(ctx context.Context, host string) error {
	sess, err := s.session(host)
	if err != nil {
		return err
	}

	timer := s.metrics.StartTimer("refresh_plans")
	records, err := sess.repo.ExecutionPlans(ctx)
	s.observeFetch("/execution_plans", timer, err)
	if err != nil {
		return s.fail(ctx, sess, "Failed to fetch execution plans", err)
	}

	result, err := s.decoder.Decode(records)
	if result != nil && len(result.Errors) > 0 {
		for _, decodeErr := range result.Errors {
			s.metrics.IncrementCounter(metrics.DecodeErrors, "host", sess.host)
			s.logger.Warn("Dropped execution plan", "host", sess.host, "key", decodeErr.Key, "error", decodeErr.Err)
		}
	}
	if err != nil {
		return s.fail(ctx, sess, "Failed to fetch execution plans", err)
	}
	if err := errors.FromContext(ctx); err != nil {
		return err
	}

	sess.applyPlans(result.Plans, s.now())
	s.metrics.RecordGauge(metrics.PlansLoaded, float64(len(result.Plans)), "host", sess.host)
	s.logger.Info("Execution plans refreshed", "host", sess.host, "plans", len(result.Plans), "dropped", len(result.Errors))

	if len(result.Errors) > 0 {
		s.notifier(sess).Info(skippedMessage(result.Errors))
	}
	if len(result.Plans) == 0 {
		s.notifier(sess).Info("No execution plans recorded yet")
	}

	s.archivePlans(ctx, sess.host, result.Plans)
	return nil
}

// RefreshCacheInfo fetches /cache_info and /parquet_cache_usage. Each panel
// is applied on its own success.
func (s *dashboardService) RefreshCacheInfo(ctx context.Context, host string) error {
	sess, err := s.session(host)
	if err != nil {
		return err
	}

	timer := s.metrics.StartTimer("refresh_cache_info")
	info, infoErr := sess.repo.CacheInfo(ctx)
	s.observeFetch("/cache_info", timer, infoErr)
	if infoErr != nil {
		infoErr = s.fail(ctx, sess, "Failed to fetch cache info", infoErr)
	} else if err := errors.FromContext(ctx); err != nil {
		return err
	} else {
		sess.applyCacheInfo(info, s.now())
	}

	timer = s.metrics.StartTimer("refresh_parquet_usage")
	usage, usageErr := sess.repo.ParquetCacheUsage(ctx)
	s.observeFetch("/parquet_cache_usage", timer, usageErr)
	if usageErr != nil {
		usageErr = s.fail(ctx, sess, "Failed to fetch cache usage", usageErr)
	} else if err := errors.FromContext(ctx); err != nil {
		return err
	} else {
		sess.applyParquet(usage, s.now())
	}

	if infoErr != nil {
		return infoErr
	}
	return usageErr
}

// RefreshSystemInfo fetches /system_info.
func (s *dashboardService) RefreshSystemInfo(ctx context.Context, host string) error {
	sess, err := s.session(host)
	if err != nil {
		return err
	}

	timer := s.metrics.StartTimer("refresh_system_info")
	info, err := sess.repo.SystemInfo(ctx)
	s.observeFetch("/system_info", timer, err)
	if err != nil {
		return s.fail(ctx, sess, "Failed to fetch system info", err)
	}
	if err := errors.FromContext(ctx); err != nil {
		return err
	}

	sess.applySystem(info, s.now())
	return nil
}

// RefreshAll refreshes plans, cache and system panels concurrently. A failing
// panel does not cancel the others; the first error is returned.
func (s *dashboardService) RefreshAll(ctx context.Context, host string) error {
	if _, err := s.session(host); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error { return s.RefreshPlans(ctx, host) })
	g.Go(func() error { return s.RefreshCacheInfo(ctx, host) })
	g.Go(func() error { return s.RefreshSystemInfo(ctx, host) })
	return g.Wait()
}

// SelectPlan displays the plan with the given id until the next refresh
// re-runs auto-selection.
func (s *dashboardService) SelectPlan(host, id string) error {
	sess, err := s.session(host)
	if err != nil {
		return err
	}
	if err := sess.selectPlan(id); err != nil {
		return err
	}
	s.logger.Debug("Plan selected", "host", sess.host, "plan_id", id)
	return nil
}

// Toggle flips a detail panel of one plan node.
func (s *dashboardService) Toggle(host, planID string, panel view.Panel, path string) (bool, error) {
	sess, err := s.session(host)
	if err != nil {
		return false, err
	}
	if planID == "" {
		planID = s.selectedID(sess)
	}
	return sess.toggle(planID, panel, path)
}

func (s *dashboardService) selectedID(sess *session) string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.selection.SelectedID()
}

func (s *dashboardService) ResetCache(ctx context.Context, host string) (*models.APIResponse, error) {
	return s.RunAction(ctx, host, models.ActionResetCache, "")
}

func (s *dashboardService) Shutdown(ctx context.Context, host string) (*models.APIResponse, error) {
	return s.RunAction(ctx, host, models.ActionShutdown, "")
}

func (s *dashboardService) StartTrace(ctx context.Context, host string) (*models.APIResponse, error) {
	return s.RunAction(ctx, host, models.ActionStartTrace, "")
}

func (s *dashboardService) StopTrace(ctx context.Context, host, path string) (*models.APIResponse, error) {
	return s.RunAction(ctx, host, models.ActionStopTrace, path)
}

func (s *dashboardService) CacheStats(ctx context.Context, host, path string) (*models.APIResponse, error) {
	return s.RunAction(ctx, host, models.ActionCacheStats, path)
}

var actionFailures = map[models.Action]string{
	models.ActionResetCache: "Failed to reset cache",
	models.ActionShutdown:   "Failed to shutdown server",
	models.ActionStartTrace: "Failed to start trace",
	models.ActionStopTrace:  "Failed to stop trace",
	models.ActionCacheStats: "Failed to get cache stats",
}

// RunAction sends a control command. Success notifies the server's message;
// trace state only changes on success.
func (s *dashboardService) RunAction(ctx context.Context, host string, action models.Action, path string) (*models.APIResponse, error) {
	if !action.Valid() {
		return nil, errors.New(errors.CodeInvalidRequest, "unknown action").WithDetail("action", string(action))
	}
	sess, err := s.session(host)
	if err != nil {
		return nil, err
	}

	if action.TakesPath() && path == "" {
		path = s.config.DefaultTracePath
		if action == models.ActionCacheStats {
			path = s.config.DefaultStatsPath
		}
	}

	s.logger.Info("Running action", "host", sess.host, "action", string(action), "path", path)

	var resp *models.APIResponse
	switch action {
	case models.ActionResetCache:
		resp, err = sess.repo.ResetCache(ctx)
	case models.ActionShutdown:
		resp, err = sess.repo.Shutdown(ctx)
	case models.ActionStartTrace:
		resp, err = sess.repo.StartTrace(ctx)
	case models.ActionStopTrace:
		resp, err = sess.repo.StopTrace(ctx, path)
	case models.ActionCacheStats:
		resp, err = sess.repo.CacheStats(ctx, path)
	}

	if err != nil {
		s.metrics.IncrementCounter(metrics.ActionsTotal, "action", string(action), "outcome", "failure")
		return nil, s.fail(ctx, sess, actionFailures[action], err)
	}
	s.metrics.IncrementCounter(metrics.ActionsTotal, "action", string(action), "outcome", "success")

	switch action {
	case models.ActionStartTrace:
		sess.setTraceActive(true)
	case models.ActionStopTrace:
		sess.setTraceActive(false)
	}

	s.notifier(sess).Success(resp.Message)
	return resp, nil
}

// Snapshot returns a copy of the session state of host.
func (s *dashboardService) Snapshot(host string) (*Snapshot, error) {
	sess, err := s.session(host)
	if err != nil {
		return nil, err
	}
	snap := sess.snapshot(s.now())

	s.probeMu.Lock()
	snap.Flight = s.lastProbe
	s.probeMu.Unlock()
	return snap, nil
}

// Flamegraph returns the flamegraph SVG of a plan.
func (s *dashboardService) Flamegraph(host, id string) (string, error) {
	sess, err := s.session(host)
	if err != nil {
		return "", err
	}
	plan, ok := sess.plan(id)
	if !ok {
		if id == "" {
			return "", errors.ErrNoPlans
		}
		return "", errors.ErrPlanNotFound
	}
	svg, ok := plan.FlamegraphSVG()
	if !ok {
		return "", errors.ErrNoFlamegraph
	}
	return svg, nil
}

func (s *dashboardService) Dismiss(host, id string) bool {
	sess, err := s.session(host)
	if err != nil {
		return false
	}
	return sess.notes.Dismiss(id)
}

// History lists archived plans newest first.
func (s *dashboardService) History(ctx context.Context, host string, limit int) ([]repositories.ArchivedPlan, error) {
	if s.archive == nil {
		return nil, errors.ErrArchiveDisabled
	}
	if host != "" {
		repo, err := s.factory(host)
		if err != nil {
			return nil, err
		}
		host = repo.Address()
	}
	return s.archive.List(ctx, host, limit)
}

// ArchivedPlan returns one archived plan of host.
func (s *dashboardService) ArchivedPlan(ctx context.Context, host, id string) (*repositories.ArchivedPlan, error) {
	if s.archive == nil {
		return nil, errors.ErrArchiveDisabled
	}
	if host == "" {
		host = s.config.DefaultHost
	}
	repo, err := s.factory(host)
	if err != nil {
		return nil, err
	}
	return s.archive.Get(ctx, repo.Address(), id)
}

// ProbeFlight runs the Flight probe and remembers its result.
func (s *dashboardService) ProbeFlight(ctx context.Context) (*repositories.ProbeResult, error) {
	if s.probe == nil {
		return nil, errors.New(errors.CodeUnavailable, "flight probe is not configured")
	}

	result, err := s.probe.Probe(ctx)
	if err != nil {
		return nil, err
	}

	reachable := "false"
	if result.Reachable {
		reachable = "true"
	}
	s.metrics.IncrementCounter(metrics.FlightProbes, "reachable", reachable)

	s.probeMu.Lock()
	s.lastProbe = result
	s.probeMu.Unlock()
	return result, nil
}

func (s *dashboardService) SessionStats() cache.Stats {
	return s.sessions.Stats()
}

// Close releases the archive and the Flight probe.
func (s *dashboardService) Close() error {
	s.sessions.Clear()

	var firstErr error
	if s.probe != nil {
		if err := s.probe.Close(); err != nil {
			firstErr = err
		}
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fail records a failed fetch or action on the session and notifies it.
// Canceled requests are discarded silently.
func (s *dashboardService) fail(ctx context.Context, sess *session, prefix string, err error) error {
	if errors.IsCanceled(err) || ctx.Err() != nil {
		s.logger.Debug("Request canceled", "host", sess.host, "operation", prefix)
		if errors.IsCanceled(err) {
			return err
		}
		return errors.FromContext(ctx)
	}

	message := fmt.Sprintf("%s: %s", prefix, errors.Describe(err))
	sess.recordError(message)
	s.notifier(sess).Error(message)
	s.logger.Error(prefix, "host", sess.host, "error", err)
	return err
}

// maxSkippedKeys bounds the keys named in one skipped-plans notification.
const maxSkippedKeys = 5

func skippedMessage(decodeErrs []converter.DecodeError) string {
	keys := make([]string, 0, maxSkippedKeys+1)
	for i, e := range decodeErrs {
		if i == maxSkippedKeys {
			keys = append(keys, "...")
			break
		}
		keys = append(keys, e.Key)
	}
	noun := "plans"
	if len(decodeErrs) == 1 {
		noun = "plan"
	}
	return fmt.Sprintf("Skipped %d undecodable execution %s: %s", len(decodeErrs), noun, strings.Join(keys, ", "))
}

func (s *dashboardService) observeFetch(endpoint string, timer Timer, err error) {
	duration := timer.Stop()
	s.metrics.RecordHistogram(metrics.FetchDuration, duration.Seconds(), "endpoint", endpoint)
	if err != nil && !errors.IsCanceled(err) {
		s.metrics.IncrementCounter(metrics.FetchErrors, "endpoint", endpoint, "code", errors.GetCode(err))
	}
}

func (s *dashboardService) archivePlans(ctx context.Context, host string, plans []models.ExecutionPlan) {
	if s.archive == nil || len(plans) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	if err := s.archive.Save(ctx, host, plans); err != nil {
		s.metrics.IncrementCounter(metrics.ArchiveErrors, "operation", "save")
		s.logger.Warn("Failed to archive execution plans", "host", host, "error", err)
		return
	}
	if s.config.ArchiveMaxRows > 0 {
		if _, err := s.archive.Prune(ctx, s.config.ArchiveMaxRows); err != nil {
			s.metrics.IncrementCounter(metrics.ArchiveErrors, "operation", "prune")
			s.logger.Warn("Failed to prune plan archive", "error", err)
		}
	}
}

func (s *dashboardService) publishSessionStats() {
	stats := s.sessions.Stats()
	s.metrics.RecordGauge(metrics.SessionCacheHits, float64(stats.Hits))
	s.metrics.RecordGauge(metrics.SessionCacheMisses, float64(stats.Misses))
	s.metrics.RecordGauge(metrics.SessionCacheEvictions, float64(stats.Evictions))
	s.metrics.RecordGauge(metrics.SessionCacheSize, float64(stats.Size))
}
