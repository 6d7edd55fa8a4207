package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/infrastructure/metrics"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/render/html"
	"github.com/TFMV/cachewatch/pkg/services"
	"github.com/TFMV/cachewatch/pkg/view"
)

const defaultHistoryLimit = 50

// Config configures the dashboard handler.
type Config struct {
	// RequestTimeout bounds every fetch a request triggers.
	RequestTimeout time.Duration
	// TracePath and StatsPath prefill the trace and stats forms.
	TracePath string
	StatsPath string
	// CORSOrigins are the origins allowed to call /api/.
	CORSOrigins []string
	// FlightAddress shows the Flight panel before the first probe.
	FlightAddress string
}

// DashboardHandler serves the dashboard page, its form actions and a JSON API.
type DashboardHandler struct {
	service services.DashboardService
	config  Config
	logger  Logger
	metrics MetricsCollector
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(service services.DashboardService, cfg Config, logger Logger, collector MetricsCollector) *DashboardHandler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.TracePath == "" {
		cfg.TracePath = "/tmp"
	}
	if cfg.StatsPath == "" {
		cfg.StatsPath = "/tmp"
	}
	return &DashboardHandler{
		service: service,
		config:  cfg,
		logger:  logger,
		metrics: collector,
	}
}

// Routes returns the handler's router.
func (h *DashboardHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.dashboard)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("POST /connect", h.connect)
	mux.HandleFunc("POST /refresh/{panel}", h.refresh)
	mux.HandleFunc("POST /plans/select", h.selectPlan)
	mux.HandleFunc("POST /toggle", h.toggle)
	mux.HandleFunc("POST /actions/{action}", h.action)
	mux.HandleFunc("POST /notifications/{id}/dismiss", h.dismiss)
	mux.HandleFunc("POST /probe", h.probe)
	mux.HandleFunc("GET /flamegraph/{file}", h.flamegraph)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/snapshot", h.apiSnapshot)
	api.HandleFunc("GET /api/plans", h.apiPlans)
	api.HandleFunc("GET /api/history", h.apiHistory)
	api.HandleFunc("GET /api/sessions", h.apiSessions)
	api.HandleFunc("POST /api/refresh", h.apiRefresh)

	origins := h.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	mux.Handle("/api/", c.Handler(api))

	return mux
}

func (h *DashboardHandler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.config.RequestTimeout)
}

func (h *DashboardHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")

	snap, err := h.service.Snapshot(host)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// First visit of a server loads every panel.
	if snap.LastRefresh.IsZero() && snap.LastError == "" {
		ctx, cancel := h.requestContext(r)
		err := h.service.RefreshAll(ctx, host)
		cancel()
		// A timed out refresh still renders whatever arrived.
		if errors.IsCanceled(err) && r.Context().Err() != nil {
			return
		}
		if snap, err = h.service.Snapshot(host); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := html.Render(w, h.page(snap)); err != nil {
		h.logger.Error("Failed to render dashboard", "error", err)
	}
}

func (h *DashboardHandler) page(snap *services.Snapshot) html.Page {
	page := html.Page{
		Host:        snap.Host,
		System:      snap.System,
		Cache:       snap.CacheInfo,
		Parquet:     snap.Parquet,
		Plans:       snap.Plans,
		Current:     snap.Current,
		TraceActive: snap.TraceActive,
		TracePath:   h.config.TracePath,
		StatsPath:   h.config.StatsPath,
	}
	for _, n := range snap.Notifications {
		page.Notifications = append(page.Notifications, html.Notification{
			ID:      n.ID,
			Kind:    string(n.Kind),
			Message: n.Message,
		})
	}

	switch {
	case snap.Flight != nil:
		page.Flight = &html.FlightStatus{
			Address:   snap.Flight.Address,
			Reachable: snap.Flight.Reachable,
			Latency:   snap.Flight.Latency.Round(time.Millisecond).String(),
			Actions:   snap.Flight.Actions,
			Error:     snap.Flight.Error,
		}
	case h.config.FlightAddress != "":
		page.Flight = &html.FlightStatus{Address: h.config.FlightAddress, Error: "not probed yet"}
	}
	return page
}

func (h *DashboardHandler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *DashboardHandler) connect(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSpace(r.FormValue("host"))

	ctx, cancel := h.requestContext(r)
	defer cancel()

	err := h.service.RefreshAll(ctx, host)
	if errors.IsInvalidRequest(err) {
		h.writeError(w, r, err)
		return
	}
	h.redirect(w, r, host)
}

func (h *DashboardHandler) refresh(w http.ResponseWriter, r *http.Request) {
	host := r.FormValue("host")

	ctx, cancel := h.requestContext(r)
	defer cancel()

	var err error
	switch r.PathValue("panel") {
	case "plans":
		err = h.service.RefreshPlans(ctx, host)
	case "cache":
		err = h.service.RefreshCacheInfo(ctx, host)
	case "system":
		err = h.service.RefreshSystemInfo(ctx, host)
	case "all":
		err = h.service.RefreshAll(ctx, host)
	default:
		h.writeError(w, r, errors.New(errors.CodeInvalidRequest, "unknown panel").WithDetail("panel", r.PathValue("panel")))
		return
	}

	// Fetch failures are shown as notifications on the page.
	if errors.IsInvalidRequest(err) {
		h.writeError(w, r, err)
		return
	}
	h.redirect(w, r, host)
}

func (h *DashboardHandler) selectPlan(w http.ResponseWriter, r *http.Request) {
	host := r.FormValue("host")
	if err := h.service.SelectPlan(host, r.FormValue("plan")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.redirect(w, r, host)
}

func (h *DashboardHandler) toggle(w http.ResponseWriter, r *http.Request) {
	host := r.FormValue("host")

	panel, err := view.ParsePanel(r.FormValue("panel"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	path := r.FormValue("path")
	if _, err := h.service.Toggle(host, r.FormValue("plan"), panel, path); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.redirectTo(w, r, host, "node-"+path)
}

func (h *DashboardHandler) action(w http.ResponseWriter, r *http.Request) {
	host := r.FormValue("host")
	action := models.Action(r.PathValue("action"))
	if !action.Valid() {
		h.writeError(w, r, errors.New(errors.CodeInvalidRequest, "unknown action").WithDetail("action", string(action)))
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	_, err := h.service.RunAction(ctx, host, action, strings.TrimSpace(r.FormValue("path")))
	if errors.IsInvalidRequest(err) {
		h.writeError(w, r, err)
		return
	}
	h.redirect(w, r, host)
}

func (h *DashboardHandler) dismiss(w http.ResponseWriter, r *http.Request) {
	host := r.FormValue("host")
	h.service.Dismiss(host, r.PathValue("id"))
	h.redirect(w, r, host)
}

func (h *DashboardHandler) probe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if _, err := h.service.ProbeFlight(ctx); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.redirectTo(w, r, r.FormValue("host"), "flight")
}

func (h *DashboardHandler) flamegraph(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	id, ok := strings.CutSuffix(file, ".svg")
	if !ok || id == "" {
		h.writeError(w, r, errors.New(errors.CodeNotFound, "flamegraph must be requested as <id>.svg"))
		return
	}

	svg, err := h.service.Flamegraph(r.URL.Query().Get("host"), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="flamegraph-`+id+`.svg"`)
	_, _ = w.Write([]byte(svg))
}

func (h *DashboardHandler) apiSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.URL.Query().Get("host"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *DashboardHandler) apiPlans(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.URL.Query().Get("host"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"host":        snap.Host,
		"state":       snap.State,
		"selected_id": snap.SelectedID,
		"plans":       snap.Plans,
	})
}

func (h *DashboardHandler) apiHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, errors.New(errors.CodeInvalidRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	plans, err := h.service.History(r.Context(), r.URL.Query().Get("host"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *DashboardHandler) apiSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.SessionStats())
}

func (h *DashboardHandler) apiRefresh(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.service.RefreshAll(ctx, host); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.apiSnapshot(w, r)
}

func (h *DashboardHandler) redirect(w http.ResponseWriter, r *http.Request, host string) {
	h.redirectTo(w, r, host, "")
}

func (h *DashboardHandler) redirectTo(w http.ResponseWriter, r *http.Request, host, anchor string) {
	target := "/"
	if host != "" {
		target += "?host=" + url.QueryEscape(host)
	}
	if anchor != "" {
		target += "#" + anchor
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *DashboardHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	h.metrics.IncrementCounter(metrics.HandlerErrors, "code", errors.GetCode(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("Request rejected", "path", r.URL.Path, "error", err)
	}

	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, status, map[string]interface{}{"error": toAPIError(err)})
		return
	}
	http.Error(w, errors.Describe(err), status)
}

func toAPIError(err error) *errors.MonitorError {
	return &errors.MonitorError{
		Code:    errors.GetCode(err),
		Message: errors.Describe(err),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
