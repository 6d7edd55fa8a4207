// Package server wires the dashboard service, its HTTP surface and the
// metrics endpoint.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/cachewatch/cmd/server/config"
	"github.com/TFMV/cachewatch/cmd/server/middleware"
	"github.com/TFMV/cachewatch/pkg/cache"
	"github.com/TFMV/cachewatch/pkg/handlers"
	"github.com/TFMV/cachewatch/pkg/infrastructure/converter"
	"github.com/TFMV/cachewatch/pkg/infrastructure/metrics"
	"github.com/TFMV/cachewatch/pkg/infrastructure/pool"
	"github.com/TFMV/cachewatch/pkg/repositories/archive"
	"github.com/TFMV/cachewatch/pkg/repositories/flight"
	"github.com/TFMV/cachewatch/pkg/repositories/liquidcache"
	"github.com/TFMV/cachewatch/pkg/services"
)

// NewService builds the dashboard service described by cfg: the cache
// server client factory, the plan decoder and, when enabled, the plan archive
// and the Flight probe.
func NewService(ctx context.Context, cfg *config.Config, logger zerolog.Logger, collector metrics.Collector, opts ...services.Option) (services.DashboardService, error) {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	factory := liquidcache.NewFactory(httpClient, logger.With().Str("component", "liquidcache").Logger())
	decoder := converter.New(logger.With().Str("component", "converter").Logger())

	if cfg.Archive.Enabled {
		archiveLogger := logger.With().Str("component", "archive").Logger()
		p, err := pool.New(pool.Config{
			Driver:            cfg.Archive.Driver,
			DSN:               cfg.Archive.DSN,
			ConnectionTimeout: cfg.RequestTimeout,
		}, archiveLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open plan archive: %w", err)
		}
		repo, err := archive.New(ctx, p, archiveLogger)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to prepare plan archive: %w", err)
		}
		opts = append(opts, services.WithArchive(repo))
	}

	if cfg.Flight.Enabled {
		probe, err := flight.NewProbe(cfg.Flight.Address, cfg.Flight.Timeout, logger.With().Str("component", "flight").Logger())
		if err != nil {
			return nil, fmt.Errorf("failed to create flight probe: %w", err)
		}
		opts = append(opts, services.WithFlightProbe(probe))
	}

	svcLogger := newLogger(logger, "dashboard")
	return services.NewDashboardService(factory, decoder, services.DashboardConfig{
		DefaultHost:      cfg.ServerAddress,
		DefaultTracePath: cfg.TracePath,
		DefaultStatsPath: cfg.StatsPath,
		Sessions: cache.DefaultConfig().
			WithMaxEntries(cfg.Sessions.MaxEntries).
			WithTTL(cfg.Sessions.TTL),
		NotificationTTLs: services.NotificationTTLs{
			Success: cfg.Notifications.Success,
			Error:   cfg.Notifications.Error,
			Info:    cfg.Notifications.Info,
		},
		NotificationLimit: cfg.Notifications.Limit,
		ArchiveMaxRows:    cfg.Archive.MaxRows,
	}, svcLogger, serviceMetrics{collector}, opts...)
}

// Server serves the dashboard and, when enabled, the metrics endpoint.
type Server struct {
	config  *config.Config
	logger  zerolog.Logger
	service services.DashboardService

	httpServer    *http.Server
	metricsServer *metrics.MetricsServer

	mu       sync.Mutex
	listener net.Listener
}

// New creates a dashboard server around service.
func New(cfg *config.Config, service services.DashboardService, logger zerolog.Logger, collector metrics.Collector, metricsServer *metrics.MetricsServer) *Server {
	handlerLogger := newLogger(logger, "handlers")
	handler := handlers.NewDashboardHandler(service, handlers.Config{
		RequestTimeout: cfg.RequestTimeout,
		TracePath:      cfg.TracePath,
		StatsPath:      cfg.StatsPath,
		CORSOrigins:    cfg.CORSOrigins,
		FlightAddress:  flightAddress(cfg),
	}, handlerLogger, collector)

	httpLogger := logger.With().Str("component", "http").Logger()
	root := Chain(handler.Routes(),
		middleware.NewRecoveryMiddleware(httpLogger).Handler,
		middleware.NewLoggingMiddleware(httpLogger).Handler,
		middleware.NewMetricsMiddleware(middlewareMetrics{collector}).Handler,
		middleware.NewAuthMiddleware(cfg.Auth, httpLogger).Handler,
	)

	return &Server{
		config:  cfg,
		logger:  logger,
		service: service,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
		},
		metricsServer: metricsServer,
	}
}

// Chain wraps h so that the first middleware is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func flightAddress(cfg *config.Config) string {
	if !cfg.Flight.Enabled {
		return ""
	}
	return cfg.Flight.Address
}

// Handler returns the fully wrapped dashboard handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the address the dashboard listens on once Start has bound it.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.config.Address
	}
	return s.listener.Addr().String()
}

// Start serves the dashboard until Shutdown is called or a server fails.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	errCh := make(chan error, 2)

	if s.metricsServer != nil {
		go func() {
			s.logger.Info().Str("address", s.config.Metrics.Address).Msg("Starting metrics server")
			if err := s.metricsServer.Start(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info().
			Str("address", listener.Addr().String()).
			Str("server", s.config.ServerAddress).
			Msg("Dashboard listening")
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("dashboard server: %w", err)
			return
		}
		errCh <- nil
	}()

	return <-errCh
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// the service.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down dashboard")

	var firstErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("failed to shut down dashboard: %w", err)
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to shut down metrics server: %w", err)
		}
	}
	if err := s.service.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close dashboard service: %w", err)
	}
	return firstErr
}
