// Package pool opens and guards the database behind the plan archive.
package pool

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/TFMV/cachewatch/pkg/errors"
)

// Supported database/sql driver names.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

const memoryDSN = ":memory:"

// Config represents pool configuration.
type Config struct {
	Driver             string        `json:"driver"`
	DSN                string        `json:"dsn"`
	MaxOpenConnections int           `json:"max_open_connections"`
	ConnMaxIdleTime    time.Duration `json:"conn_max_idle_time"`
	ConnectionTimeout  time.Duration `json:"connection_timeout"`
	// BusyTimeout is how long SQLite waits on a locked database file.
	BusyTimeout time.Duration `json:"busy_timeout"`
}

// ConnectionPool hands out the archive database.
type ConnectionPool interface {
	// Get returns the database once it answers a ping.
	Get(ctx context.Context) (*sql.DB, error)
	// Driver returns the database/sql driver name in use.
	Driver() string
	Stats() Stats
	// HealthCheck runs a trivial query against the database.
	HealthCheck(ctx context.Context) error
	Close() error
}

// Stats describes the pool for the health endpoint and logs.
type Stats struct {
	Driver          string    `json:"driver"`
	OpenConnections int       `json:"open_connections"`
	InUse           int       `json:"in_use"`
	Idle            int       `json:"idle"`
	Healthy         bool      `json:"healthy"`
	LastHealthCheck time.Time `json:"last_health_check"`
}

type connectionPool struct {
	db     *sql.DB
	config Config
	logger zerolog.Logger

	closed    atomic.Bool
	healthy   atomic.Bool
	lastCheck atomic.Int64
}

// New opens the archive database and checks that it answers.
func New(cfg Config, logger zerolog.Logger) (ConnectionPool, error) {
	switch cfg.Driver {
	case "":
		cfg.Driver = DriverDuckDB
	case DriverDuckDB, DriverSQLite:
	default:
		return nil, errors.New(errors.CodeInvalidRequest, "unsupported archive driver").
			WithDetail("driver", cfg.Driver)
	}
	if cfg.DSN == "" {
		cfg.DSN = memoryDSN
	}
	if cfg.MaxOpenConnections <= 0 {
		cfg.MaxOpenConnections = 4
	}
	// SQLite has a single writer, and each connection to ":memory:" opens
	// a database of its own.
	if cfg.Driver == DriverSQLite {
		cfg.MaxOpenConnections = 1
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 10 * time.Minute
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	logger.Info().
		Str("driver", cfg.Driver).
		Str("dsn", redactDSN(cfg.DSN)).
		Int("max_open", cfg.MaxOpenConnections).
		Msg("Opening plan archive database")

	dsn := cfg.DSN
	if cfg.Driver == DriverDuckDB && dsn == memoryDSN {
		dsn = ""
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to open database")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxOpenConnections)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	p := &connectionPool{db: db, config: cfg, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	if err := p.configure(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := p.HealthCheck(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeUnavailable, "initial health check failed")
	}
	return p, nil
}

// configure applies per-driver session settings.
func (p *connectionPool) configure(ctx context.Context) error {
	if p.config.Driver != DriverSQLite {
		return nil
	}
	pragmas := []string{
		"PRAGMA busy_timeout = " + strconv.FormatInt(p.config.BusyTimeout.Milliseconds(), 10),
		"PRAGMA foreign_keys = ON",
	}
	if p.config.DSN != memoryDSN {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := p.db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to configure sqlite").
				WithDetail("pragma", pragma)
		}
	}
	return nil
}

func (p *connectionPool) Get(ctx context.Context) (*sql.DB, error) {
	if p.closed.Load() {
		return nil, errors.New(errors.CodeUnavailable, "connection pool is closed")
	}
	if err := p.db.PingContext(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Archive database ping failed")
		return nil, errors.Wrap(err, errors.CodeUnavailable, "database connection failed")
	}
	return p.db, nil
}

func (p *connectionPool) Driver() string {
	return p.config.Driver
}

func (p *connectionPool) Stats() Stats {
	db := p.db.Stats()
	s := Stats{
		Driver:          p.config.Driver,
		OpenConnections: db.OpenConnections,
		InUse:           db.InUse,
		Idle:            db.Idle,
		Healthy:         p.healthy.Load(),
	}
	if last := p.lastCheck.Load(); last > 0 {
		s.LastHealthCheck = time.Unix(0, last)
	}
	return s
}

func (p *connectionPool) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return errors.New(errors.CodeUnavailable, "connection pool is closed")
	}
	p.lastCheck.Store(time.Now().UnixNano())

	var one int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		if p.healthy.Swap(false) {
			p.logger.Warn().Err(err).Msg("Archive database became unhealthy")
		}
		return errors.Wrap(err, errors.CodeUnavailable, "health check query failed")
	}
	p.healthy.Store(true)
	return nil
}

// Close closes the database. Further calls are no-ops.
func (p *connectionPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.logger.Info().Str("driver", p.config.Driver).Msg("Closing plan archive database")
	if err := p.db.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to close database")
	}
	return nil
}

// redactDSN drops the query string of a DSN, where drivers take tokens.
func redactDSN(dsn string) string {
	if before, _, ok := strings.Cut(dsn, "?"); ok {
		return before + "?..."
	}
	return dsn
}
