// internal/connection/manager.go
package connection

import (
	"context"
	"database/sql"
	"time"

	"github.com/Annany2002/dataspace-backend/internal/dialect"
	"github.com/Annany2002/dataspace-backend/internal/logger"
	"github.com/Annany2002/dataspace-backend/internal/metrics"
)

var (
	customLog = logger.NewLogger()
)

// DefaultProbeTimeout bounds the liveness probe when none is configured.
const DefaultProbeTimeout = 10 * time.Second

// OpenFunc opens a driver handle. Tests substitute a sqlmock opener.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Engine is an opened, probed connection pool bound to one adapter.
type Engine struct {
	DB      *sql.DB
	Adapter dialect.Adapter
	Params  dialect.Params
}

// Dialect returns the dialect the engine speaks.
func (e *Engine) Dialect() dialect.Dialect {
	return e.Adapter.Dialect()
}

// Close releases the underlying pool. Safe on a nil engine.
func (e *Engine) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

// Manager opens engines for any registered dialect.
type Manager struct {
	registry     *dialect.Registry
	open         OpenFunc
	probeTimeout time.Duration
}

// NewManager creates a Manager. A zero probeTimeout uses DefaultProbeTimeout.
func NewManager(registry *dialect.Registry, probeTimeout time.Duration) *Manager {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Manager{registry: registry, open: sql.Open, probeTimeout: probeTimeout}
}

// WithOpener replaces the driver opener and returns the manager.
func (m *Manager) WithOpener(open OpenFunc) *Manager {
	m.open = open
	return m
}

// Registry exposes the adapter registry.
func (m *Manager) Registry() *dialect.Registry {
	return m.registry
}

// Connect opens a pool for p, probes it with a ping and "SELECT 1" under the
// probe timeout, and returns the engine. Failures are classified and the pool
// is closed before returning.
func (m *Manager) Connect(ctx context.Context, p dialect.Params) (*Engine, error) {
	adapter, err := m.registry.Adapter(p.Dialect)
	if err != nil {
		return nil, err
	}
	if p.Timeout <= 0 {
		p.Timeout = m.probeTimeout
	}

	dsn, err := adapter.DSN(p)
	if err != nil {
		return nil, err
	}

	db, err := m.open(adapter.DriverName(), dsn)
	if err != nil {
		customLog.Warnf("Connection[%s]: failed to open %s:%d: %v", p.Dialect, p.Host, p.Port, err)
		metrics.ObserveConnect(string(p.Dialect), "open_failed")
		return nil, dialect.Classify(p.Dialect, err)
	}

	if err := m.probe(ctx, db); err != nil {
		db.Close()
		classified := dialect.Classify(p.Dialect, err)
		customLog.Warnf("Connection[%s]: probe to %s failed (%s): %v", p.Dialect, p.Host, classified.Category, err)
		metrics.ObserveConnect(string(p.Dialect), string(classified.Category))
		return nil, classified
	}

	customLog.Printf("Connection[%s]: connected to %s, database '%s'", p.Dialect, p.Host, p.Database)
	metrics.ObserveConnect(string(p.Dialect), "ok")
	return &Engine{DB: db, Adapter: adapter, Params: p}, nil
}

func (m *Manager) probe(ctx context.Context, db *sql.DB) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	if err := db.PingContext(probeCtx); err != nil {
		return err
	}
	var one int
	return db.QueryRowContext(probeCtx, "SELECT 1").Scan(&one)
}
