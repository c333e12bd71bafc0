// internal/catalog/catalog.go
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Annany2002/dataspace-backend/internal/connection"
	"github.com/Annany2002/dataspace-backend/internal/dialect"
	"github.com/Annany2002/dataspace-backend/internal/domain"
	"github.com/Annany2002/dataspace-backend/internal/errs"
	"github.com/Annany2002/dataspace-backend/internal/logger"
	"github.com/Annany2002/dataspace-backend/internal/metrics"
	"github.com/Annany2002/dataspace-backend/internal/session"
)

var (
	customLog = logger.NewLogger()
)

const (
	DefaultQueryTimeout = 60 * time.Second
	DefaultParallelism  = 4
	// DefaultPreviewLimit bounds the rows fetched per table by LoadWithPreview.
	DefaultPreviewLimit = 20
)

// Loaded is the outcome of loading one table. Exactly one of Err and the
// table fields is set.
type Loaded struct {
	Name     string
	Working  *domain.Table
	Original *domain.Table
	Preview  any
	Err      error
}

// TablePreview is one entry of a LoadWithPreview result.
type TablePreview struct {
	Name    string
	Records []map[string]any
}

// PreviewResult is what LoadWithPreview returns.
type PreviewResult struct {
	Tables  []TablePreview
	Handles []session.TableHandle
	Elapsed time.Duration
}

// Connector opens engines; *connection.Manager satisfies it.
type Connector interface {
	Connect(ctx context.Context, p dialect.Params) (*connection.Engine, error)
}

// Catalog lists, loads, previews and drops tables through an engine.
type Catalog struct {
	clean        Cleaner
	queryTimeout time.Duration
	parallel     int
	now          func() time.Time
}

// New creates a catalog. A nil cleaner means DefaultCleaner and a
// non-positive timeout means DefaultQueryTimeout.
func New(clean Cleaner, queryTimeout time.Duration) *Catalog {
	if clean == nil {
		clean = DefaultCleaner
	}
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &Catalog{clean: clean, queryTimeout: queryTimeout, parallel: DefaultParallelism, now: time.Now}
}

// WithParallelism sets how many tables are fetched at once.
func (c *Catalog) WithParallelism(n int) *Catalog {
	if n > 0 {
		c.parallel = n
	}
	return c
}

// ListTables returns the table identifiers visible through engine.
func (c *Catalog) ListTables(ctx context.Context, engine *connection.Engine) ([]string, error) {
	if engine == nil {
		return nil, errNoEngine()
	}
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	tables, err := engine.Adapter.ListTables(ctx, engine.DB)
	if err != nil {
		return nil, errs.Internal("TABLE_LIST_FAILED", "Failed to list tables.", err)
	}
	return tables, nil
}

// LoadTables fetches every named table in full. A failing table does not
// affect the others; results follow the order of names.
func (c *Catalog) LoadTables(ctx context.Context, engine *connection.Engine, names []string) ([]Loaded, error) {
	if engine == nil {
		return nil, errNoEngine()
	}
	customLog.Printf("Catalog[%s]: loading tables %v", engine.Dialect(), names)

	results := make([]Loaded, len(names))
	var g errgroup.Group
	g.SetLimit(c.parallel)
	for i, name := range names {
		g.Go(func() error {
			results[i] = c.loadOne(ctx, engine, name, 0)
			if results[i].Err == nil {
				results[i].Preview = Preview(results[i].Working)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// loadOne fetches name (limited to limit rows when limit > 0) and cleans it.
func (c *Catalog) loadOne(ctx context.Context, engine *connection.Engine, name string, limit int) Loaded {
	start := c.now()
	d := string(engine.Dialect())

	query, err := dialect.SelectLimitQuery(engine.Adapter, name, limit)
	if err != nil {
		metrics.ObserveTableLoad(d, false, c.now().Sub(start))
		return Loaded{Name: name, Err: err}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	original, err := fetchTable(fetchCtx, engine.DB, query)
	metrics.ObserveTableLoad(d, err == nil, c.now().Sub(start))
	if err != nil {
		customLog.Warnf("Catalog[%s]: error fetching table '%s': %v", d, name, err)
		return Loaded{Name: name, Err: err}
	}
	customLog.Printf("Catalog[%s]: fetched table '%s' with %d rows, %d columns", d, name, len(original.Rows), len(original.Columns))

	return Loaded{Name: name, Working: c.clean(original.Clone()), Original: original}
}

// Handles returns the session handles of the successfully loaded tables.
func Handles(loaded []Loaded) []session.TableHandle {
	handles := make([]session.TableHandle, 0, len(loaded))
	for _, l := range loaded {
		if l.Err != nil {
			continue
		}
		handles = append(handles, session.TableHandle{Name: l.Name, Working: l.Working, Original: l.Original})
	}
	return handles
}

// LoadWithPreview lists every table and fetches its first limit rows.
// Tables that fail to load are logged and left out.
func (c *Catalog) LoadWithPreview(ctx context.Context, engine *connection.Engine, limit int) (*PreviewResult, error) {
	start := c.now()
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	names, err := c.ListTables(ctx, engine)
	if err != nil {
		return nil, err
	}

	loaded := make([]Loaded, len(names))
	var g errgroup.Group
	g.SetLimit(c.parallel)
	for i, name := range names {
		g.Go(func() error {
			loaded[i] = c.loadOne(ctx, engine, name, limit)
			return nil
		})
	}
	_ = g.Wait()

	res := &PreviewResult{Tables: make([]TablePreview, 0, len(loaded))}
	for _, l := range loaded {
		if l.Err != nil {
			continue
		}
		res.Tables = append(res.Tables, TablePreview{Name: l.Name, Records: Records(l.Working, 0)})
	}
	res.Handles = Handles(loaded)
	res.Elapsed = c.now().Sub(start)
	customLog.Printf("Catalog[%s]: preview load of %d tables completed in %.2fs", engine.Dialect(), len(res.Tables), res.Elapsed.Seconds())
	return res, nil
}

// DeleteTable drops name from engine's database and forgets it in state.
func (c *Catalog) DeleteTable(ctx context.Context, engine *connection.Engine, state *session.State, name string) error {
	if engine == nil {
		return errNoEngine()
	}
	query, err := engine.Adapter.DropTableQuery(name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	exists, err := engine.Adapter.TableExists(ctx, engine.DB, name)
	if err != nil {
		customLog.Errorf("Catalog: error checking table existence for '%s': %v", name, err)
		return errs.Internal("TABLE_CHECK_FAILED", "Error checking table existence.", err)
	}
	if !exists {
		return errs.NotFound("TABLE_NOT_FOUND", "Table not found in database.")
	}

	if _, err := engine.DB.ExecContext(ctx, query); err != nil {
		customLog.Errorf("Catalog: failed to delete table '%s': %v", name, err)
		return errs.Internal("TABLE_DELETE_FAILED", "Failed to delete table.", err)
	}
	if state != nil {
		state.RemoveTable(name)
	}
	customLog.Printf("Catalog: table '%s' deleted", name)
	return nil
}

// Disconnect disposes the session's engine and clears its tables. It never fails.
func (c *Catalog) Disconnect(state *session.State) {
	if state != nil {
		state.Disconnect()
	}
}

// PreloadFunc returns a job that connects with p and loads every table.
// Per-table failures are logged; only a failed connect or listing fails the job.
func (c *Catalog) PreloadFunc(conn Connector, p dialect.Params) session.PreloadFunc {
	return func(ctx context.Context) (*connection.Engine, []session.TableHandle, error) {
		engine, err := conn.Connect(ctx, p)
		if err != nil {
			return nil, nil, fmt.Errorf("preload connect: %w", err)
		}
		names, err := c.ListTables(ctx, engine)
		if err != nil {
			_ = engine.Close()
			return nil, nil, fmt.Errorf("preload list: %w", err)
		}
		loaded, err := c.LoadTables(ctx, engine, names)
		if err != nil {
			_ = engine.Close()
			return nil, nil, err
		}
		return engine, Handles(loaded), nil
	}
}

func errNoEngine() *errs.Error {
	return errs.WithStatus(errs.Validation("NO_DATABASE_CONNECTED", "No personal database connected."), http.StatusBadRequest)
}
