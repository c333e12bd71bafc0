// internal/dialect/dialect.go
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Annany2002/dataspace-backend/internal/errs"
	"github.com/Annany2002/dataspace-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// Dialect is the explicit tag of a supported database kind.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Vertica  Dialect = "vertica"
	Postgres Dialect = "postgres"
)

// Parse converts a client supplied db_type into a Dialect.
func Parse(tag string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "mysql":
		return MySQL, nil
	case "vertica":
		return Vertica, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return "", errs.UnsupportedDialect(tag)
	}
}

// Params are the structured connection parameters. They are never persisted.
type Params struct {
	Dialect  Dialect
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Timeout bounds the dial; zero means the driver default.
	Timeout time.Duration
}

// Adapter hides the syntax and catalog differences between database kinds.
type Adapter interface {
	Dialect() Dialect
	DriverName() string
	DefaultPort() int
	// DSN builds the driver connection string from structured fields.
	DSN(p Params) (string, error)
	ListTables(ctx context.Context, db *sql.DB) ([]string, error)
	SelectAllQuery(table string) (string, error)
	TableExists(ctx context.Context, db *sql.DB, table string) (bool, error)
	DropTableQuery(table string) (string, error)
}

// SelectLimitQuery returns the dialect select for table restricted to limit rows.
func SelectLimitQuery(a Adapter, table string, limit int) (string, error) {
	query, err := a.SelectAllQuery(table)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		return query, nil
	}
	return fmt.Sprintf("%s LIMIT %d", query, limit), nil
}

// Registry resolves a Dialect to its Adapter.
type Registry struct {
	adapters map[Dialect]Adapter
}

// NewRegistry registers the given adapters by their dialect.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Dialect]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Dialect()] = a
	}
	return r
}

// DefaultRegistry holds MySQL, Vertica (with the given TLS mode) and PostgreSQL.
func DefaultRegistry(verticaTLSMode string) *Registry {
	return NewRegistry(NewMySQL(), NewVertica(verticaTLSMode), NewPostgres())
}

// Adapter returns the adapter for d or an UnsupportedDialect error.
func (r *Registry) Adapter(d Dialect) (Adapter, error) {
	a, ok := r.adapters[d]
	if !ok {
		return nil, errs.UnsupportedDialect(string(d))
	}
	return a, nil
}

func resolvePort(p Params, fallback int) int {
	if p.Port > 0 {
		return p.Port
	}
	return fallback
}

func requireHost(p Params) error {
	if strings.TrimSpace(p.Host) == "" {
		return errs.Validation("INVALID_HOST", "Database host is required.")
	}
	return nil
}

// splitQualified splits "schema.table"; a bare name gets defaultSchema.
func splitQualified(name, defaultSchema string) (string, string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return defaultSchema, name
}

// listQualified enumerates schemas, then tables per schema, returning
// "schema.table" names. A schema whose listing fails is logged and skipped;
// if the schemas themselves cannot be listed the result is empty.
func listQualified(ctx context.Context, db *sql.DB, d Dialect, schemaQuery, tableQuery string) ([]string, error) {
	schemas, err := queryStrings(ctx, db, schemaQuery)
	if err != nil {
		customLog.Warnf("Dialect[%s]: failed to fetch schemas: %v", d, err)
		return []string{}, nil
	}

	tables := make([]string, 0)
	for _, schema := range schemas {
		names, err := queryStrings(ctx, db, tableQuery, schema)
		if err != nil {
			customLog.Warnf("Dialect[%s]: failed to query schema '%s': %v", d, schema, err)
			continue
		}
		for _, name := range names {
			tables = append(tables, schema+"."+name)
		}
	}
	customLog.Printf("Dialect[%s]: tables found: %v", d, tables)
	return tables, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func countPositive(ctx context.Context, db *sql.DB, query string, args ...any) (bool, error) {
	var n int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
