// internal/dialect/postgres.go
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib" // Driver registration ("pgx")

	"github.com/Annany2002/dataspace-backend/internal/core"
	"github.com/Annany2002/dataspace-backend/internal/errs"
)

const postgresDefaultPort = 5432

// PostgresAdapter follows the generic fallback: qualified names, no quoting.
type PostgresAdapter struct{}

func NewPostgres() *PostgresAdapter { return &PostgresAdapter{} }

func (a *PostgresAdapter) Dialect() Dialect   { return Postgres }
func (a *PostgresAdapter) DriverName() string { return "pgx" }
func (a *PostgresAdapter) DefaultPort() int   { return postgresDefaultPort }

func (a *PostgresAdapter) DSN(p Params) (string, error) {
	if err := requireHost(p); err != nil {
		return "", err
	}
	query := url.Values{}
	query.Set("sslmode", "prefer")
	if p.Timeout > 0 {
		// connect_timeout is whole seconds and 0 means no limit.
		query.Set("connect_timeout", strconv.Itoa(max(1, int(math.Ceil(p.Timeout.Seconds())))))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(resolvePort(p, postgresDefaultPort))),
		Path:     "/" + p.Database,
		RawQuery: query.Encode(),
	}
	return u.String(), nil
}

func (a *PostgresAdapter) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	return listQualified(ctx, db, Postgres,
		`SELECT schema_name FROM information_schema.schemata
		 WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		   AND schema_name NOT LIKE 'pg_toast%' AND schema_name NOT LIKE 'pg_temp%'
		 ORDER BY schema_name`,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`,
	)
}

func (a *PostgresAdapter) checked(table string) (string, error) {
	if !core.IsValidQualifiedIdentifier(table) {
		return "", errs.Validation("INVALID_TABLE_NAME", fmt.Sprintf("Invalid table name '%s'.", table))
	}
	return table, nil
}

func (a *PostgresAdapter) SelectAllQuery(table string) (string, error) {
	t, err := a.checked(table)
	if err != nil {
		return "", err
	}
	return "SELECT * FROM " + t, nil
}

func (a *PostgresAdapter) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	schema, name := splitQualified(table, "public")
	return countPositive(ctx, db,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2`, schema, name)
}

func (a *PostgresAdapter) DropTableQuery(table string) (string, error) {
	t, err := a.checked(table)
	if err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + t, nil
}
