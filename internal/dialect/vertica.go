// internal/dialect/vertica.go
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/vertica/vertica-sql-go" // Driver registration

	"github.com/Annany2002/dataspace-backend/internal/core"
	"github.com/Annany2002/dataspace-backend/internal/errs"
)

const (
	verticaDefaultPort = 5433
	// Deployments without TLS-capable servers are the norm, so TLS is opt-in.
	VerticaDefaultTLSMode = "none"
)

// VerticaAdapter returns schema-qualified names and selects them unquoted.
type VerticaAdapter struct {
	tlsMode string
}

// NewVertica creates the adapter; an empty tlsMode means "none".
func NewVertica(tlsMode string) *VerticaAdapter {
	if tlsMode == "" {
		tlsMode = VerticaDefaultTLSMode
	}
	return &VerticaAdapter{tlsMode: tlsMode}
}

func (a *VerticaAdapter) Dialect() Dialect   { return Vertica }
func (a *VerticaAdapter) DriverName() string { return "vertica" }
func (a *VerticaAdapter) DefaultPort() int   { return verticaDefaultPort }

func (a *VerticaAdapter) DSN(p Params) (string, error) {
	if err := requireHost(p); err != nil {
		return "", err
	}
	query := url.Values{}
	query.Set("tlsmode", a.tlsMode)

	u := url.URL{
		Scheme:   "vertica",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(resolvePort(p, verticaDefaultPort))),
		Path:     "/" + p.Database,
		RawQuery: query.Encode(),
	}
	return u.String(), nil
}

func (a *VerticaAdapter) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	return listQualified(ctx, db, Vertica,
		`SELECT schema_name FROM v_catalog.schemata WHERE is_system_schema = false ORDER BY schema_name`,
		`SELECT table_name FROM v_catalog.tables WHERE table_schema = ? AND is_system_table = false ORDER BY table_name`,
	)
}

func (a *VerticaAdapter) checked(table string) (string, error) {
	if !core.IsValidQualifiedIdentifier(table) {
		return "", errs.Validation("INVALID_TABLE_NAME", fmt.Sprintf("Invalid table name '%s'.", table))
	}
	return table, nil
}

// SelectAllQuery does not quote: names are already "schema.table".
func (a *VerticaAdapter) SelectAllQuery(table string) (string, error) {
	t, err := a.checked(table)
	if err != nil {
		return "", err
	}
	return "SELECT * FROM " + t, nil
}

func (a *VerticaAdapter) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	schema, name := splitQualified(table, "public")
	return countPositive(ctx, db,
		`SELECT COUNT(*) FROM v_catalog.tables WHERE table_schema = ? AND table_name = ?`, schema, name)
}

func (a *VerticaAdapter) DropTableQuery(table string) (string, error) {
	t, err := a.checked(table)
	if err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + t, nil
}
