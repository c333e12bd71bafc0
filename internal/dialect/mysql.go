// internal/dialect/mysql.go
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/Annany2002/dataspace-backend/internal/core"
	"github.com/Annany2002/dataspace-backend/internal/errs"
)

const mysqlDefaultPort = 3306

// MySQLAdapter lists bare table names of the connected schema and quotes
// identifiers with backticks.
type MySQLAdapter struct{}

func NewMySQL() *MySQLAdapter { return &MySQLAdapter{} }

func (a *MySQLAdapter) Dialect() Dialect   { return MySQL }
func (a *MySQLAdapter) DriverName() string { return "mysql" }
func (a *MySQLAdapter) DefaultPort() int   { return mysqlDefaultPort }

// DSN uses mysql.Config so reserved characters in credentials stay intact.
// An empty Database yields a server-level connection.
func (a *MySQLAdapter) DSN(p Params) (string, error) {
	if err := requireHost(p); err != nil {
		return "", err
	}
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(resolvePort(p, mysqlDefaultPort)))
	cfg.DBName = p.Database
	cfg.ParseTime = true
	if p.Timeout > 0 {
		cfg.Timeout = p.Timeout
	}
	return cfg.FormatDSN(), nil
}

func (a *MySQLAdapter) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	tables, err := queryStrings(ctx, db,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME`)
	if err != nil {
		customLog.Warnf("Dialect[mysql]: failed to list tables: %v", err)
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	customLog.Printf("Dialect[mysql]: tables found: %v", tables)
	return tables, nil
}

// QuoteIdentifier wraps name in backticks, doubling embedded backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (a *MySQLAdapter) quoted(table string) (string, error) {
	if !core.IsValidTableName(table) {
		return "", errs.Validation("INVALID_TABLE_NAME", fmt.Sprintf("Invalid table name '%s'.", table))
	}
	return QuoteIdentifier(table), nil
}

func (a *MySQLAdapter) SelectAllQuery(table string) (string, error) {
	q, err := a.quoted(table)
	if err != nil {
		return "", err
	}
	return "SELECT * FROM " + q, nil
}

func (a *MySQLAdapter) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	return countPositive(ctx, db,
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`, table)
}

func (a *MySQLAdapter) DropTableQuery(table string) (string, error) {
	q, err := a.quoted(table)
	if err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + q, nil
}
