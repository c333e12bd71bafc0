// internal/tenant/provisioner.go
package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Annany2002/dataspace-backend/internal/dialect"
	"github.com/Annany2002/dataspace-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// NameFor derives the tenant database name from an email. It is a pure
// function, so a given email always maps to the same database.
func NameFor(identifier string) string {
	name := strings.ToLower(strings.TrimSpace(identifier))
	name = strings.ReplaceAll(name, "@", "_at_")
	name = strings.ReplaceAll(name, ".", "_dot_")
	return name + "_db"
}

// Provisioner creates tenant databases through an administrative connection
// that is not scoped to any database.
type Provisioner struct {
	admin *sql.DB
}

// NewProvisioner wraps the administrative handle.
func NewProvisioner(admin *sql.DB) *Provisioner {
	return &Provisioner{admin: admin}
}

// Ensure creates the database if it does not exist. Calling it repeatedly is a no-op.
func (p *Provisioner) Ensure(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("tenant database name is empty")
	}
	stmt := "CREATE DATABASE IF NOT EXISTS " + dialect.QuoteIdentifier(name)
	if _, err := p.admin.ExecContext(ctx, stmt); err != nil {
		customLog.Errorf("Tenant: failed to create database '%s': %v", name, err)
		return fmt.Errorf("failed to create tenant database: %w", err)
	}
	customLog.Printf("Tenant: database '%s' ensured", name)
	return nil
}

// Exists reports whether the database is present on the server.
func (p *Provisioner) Exists(ctx context.Context, name string) (bool, error) {
	var n int64
	err := p.admin.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?`, name).Scan(&n)
	if err != nil {
		customLog.Warnf("Tenant: failed to look up database '%s': %v", name, err)
		return false, fmt.Errorf("failed to look up tenant database: %w", err)
	}
	return n > 0, nil
}
