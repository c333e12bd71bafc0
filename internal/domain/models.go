// internal/domain/models.go
package domain

import (
	"strings"
	"time"
)

// Account defines the structure for a registered user in the account store
type Account struct {
	UserID       string
	Email        string
	Mobile       string
	Username     string
	PasswordHash string // Never serialized to clients
	TenantDB     string
	CreatedAt    time.Time
}

// UsernameFromEmail returns the local part of an email address.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// Table is a fetched result set: ordered column labels and row values.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Clone returns a deep copy of the column list and row slices.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	cp := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, row := range t.Rows {
		cp.Rows[i] = append([]any(nil), row...)
	}
	return cp
}
