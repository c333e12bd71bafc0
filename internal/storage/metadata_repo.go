// internal/storage/metadata_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"github.com/Annany2002/dataspace-backend/internal/dbx"
	"github.com/Annany2002/dataspace-backend/internal/domain"
)

// Specific errors for account operations
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrMobileExists    = errors.New("mobile already exists")
)

const mysqlDuplicateEntry = 1062

const accountColumns = `user_id, email, mobile, username, password_hash, tenant_db, created_at`

// AccountRepository persists accounts in the metadata database.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository wraps an open metadata handle.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateAccount inserts acct and then runs provision inside the same
// transaction. The insert is rolled back if provision fails, so an account
// exists only once its tenant database does.
func (r *AccountRepository) CreateAccount(ctx context.Context, acct *domain.Account, provision func(ctx context.Context) error) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := insertAccount(ctx, tx, acct); err != nil {
			return err
		}
		if provision == nil {
			return nil
		}
		return provision(ctx)
	})
}

func insertAccount(ctx context.Context, tx dbx.DBTX, acct *domain.Account) error {
	sqlStatement := `INSERT INTO accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, sqlStatement,
		acct.UserID, acct.Email, acct.Mobile, acct.Username, acct.PasswordHash, acct.TenantDB, acct.CreatedAt.UTC())
	if err != nil {
		if dup := duplicateField(err); dup != nil {
			return dup
		}
		customLog.Warnf("Storage: Failed to insert account %s: %v", acct.Email, err)
		return fmt.Errorf("database error during account creation: %w", err)
	}
	return nil
}

// duplicateField maps a uniqueness violation from either driver to the
// matching sentinel, or returns nil.
func duplicateField(err error) error {
	var msg string
	var sqliteErr sqlite3.Error
	var mysqlErr *mysql.MySQLError
	switch {
	case errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		msg = sqliteErr.Error()
	case errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry:
		msg = mysqlErr.Message
	default:
		return nil
	}
	switch {
	case strings.Contains(msg, "email"):
		return ErrEmailExists
	case strings.Contains(msg, "mobile"):
		return ErrMobileExists
	}
	return fmt.Errorf("unique constraint violated: %s", msg)
}

func (r *AccountRepository) findOne(ctx context.Context, column, value string) (*domain.Account, error) {
	// column is one of the fixed names passed by the finders below
	sqlStatement := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + column + ` = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, sqlStatement, value)

	var acct domain.Account
	err := row.Scan(&acct.UserID, &acct.Email, &acct.Mobile, &acct.Username, &acct.PasswordHash, &acct.TenantDB, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		customLog.Warnf("Storage: Failed to find account by %s %s: %v", column, value, err)
		return nil, fmt.Errorf("database error finding account: %w", err)
	}
	return &acct, nil
}

// FindByEmail retrieves an account by its email address.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, "email", email)
}

// FindByMobile retrieves an account by its mobile number.
func (r *AccountRepository) FindByMobile(ctx context.Context, mobile string) (*domain.Account, error) {
	return r.findOne(ctx, "mobile", mobile)
}

// FindByID retrieves an account by user id.
func (r *AccountRepository) FindByID(ctx context.Context, userID string) (*domain.Account, error) {
	return r.findOne(ctx, "user_id", userID)
}

// FindByLogin resolves a login identifier: anything containing '@' is an
// email, everything else a mobile number.
func (r *AccountRepository) FindByLogin(ctx context.Context, login string) (*domain.Account, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return r.FindByEmail(ctx, strings.ToLower(login))
	}
	return r.FindByMobile(ctx, login)
}

func (r *AccountRepository) exists(ctx context.Context, column, value string) (bool, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE `+column+` = ?`, value).Scan(&n)
	if err != nil {
		customLog.Warnf("Storage: Failed to check %s existence: %v", column, err)
		return false, fmt.Errorf("database error checking %s: %w", column, err)
	}
	return n > 0, nil
}

// EmailExists reports whether an account uses email.
func (r *AccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", email)
}

// MobileExists reports whether an account uses mobile.
func (r *AccountRepository) MobileExists(ctx context.Context, mobile string) (bool, error) {
	return r.exists(ctx, "mobile", mobile)
}

// UpdatePasswordHash overwrites the stored credential hash for email.
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE accounts SET password_hash = ? WHERE email = ?`, hash, email)
	if err != nil {
		customLog.Warnf("Storage: Failed to update password for %s: %v", email, err)
		return fmt.Errorf("database error during password update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm password update: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
