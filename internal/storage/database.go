// internal/storage/database.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3" // Driver registration
	"github.com/pressly/goose/v3"

	"github.com/Annany2002/dataspace-backend/config"
	"github.com/Annany2002/dataspace-backend/internal/logger"
	"github.com/Annany2002/dataspace-backend/internal/storage/migrations"
)

var (
	customLog = logger.NewLogger()
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// ConnectMetadataDB opens the account store selected by METADATA_DRIVER and
// applies the embedded migrations.
func ConnectMetadataDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	driver, dsn, err := metadataDSN(cfg)
	if err != nil {
		return nil, err
	}
	customLog.Printf("Storage: Initializing account store (%s)", driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		customLog.Warnf("Storage: Failed to open account store: %v", err)
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}

	// Verify connection is working
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to ping account store: %v", err)
		return nil, fmt.Errorf("failed to connect to account store: %w", err)
	}
	customLog.Println("Storage: Account store connection successful.")

	if err := RunMigrations(ctx, db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations applies the embedded goose migrations for the given driver.
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(driver); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		customLog.Errorf("Storage: Migrations failed: %v", err)
		return fmt.Errorf("failed to migrate account store: %w", err)
	}
	customLog.Println("Storage: Accounts table ensured.")
	return nil
}

func metadataDSN(cfg *config.Config) (string, string, error) {
	switch cfg.MetadataDriver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = cfg.MySQLUser
		mc.Passwd = cfg.MySQLPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.MySQLHost, strconv.Itoa(cfg.MySQLPort))
		mc.DBName = cfg.MySQLDatabase
		mc.ParseTime = true
		return "mysql", mc.FormatDSN(), nil
	case "sqlite3", "":
		// Ensure the data directory exists
		if err := os.MkdirAll(cfg.MetadataDbDir, 0o750); err != nil {
			customLog.Warnf("Storage: Error creating data directory '%s': %v", cfg.MetadataDbDir, err)
			return "", "", fmt.Errorf("failed to create data directory: %w", err)
		}
		dbPath := filepath.Join(cfg.MetadataDbDir, cfg.MetadataDbFile)
		// WAL mode and a 5s busy timeout for concurrent writers
		return "sqlite3", dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", nil
	default:
		return "", "", fmt.Errorf("unsupported metadata driver '%s'", cfg.MetadataDriver)
	}
}
