// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Annany2002/dataspace-backend/api" // Import router setup
	"github.com/Annany2002/dataspace-backend/api/handlers"
	"github.com/Annany2002/dataspace-backend/config" // Import config loading
	"github.com/Annany2002/dataspace-backend/internal/auth"
	"github.com/Annany2002/dataspace-backend/internal/catalog"
	"github.com/Annany2002/dataspace-backend/internal/connection"
	"github.com/Annany2002/dataspace-backend/internal/dialect"
	"github.com/Annany2002/dataspace-backend/internal/logger"
	"github.com/Annany2002/dataspace-backend/internal/mailer"
	"github.com/Annany2002/dataspace-backend/internal/otp"
	"github.com/Annany2002/dataspace-backend/internal/session"
	"github.com/Annany2002/dataspace-backend/internal/storage" // Import DB connection func
	"github.com/Annany2002/dataspace-backend/internal/tenant"
)

var (
	customLog = logger.NewLogger()
)

const shutdownTimeout = 10 * time.Second

func main() {
	customLog.Println("Starting Dataspace Backend server...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		customLog.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Administrative connection to the server hosting tenant databases
	manager := connection.NewManager(dialect.DefaultRegistry(cfg.VerticaTLSMode), cfg.ConnectTimeout)
	adminParams := dialect.Params{
		Dialect:  dialect.MySQL,
		Host:     cfg.MySQLHost,
		Port:     cfg.MySQLPort,
		User:     cfg.MySQLUser,
		Password: cfg.MySQLPassword,
		Timeout:  cfg.ConnectTimeout,
	}
	admin, err := manager.Connect(ctx, adminParams)
	if err != nil {
		customLog.Fatalf("Failed to connect to tenant database server: %v", err)
	}
	defer admin.Close()
	provisioner := tenant.NewProvisioner(admin.DB)

	if cfg.MetadataDriver == "mysql" {
		if err := provisioner.Ensure(ctx, cfg.MySQLDatabase); err != nil {
			customLog.Fatalf("Failed to create account database: %v", err)
		}
	}

	// 3. Initialize Metadata Database Connection
	metaDB, err := storage.ConnectMetadataDB(ctx, cfg)
	if err != nil {
		customLog.Fatalf("Failed to initialize metadata database: %v", err)
	}
	defer func() {
		customLog.Println("Closing metadata database connection...")
		if err := metaDB.Close(); err != nil {
			customLog.Printf("Error closing metadata database: %v", err)
		}
	}()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.JWTExpiration)
	if err != nil {
		customLog.Fatalf("Failed to configure tokens: %v", err)
	}

	var mail otp.Mailer = mailer.LogMailer{}
	if cfg.SMTPServer != "" {
		mail = mailer.NewSMTPMailer(cfg.SMTPServer, cfg.SMTPPort, cfg.EmailFrom, cfg.EmailPassword)
	} else {
		customLog.Warnf("SMTP_SERVER not set, passcodes will be written to the log")
	}

	accounts := storage.NewAccountRepository(metaDB)
	gate := otp.NewService(accounts, provisioner, mail, tokens, otp.Config{ResetMaxPerHour: cfg.ResetMaxPerHour})
	sessions := session.NewStore()

	go gate.Run(ctx, cfg.SweepInterval)
	go sessions.Run(ctx, cfg.SweepInterval, cfg.SessionIdle)

	// 4. Setup Router (passing dependencies)
	router := api.SetupRouter(cfg, &api.Services{
		OTP:      gate,
		Accounts: accounts,
		Tokens:   tokens,
		Sessions: sessions,
		Tenants: &handlers.TenantAccess{
			Connector: manager,
			Catalog:   catalog.New(catalog.DefaultCleaner, cfg.QueryTimeout),
			Admin:     adminParams,
			BaseCtx:   ctx,
		},
	})

	// 5. Start Server
	srv := &http.Server{Addr: listenAddr(cfg.ServerPort), Handler: router}
	go func() {
		customLog.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			customLog.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	customLog.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		customLog.Errorf("Server shutdown failed: %v", err)
	}
	sessions.ClearAll()
}

func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
