// api/router.go
package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Annany2002/dataspace-backend/api/handlers"
	"github.com/Annany2002/dataspace-backend/api/middleware" // Import middleware package
	"github.com/Annany2002/dataspace-backend/config"
	"github.com/Annany2002/dataspace-backend/internal/auth"
	"github.com/Annany2002/dataspace-backend/internal/metrics"
	"github.com/Annany2002/dataspace-backend/internal/otp"
	"github.com/Annany2002/dataspace-backend/internal/ratelimit"
	"github.com/Annany2002/dataspace-backend/internal/session"
	"github.com/Annany2002/dataspace-backend/internal/storage"
)

// Services are the long-lived components the routes are served by.
type Services struct {
	OTP      *otp.Service
	Accounts *storage.AccountRepository
	Tokens   *auth.TokenManager
	Sessions *session.Store
	Tenants  *handlers.TenantAccess
}

// SetupRouter initializes the Gin router and sets up all routes.
func SetupRouter(cfg *config.Config, svc *Services) *gin.Engine {
	router := gin.Default() // Includes Logger and Recovery

	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))
	router.Use(metrics.Middleware())
	// Must wrap every handler, including the auth middleware below.
	router.Use(middleware.ErrorHandler())

	authHandler := handlers.NewAuthHandler(svc.OTP, svc.Accounts, svc.Tokens, svc.Sessions, svc.Tenants)
	dbHandler := handlers.NewDatabaseHandler(svc.Accounts, svc.Sessions, svc.Tenants)

	// --- Public Routes ---
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	public := router.Group("/")
	if cfg.AuthRateLimitPerMinute > 0 {
		public.Use(middleware.RateLimitMiddleware(ratelimit.NewWindow(cfg.AuthRateLimitPerMinute, time.Minute)))
	}
	{
		public.POST("/signup/request_otp", authHandler.SignupRequestOTP)
		public.POST("/signup/verify_otp", authHandler.SignupVerifyOTP)
		public.POST("/login", authHandler.Login)
		public.POST("/forgot/request_otp", authHandler.ForgotRequestOTP)
		public.POST("/forgot/verify_otp", authHandler.ForgotVerifyOTP)
	}

	// --- Protected Routes ---
	protected := router.Group("/")
	protected.Use(middleware.AuthMiddleware(svc.Tokens))
	{
		protected.POST("/logout", authHandler.Logout)
		protected.GET("/preload_status", authHandler.PreloadStatus)

		protected.POST("/connect_db", dbHandler.ConnectDB)
		protected.POST("/load_tables", dbHandler.LoadTables)
		protected.GET("/load_user_tables_with_preview", dbHandler.LoadUserTablesWithPreview)
		protected.DELETE("/delete_table/:table_name", dbHandler.DeleteTable)
		protected.POST("/disconnect", dbHandler.Disconnect)
	}

	return router
}

// corsConfig allows credentials for the listed origins, or any origin
// without credentials when none or "*" are configured.
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
