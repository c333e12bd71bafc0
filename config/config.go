package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Annany2002/dataspace-backend/internal/logger"
	"github.com/joho/godotenv"
)

var (
	customLog = logger.NewLogger()
)

// Config holds application configuration values
type Config struct {
	ServerPort string
	AppEnv     string

	JWTSecret     string
	JWTAlgorithm  string
	JWTExpiration time.Duration

	// Account store
	MetadataDriver string
	MetadataDbDir  string
	MetadataDbFile string

	// Administrative MySQL server hosting tenant databases
	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	SMTPServer    string
	SMTPPort      int
	EmailFrom     string
	EmailPassword string

	ResetMaxPerHour        int
	AuthRateLimitPerMinute int
	ConnectTimeout         time.Duration
	QueryTimeout           time.Duration
	SessionIdle            time.Duration
	SweepInterval          time.Duration
	VerticaTLSMode         string
	CORSAllowedOrigins     []string
}

// LoadConfig loads configuration from environment variables.
// It uses a .env file for local development if present (ignores it for production).
func LoadConfig() (*Config, error) {
	customLog.Println("Loading configuration from environment variables...")

	appEnv := getEnv("APP_ENV", "development")
	if appEnv != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Warning: Error loading .env file: %v", err)
		}
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable must be set")
	}
	if jwtSecret == "!!replace_this_with_a_real_secret_key!!" {
		customLog.Warnln("WARNING: JWT_SECRET is set to the default placeholder!")
	}

	jwtAlg := strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256"))
	switch jwtAlg {
	case "HS256", "HS384", "HS512":
	default:
		return nil, errors.New("JWT_ALGORITHM must be one of HS256, HS384, HS512")
	}

	metadataDriver := strings.ToLower(getEnv("METADATA_DRIVER", "sqlite3"))
	if metadataDriver != "sqlite3" && metadataDriver != "mysql" {
		return nil, errors.New("METADATA_DRIVER must be sqlite3 or mysql")
	}

	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", ":8080"),
		AppEnv:         appEnv,
		JWTSecret:      jwtSecret,
		JWTAlgorithm:   jwtAlg,
		JWTExpiration:  getMinutes("JWT_EXPIRATION_MINUTES", 30),
		MetadataDriver: metadataDriver,
		MetadataDbDir:  getEnv("DATABASE_DIRECTORY", "data"),
		MetadataDbFile: getEnv("DATABASE_DIRECTORY_FILE", "metadata.db"),

		MySQLHost:     getEnv("MYSQL_HOST", "localhost"),
		MySQLPort:     getInt("MYSQL_PORT", 3306),
		MySQLUser:     getEnv("MYSQL_USER", "root"),
		MySQLPassword: getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase: getEnv("MYSQL_DATABASE", "dataspace"),

		SMTPServer:    getEnv("SMTP_SERVER", ""),
		SMTPPort:      getInt("SMTP_PORT", 587),
		EmailFrom:     getEnv("EMAIL_FROM", ""),
		EmailPassword: getEnv("EMAIL_PASSWORD", ""),

		ResetMaxPerHour:        getInt("RESET_MAX_PER_HOUR", 5),
		AuthRateLimitPerMinute: getInt("AUTH_RATE_LIMIT_PER_MINUTE", 20),
		ConnectTimeout:         getSeconds("CONNECT_TIMEOUT_SECONDS", 10),
		QueryTimeout:           getSeconds("QUERY_TIMEOUT_SECONDS", 60),
		SessionIdle:            getMinutes("SESSION_IDLE_MINUTES", 60),
		SweepInterval:          getSeconds("SWEEP_INTERVAL_SECONDS", 60),
		VerticaTLSMode:         getEnv("VERTICA_TLS_MODE", "none"),
		CORSAllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	customLog.Printf("Configuration loaded successfully. Port: %s, JWT Exp: %v, Metadata: %s",
		cfg.ServerPort, cfg.JWTExpiration, cfg.MetadataDriver)
	return cfg, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getInt parses a positive integer, falling back on bad input.
func getInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		customLog.Warnf("Invalid %s '%s'. Using default %d. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return n
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}

func getMinutes(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Minute
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
