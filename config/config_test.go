package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerPort)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, 30*time.Minute, cfg.JWTExpiration)
	assert.Equal(t, "sqlite3", cfg.MetadataDriver)
	assert.Equal(t, 5, cfg.ResetMaxPerHour)
	assert.Equal(t, "none", cfg.VerticaTLSMode)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_ALGORITHM", "hs512")
	t.Setenv("JWT_EXPIRATION_MINUTES", "90")
	t.Setenv("METADATA_DRIVER", "MySQL")
	t.Setenv("CONNECT_TIMEOUT_SECONDS", "3")
	t.Setenv("RESET_MAX_PER_HOUR", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "HS512", cfg.JWTAlgorithm)
	assert.Equal(t, 90*time.Minute, cfg.JWTExpiration)
	assert.Equal(t, "mysql", cfg.MetadataDriver)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5, cfg.ResetMaxPerHour)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfig_Rejects(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"bad algorithm", map[string]string{"JWT_SECRET": "s", "JWT_ALGORITHM": "RS256"}},
		{"bad metadata driver", map[string]string{"JWT_SECRET": "s", "METADATA_DRIVER": "oracle"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "production")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
