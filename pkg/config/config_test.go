package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, 10*time.Minute, cfg.Reports.CacheTTL)
	assert.Equal(t, int64(10*1024*1024), cfg.Ingestion.MaxFileSizeBytes)
	assert.Contains(t, cfg.Ingestion.AllowedMIMEs, "text/csv")
}

func TestLoadReadsEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("IDENTITY_URL", "https://auth.example.com/")
	t.Setenv("IDENTITY_JWT_SECRET", "secret")
	t.Setenv("REPORTS_CACHE_TTL", "bogus")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", cfg.Identity.URL)
	assert.Equal(t, "secret", cfg.Identity.JWTSecret)
	assert.Equal(t, 10*time.Minute, cfg.Reports.CacheTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
