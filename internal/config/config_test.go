package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicecheck/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, int64(10*1024*1024), cfg.Server.MaxUploadBytes())
	assert.Equal(t, config.SourceEmbedded, cfg.RuleSet.Source)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 64, cfg.Engine.MaxDepth)
	assert.True(t, cfg.Engine.ParallelChecks)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INVOICECHECK_RULESET_SOURCE", "Postgres")
	t.Setenv("INVOICECHECK_RULESET_ACTIVE", "ubl-invoice-2.1")
	t.Setenv("INVOICECHECK_ENGINE_TIMEOUT", "2s")
	t.Setenv("INVOICECHECK_ENGINE_PARALLEL_CHECKS", "false")
	t.Setenv("INVOICECHECK_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("INVOICECHECK_DB_HOST", "db")
	t.Setenv("INVOICECHECK_RULESET_WATCH", "true")
	t.Setenv("INVOICECHECK_RULESET_REFRESH_SCHEDULE", "@every 5m")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.SourcePostgres, cfg.RuleSet.Source)
	assert.Equal(t, "ubl-invoice-2.1", cfg.RuleSet.Active)
	assert.Equal(t, 2*time.Second, cfg.Engine.Timeout)
	assert.False(t, cfg.Engine.ParallelChecks)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.RuleSet.Watch)
	assert.Equal(t, "@every 5m", cfg.RuleSet.RefreshSchedule)
	assert.Equal(t, "postgres://invoicecheck:invoicecheck_secret@db:5432/invoicecheck_db?sslmode=disable", cfg.DB.DSN())
}

func TestLoad_PortOverride(t *testing.T) {
	t.Run("platform port", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Port)
	})

	t.Run("explicit setting wins", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		t.Setenv("INVOICECHECK_SERVER_PORT", ":7000")
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, ":7000", cfg.Server.Port)
	})
}

func TestLoad_UnknownSource(t *testing.T) {
	t.Setenv("INVOICECHECK_RULESET_SOURCE", "ftp")
	_, err := config.Load()
	assert.Error(t, err)
}
