package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/nephron-sim/internal/engine"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"NEPHRON_CONFIG", "NEPHRON_DB", "NEPHRON_OUTPUT_DIR", "NEPHRON_LOG_LEVEL",
		"NEPHRON_PORT", "NEPHRON_ADMIN_KEY", "NEPHRON_MAX_DAYS", "NEPHRON_CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, slog.LevelInfo, cfg.Level())

	ctrl, err := cfg.ControllerConfig()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultConfig(), ctrl)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nephron.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /var/lib/nephron/runs.db
port: 9000
log_level: debug
rate_window: 30m
cors_origins: [https://a.example]
controller:
  days: 45
  body_water: 38
  learning_rates:
    sodium: 0.001
    potassium: 0.002
    bicarbonate: 0.003
`), 0o644))

	t.Setenv("NEPHRON_PORT", "9100")
	t.Setenv("NEPHRON_ADMIN_KEY", "k")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/nephron/runs.db", cfg.DBPath)
	assert.Equal(t, 9100, cfg.Port, "env wins over file")
	assert.Equal(t, "k", cfg.AdminKey)
	assert.Equal(t, 30*time.Minute, cfg.RateWindow)
	assert.Equal(t, []string{"https://a.example"}, cfg.CORSOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.Level())

	ctrl, err := cfg.ControllerConfig()
	require.NoError(t, err)
	assert.Equal(t, 45, ctrl.Days)
	assert.Equal(t, 38.0, ctrl.BodyWater)
	assert.Equal(t, 0.002, ctrl.LearningRates.Potassium)
	assert.Equal(t, engine.DefaultConfig().BaselineGFR, ctrl.BaselineGFR)
}

func TestLoadFromEnvPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: reports\n"), 0o644))
	t.Setenv("NEPHRON_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "reports", cfg.OutputDir)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [1"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("log_level: loud\nmax_days: 0\n"), 0o644))
	_, err = Load(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
	assert.Contains(t, err.Error(), "max_days")

	fast := filepath.Join(dir, "fast.yaml")
	require.NoError(t, os.WriteFile(fast, []byte("controller:\n  baseline_gfr: 200\n"), 0o644))
	_, err = Load(fast)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "baseline GFR")
}

func TestEnvIntIgnoresGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEPHRON_PORT", "eighty")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestControllerOverrideValidated(t *testing.T) {
	cfg := Default()
	cfg.Controller.LearningRates = &engine.LearningRates{Sodium: -1}
	_, err := cfg.ControllerConfig()
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}
