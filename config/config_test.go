package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"signal-engine/internal/indicator"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SYMBOLS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, "1m", cfg.KlineInterval)
	assert.Equal(t, 256, cfg.SinkBuffer)
	assert.Equal(t, 15*time.Second, cfg.LivenessInterval)
	assert.Equal(t, indicator.DefaultParams(), cfg.Indicators)
	assert.False(t, cfg.EvaluateForming)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYMBOLS", "btcusdt, ethusdt,,BTCUSDT")
	t.Setenv("EVALUATE_FORMING", "true")
	t.Setenv("RSI_PERIOD", "7")
	t.Setenv("BB_MULT", "2.5")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.True(t, cfg.EvaluateForming)
	assert.Equal(t, 7, cfg.Indicators.RSIPeriod)
	assert.Equal(t, 2.5, cfg.Indicators.BollMult)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoad_EmptySinkDisables(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SQLITE_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.SQLitePath)
}

func TestLoad_ReportsEveryError(t *testing.T) {
	t.Setenv("RSI_PERIOD", "fourteen")
	t.Setenv("EVALUATE_FORMING", "maybe")
	t.Setenv("MACD_FAST", "30")
	t.Setenv("SINK_BUFFER", "0")

	_, err := Load()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 4)
	assert.ErrorContains(t, err, "RSI_PERIOD")
	assert.ErrorContains(t, err, "EVALUATE_FORMING")
	assert.ErrorContains(t, err, "macdFast")
	assert.ErrorContains(t, err, "SINK_BUFFER")
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SIGNAL_ENGINE_TEST_KEY=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SIGNAL_ENGINE_TEST_KEY") })

	require.NoError(t, LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("SIGNAL_ENGINE_TEST_KEY"))
}
