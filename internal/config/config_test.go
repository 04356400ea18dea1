package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  env: prod\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"}, cfg.Market.Symbols)
	assert.Equal(t, "1m", cfg.Market.StreamInterval)
	assert.Equal(t, 100, cfg.Cache.MaxRows)
	assert.Equal(t, 10, cfg.Poller.TickerIntervalSec)
	assert.Equal(t, 60, cfg.Poller.FundingIntervalSec)
	assert.Equal(t, 500, cfg.Strategy.Lookback)
	assert.Equal(t, 14, cfg.Strategy.RSIPeriod)
	assert.True(t, cfg.Trading.PositionPct > 0 && cfg.Trading.PositionPct <= 1)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
market:
  symbols: ["SOLUSDT"]
  stream_interval: "5m"
strategy:
  lookback: 200
  rsi_period: 7
trading:
  paper_mode: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSDT"}, cfg.Market.Symbols)
	assert.Equal(t, "5m", cfg.Market.StreamInterval)
	assert.Equal(t, 200, cfg.Strategy.Lookback)
	assert.Equal(t, 7, cfg.Strategy.RSIPeriod)
	assert.True(t, cfg.Trading.PaperMode)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsLookbackBelowWarmup(t *testing.T) {
	path := writeConfig(t, "strategy:\n  lookback: 10\n  rsi_period: 14\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsIncompleteTelegram(t *testing.T) {
	path := writeConfig(t, "notify:\n  telegram:\n    enabled: true\n")
	_, err := Load(path)
	assert.Error(t, err)
}
