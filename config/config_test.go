package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saygoodluck/trading-bot/internal/adapters/logger"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BINANCE_API_KEY", "test-key")
	t.Setenv("BINANCE_API_SECRET", "test-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsTestnet)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, "1h", cfg.Timeframe)
	assert.Equal(t, 10, cfg.Leverage)
	assert.Equal(t, "smarsi", cfg.Strategy)
	assert.Empty(t, cfg.StrategyParams)
	assert.InDelta(t, 0.01, cfg.Risk.RiskPct, 1e-12)
	assert.Equal(t, 25, cfg.Risk.MaxTradesPerDay)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.InDelta(t, 100.0, cfg.MinAvailableBalance, 1e-12)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYMBOL", "BTCUSDT")
	t.Setenv("LEVERAGE", "5")
	t.Setenv("STRATEGY", "macross")
	t.Setenv("STRATEGY_PARAMS", "fastPeriod=5, slowPeriod=20")
	t.Setenv("RISK_PCT", "0.02")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, 5, cfg.Leverage)
	assert.Equal(t, "macross", cfg.Strategy)
	assert.Equal(t, map[string]string{"fastPeriod": "5", "slowPeriod": "20"}, cfg.StrategyParams)
	assert.InDelta(t, 0.02, cfg.Risk.RiskPct, 1e-12)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
}

func TestLoadConfigMissingCredentials(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BINANCE_API_KEY")
	assert.Contains(t, err.Error(), "BINANCE_API_SECRET")
}

func TestLoadConfigCollectsAllErrors(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEVERAGE", "-1")
	t.Setenv("RISK_PCT", "2")
	t.Setenv("RECONNECT_DELAY_SECONDS", "0")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEVERAGE")
	assert.Contains(t, err.Error(), "RISK_PCT")
	assert.Contains(t, err.Error(), "RECONNECT_DELAY_SECONDS")
}

func TestLoadConfigRejectsMalformedNumbers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEVERAGE", "ten")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid LEVERAGE")
}

func TestParseParams(t *testing.T) {
	assert.Empty(t, parseParams(""))
	assert.Equal(t, map[string]string{"a": "1"}, parseParams("a=1"))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, parseParams(" a = 1 , b=2 ,"))
	// Pairs without '=' are dropped.
	assert.Equal(t, map[string]string{"a": "1"}, parseParams("a=1,broken"))
}
