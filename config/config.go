// Package config loads the live bot configuration from the environment
// (optionally seeded from a .env file). Backtests are configured through
// YAML scenarios instead; only the live service reads this.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/saygoodluck/trading-bot/internal/adapters/logger"
	"github.com/saygoodluck/trading-bot/internal/engine"
)

// Config holds all live application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading
	Symbol    string
	Timeframe string
	Leverage  int

	// Strategy selection; params are forwarded to the registry factory.
	Strategy       string
	StrategyParams map[string]string

	// Risk governor
	Risk engine.Config

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Connection settings for the Binance client
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Trading is suspended below this available balance.
	MinAvailableBalance float64
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist.
	_ = godotenv.Load()

	cfg := &Config{Risk: engine.DefaultConfig()}
	var err error
	var errs []string

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.Timeframe = getEnv("TIMEFRAME", "1h")

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}

	cfg.Strategy = getEnv("STRATEGY", "smarsi")
	cfg.StrategyParams = parseParams(getEnv("STRATEGY_PARAMS", ""))

	// Risk governor overrides; the engine defaults stand otherwise.
	cfg.Risk.RiskPct, err = getEnvAsFloatRequired("RISK_PCT", cfg.Risk.RiskPct)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PCT: %v", err))
	} else if cfg.Risk.RiskPct <= 0 || cfg.Risk.RiskPct > 1 {
		errs = append(errs, "RISK_PCT must be in (0, 1]")
	}
	cfg.Risk.DailyLossStopPct = getEnvAsFloat("DAILY_LOSS_STOP_PCT", cfg.Risk.DailyLossStopPct)
	cfg.Risk.DailyProfitStopPct = getEnvAsFloat("DAILY_PROFIT_STOP_PCT", cfg.Risk.DailyProfitStopPct)
	cfg.Risk.MaxTradesPerDay = getEnvAsInt("MAX_TRADES_PER_DAY", cfg.Risk.MaxTradesPerDay)
	cfg.Risk.DynamicRiskScaling = getEnvAsBool("DYNAMIC_RISK_SCALING", cfg.Risk.DynamicRiskScaling)
	cfg.Risk.HardStop.ATRPeriod = getEnvAsInt("HARD_STOP_ATR_PERIOD", cfg.Risk.HardStop.ATRPeriod)
	cfg.Risk.HardStop.ATRMult = getEnvAsFloat("HARD_STOP_ATR_MULT", cfg.Risk.HardStop.ATRMult)
	cfg.Risk.TrendFilter.Period = getEnvAsInt("TREND_FILTER_PERIOD", cfg.Risk.TrendFilter.Period)
	if cfg.Risk.HardStop.ATRPeriod <= 0 {
		errs = append(errs, "HARD_STOP_ATR_PERIOD must be positive")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/trading_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	cfg.MinAvailableBalance, err = getEnvAsFloatRequired("MIN_AVAILABLE_BALANCE", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_AVAILABLE_BALANCE: %v", err))
	} else if cfg.MinAvailableBalance < 0 {
		errs = append(errs, "MIN_AVAILABLE_BALANCE cannot be negative")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// parseParams turns "key1=v1,key2=v2" into a map.
func parseParams(raw string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			params[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return params
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
