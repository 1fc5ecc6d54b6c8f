package engine

import "math"

// TrendFilterKind selects the moving average the trend filter is built on.
type TrendFilterKind string

const (
	TrendFilterSMA TrendFilterKind = "sma"
	TrendFilterEMA TrendFilterKind = "ema"
)

// TrendFilterConfig gates strategy entries by the close's relation to a
// moving average. Bias restricts which directions are tradable at all:
// "long", "short", or "both".
type TrendFilterConfig struct {
	Enabled bool            `yaml:"enabled"`
	Kind    TrendFilterKind `yaml:"kind"`
	Period  int             `yaml:"period"`
	Bias    string          `yaml:"bias"`
}

// HardStopConfig controls the ATR protective stop the governor maintains
// under every open position.
type HardStopConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ATRPeriod   int     `yaml:"atrPeriod"`
	ATRMult     float64 `yaml:"atrMult"`
	NeverLoosen bool    `yaml:"neverLoosen"`
}

// Config holds the risk governor parameters. Percentage thresholds set to
// NaN disable the corresponding circuit breaker; MaxTradesPerDay <= 0
// disables the trade cap.
type Config struct {
	RiskPct            float64           `yaml:"riskPct"`
	DefaultATRMult     float64           `yaml:"defaultAtrMult"`
	DailyLossStopPct   float64           `yaml:"dailyLossStopPct"`
	DailyProfitStopPct float64           `yaml:"dailyProfitStopPct"`
	MaxTradesPerDay    int               `yaml:"maxTradesPerDay"`
	DynamicRiskScaling bool              `yaml:"dynamicRiskScaling"`
	HardStop           HardStopConfig    `yaml:"hardStop"`
	TrendFilter        TrendFilterConfig `yaml:"trendFilter"`
}

// DefaultConfig returns the reference governor configuration.
func DefaultConfig() Config {
	return Config{
		RiskPct:            0.01,
		DefaultATRMult:     2,
		DailyLossStopPct:   2,
		DailyProfitStopPct: 2,
		MaxTradesPerDay:    25,
		DynamicRiskScaling: true,
		HardStop: HardStopConfig{
			Enabled:     true,
			ATRPeriod:   14,
			ATRMult:     2.5,
			NeverLoosen: true,
		},
		TrendFilter: TrendFilterConfig{
			Enabled: true,
			Kind:    TrendFilterSMA,
			Period:  100,
			Bias:    "both",
		},
	}
}

func (c Config) lossStopEnabled() bool {
	return !math.IsNaN(c.DailyLossStopPct) && c.DailyLossStopPct > 0
}

func (c Config) profitStopEnabled() bool {
	return !math.IsNaN(c.DailyProfitStopPct) && c.DailyProfitStopPct > 0
}
