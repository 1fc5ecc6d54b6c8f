package backtest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saygoodluck/trading-bot/internal/engine"
	"github.com/saygoodluck/trading-bot/internal/ports"
	"github.com/saygoodluck/trading-bot/internal/sim"
)

// supportedTimeframes maps timeframe labels to their bar duration, used
// both for validation and for annualising the Sharpe ratio.
var supportedTimeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// ScenarioConfig is the YAML shape of one backtest scenario. Executor and
// risk overrides are pointer fields so "absent" is distinguishable from
// an explicit zero.
type ScenarioConfig struct {
	Symbol    string            `yaml:"symbol"`
	Timeframe string            `yaml:"timeframe"`
	From      string            `yaml:"from"` // RFC3339 or 2006-01-02, UTC
	To        string            `yaml:"to"`
	DataFile  string            `yaml:"dataFile"`
	Strategy  string            `yaml:"strategy"`
	Params    map[string]string `yaml:"params"`

	Executor ExecutorOverrides `yaml:"executor"`
	Risk     RiskOverrides     `yaml:"risk"`
}

// ExecutorOverrides selectively overrides the simulator defaults.
type ExecutorOverrides struct {
	StartCash             *float64 `yaml:"startCash"`
	Leverage              *int     `yaml:"leverage"`
	TakerFee              *float64 `yaml:"takerFee"`
	MakerFee              *float64 `yaml:"makerFee"`
	MaintenanceMarginRate *float64 `yaml:"maintenanceMarginRate"`
	LiquidationFee        *float64 `yaml:"liquidationFee"`
	ExecMode              *string  `yaml:"execMode"`
}

// RiskOverrides selectively overrides the governor defaults.
type RiskOverrides struct {
	RiskPct            *float64 `yaml:"riskPct"`
	DefaultATRMult     *float64 `yaml:"defaultAtrMult"`
	DailyLossStopPct   *float64 `yaml:"dailyLossStopPct"`
	DailyProfitStopPct *float64 `yaml:"dailyProfitStopPct"`
	MaxTradesPerDay    *int     `yaml:"maxTradesPerDay"`
	DynamicRiskScaling *bool    `yaml:"dynamicRiskScaling"`

	HardStopEnabled     *bool    `yaml:"hardStopEnabled"`
	HardStopATRPeriod   *int     `yaml:"hardStopAtrPeriod"`
	HardStopATRMult     *float64 `yaml:"hardStopAtrMult"`
	HardStopNeverLoosen *bool    `yaml:"hardStopNeverLoosen"`

	TrendFilterEnabled *bool   `yaml:"trendFilterEnabled"`
	TrendFilterKind    *string `yaml:"trendFilterKind"`
	TrendFilterPeriod  *int    `yaml:"trendFilterPeriod"`
	TrendFilterBias    *string `yaml:"trendFilterBias"`
}

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (ScenarioConfig, error) {
	var sc ScenarioConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return sc, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return sc, fmt.Errorf("%w: parsing scenario %s: %v", ports.ErrConfigurationError, path, err)
	}
	return sc, nil
}

// Validate checks the scenario and resolves its time range.
func (sc ScenarioConfig) Validate() (from, to time.Time, err error) {
	if sc.Symbol == "" {
		return from, to, fmt.Errorf("%w: symbol is required", ports.ErrConfigurationError)
	}
	if sc.Strategy == "" {
		return from, to, fmt.Errorf("%w: strategy is required", ports.ErrConfigurationError)
	}
	if _, ok := supportedTimeframes[sc.Timeframe]; !ok {
		return from, to, fmt.Errorf("%w: %q", ports.ErrUnsupportedTimeframe, sc.Timeframe)
	}

	from, err = parseTime(sc.From)
	if err != nil {
		return from, to, fmt.Errorf("%w: from: %v", ports.ErrConfigurationError, err)
	}
	to, err = parseTime(sc.To)
	if err != nil {
		return from, to, fmt.Errorf("%w: to: %v", ports.ErrConfigurationError, err)
	}
	if !from.Before(to) {
		return from, to, fmt.Errorf("%w: from %s must precede to %s", ports.ErrInvalidTimeRange, from, to)
	}
	return from, to, nil
}

// BarsPerYear returns the annualisation factor for the scenario timeframe.
func (sc ScenarioConfig) BarsPerYear() float64 {
	d := supportedTimeframes[sc.Timeframe]
	if d == 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(d)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("value is required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// ExecutorConfig merges the overrides onto the simulator defaults.
func (sc ScenarioConfig) ExecutorConfig() (sim.Config, error) {
	cfg := sim.DefaultConfig()
	ov := sc.Executor
	if ov.StartCash != nil {
		cfg.StartCash = *ov.StartCash
	}
	if ov.Leverage != nil {
		cfg.Leverage = *ov.Leverage
	}
	if ov.TakerFee != nil {
		cfg.TakerFee = *ov.TakerFee
	}
	if ov.MakerFee != nil {
		cfg.MakerFee = *ov.MakerFee
	}
	if ov.MaintenanceMarginRate != nil {
		cfg.MaintenanceMarginRate = *ov.MaintenanceMarginRate
	}
	if ov.LiquidationFee != nil {
		cfg.LiquidationFee = *ov.LiquidationFee
	}
	if ov.ExecMode != nil {
		mode := sim.ExecMode(*ov.ExecMode)
		if mode != sim.ExecModeImmediate && mode != sim.ExecModeNextOpen {
			return cfg, fmt.Errorf("%w: unknown exec mode %q", ports.ErrConfigurationError, *ov.ExecMode)
		}
		cfg.ExecMode = mode
	}
	if cfg.StartCash <= 0 {
		return cfg, fmt.Errorf("%w: startCash must be positive", ports.ErrConfigurationError)
	}
	if cfg.Leverage < 1 {
		return cfg, fmt.Errorf("%w: leverage must be at least 1", ports.ErrConfigurationError)
	}
	return cfg, nil
}

// RiskConfig merges the overrides onto the governor defaults.
func (sc ScenarioConfig) RiskConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	ov := sc.Risk
	if ov.RiskPct != nil {
		cfg.RiskPct = *ov.RiskPct
	}
	if ov.DefaultATRMult != nil {
		cfg.DefaultATRMult = *ov.DefaultATRMult
	}
	if ov.DailyLossStopPct != nil {
		cfg.DailyLossStopPct = *ov.DailyLossStopPct
	}
	if ov.DailyProfitStopPct != nil {
		cfg.DailyProfitStopPct = *ov.DailyProfitStopPct
	}
	if ov.MaxTradesPerDay != nil {
		cfg.MaxTradesPerDay = *ov.MaxTradesPerDay
	}
	if ov.DynamicRiskScaling != nil {
		cfg.DynamicRiskScaling = *ov.DynamicRiskScaling
	}
	if ov.HardStopEnabled != nil {
		cfg.HardStop.Enabled = *ov.HardStopEnabled
	}
	if ov.HardStopATRPeriod != nil {
		cfg.HardStop.ATRPeriod = *ov.HardStopATRPeriod
	}
	if ov.HardStopATRMult != nil {
		cfg.HardStop.ATRMult = *ov.HardStopATRMult
	}
	if ov.HardStopNeverLoosen != nil {
		cfg.HardStop.NeverLoosen = *ov.HardStopNeverLoosen
	}
	if ov.TrendFilterEnabled != nil {
		cfg.TrendFilter.Enabled = *ov.TrendFilterEnabled
	}
	if ov.TrendFilterKind != nil {
		kind := engine.TrendFilterKind(*ov.TrendFilterKind)
		if kind != engine.TrendFilterSMA && kind != engine.TrendFilterEMA {
			return cfg, fmt.Errorf("%w: unknown trend filter kind %q", ports.ErrConfigurationError, *ov.TrendFilterKind)
		}
		cfg.TrendFilter.Kind = kind
	}
	if ov.TrendFilterPeriod != nil {
		cfg.TrendFilter.Period = *ov.TrendFilterPeriod
	}
	if ov.TrendFilterBias != nil {
		switch *ov.TrendFilterBias {
		case "long", "short", "both":
			cfg.TrendFilter.Bias = *ov.TrendFilterBias
		default:
			return cfg, fmt.Errorf("%w: unknown trend filter bias %q", ports.ErrConfigurationError, *ov.TrendFilterBias)
		}
	}
	if cfg.RiskPct <= 0 || cfg.RiskPct > 1 {
		return cfg, fmt.Errorf("%w: riskPct must be in (0, 1]", ports.ErrConfigurationError)
	}
	return cfg, nil
}
