package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/indicators"
	"github.com/saygoodluck/trading-bot/internal/ports"
)

// MACrossConfig configures the EMA crossover strategy.
type MACrossConfig struct {
	FastPeriod int // e.g. 12
	SlowPeriod int // e.g. 26
}

// DefaultMACrossConfig returns the reference parameters.
func DefaultMACrossConfig() MACrossConfig {
	return MACrossConfig{FastPeriod: 12, SlowPeriod: 26}
}

// MACross goes long when the fast EMA crosses above the slow EMA and short
// on the opposite cross. An open position is reversed by the opposite
// cross rather than closed first; the governor folds the flip into one
// order.
type MACross struct {
	cfg    MACrossConfig
	logger ports.Logger
}

// NewMACross validates the configuration and builds the strategy.
func NewMACross(cfg MACrossConfig, logger ports.Logger) (*MACross, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= 0 {
		return nil, fmt.Errorf("%w: macross periods must be positive", ports.ErrConfigurationError)
	}
	if cfg.FastPeriod >= cfg.SlowPeriod {
		return nil, fmt.Errorf("%w: macross fast period must be less than slow period", ports.ErrConfigurationError)
	}
	return &MACross{cfg: cfg, logger: logger}, nil
}

// NewMACrossFromParams builds the strategy from string parameters.
func NewMACrossFromParams(params map[string]string, logger ports.Logger) (ports.Strategy, error) {
	cfg := DefaultMACrossConfig()
	var err error
	if cfg.FastPeriod, err = intParam(params, "fastPeriod", cfg.FastPeriod); err != nil {
		return nil, err
	}
	if cfg.SlowPeriod, err = intParam(params, "slowPeriod", cfg.SlowPeriod); err != nil {
		return nil, err
	}
	return NewMACross(cfg, logger)
}

func (m *MACross) Name() string { return "macross" }

func (m *MACross) RequiredDataPoints() int {
	return m.cfg.SlowPeriod * 3 // EMA needs settling room beyond its period
}

func (m *MACross) Evaluate(ctx context.Context, sctx *ports.StrategyContext) domain.Signal {
	if len(sctx.Candles) < m.RequiredDataPoints() {
		return domain.Hold("insufficient history")
	}

	closes := indicators.Closes(sctx.Candles)
	fast := indicators.EMA(closes, m.cfg.FastPeriod)
	slow := indicators.EMA(closes, m.cfg.SlowPeriod)

	n := len(closes)
	curDiff := fast[n-1] - slow[n-1]
	prevDiff := fast[n-2] - slow[n-2]
	if math.IsNaN(curDiff) || math.IsNaN(prevDiff) {
		return domain.Hold("indicators warming up")
	}

	m.logger.Debug(ctx, "macross evaluation", map[string]interface{}{
		"fast": fast[n-1], "slow": slow[n-1], "diff": curDiff, "prevDiff": prevDiff,
	})

	switch {
	case prevDiff <= 0 && curDiff > 0:
		return domain.Signal{Action: domain.SignalBuy, Reason: "fast ema crossed above slow"}
	case prevDiff >= 0 && curDiff < 0:
		return domain.Signal{Action: domain.SignalSell, Reason: "fast ema crossed below slow"}
	}
	return domain.Hold("no cross")
}
