package strategy

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/indicators"
	"github.com/saygoodluck/trading-bot/internal/ports"
)

// SMARSIConfig configures the SMA trend + RSI pullback strategy.
type SMARSIConfig struct {
	SMAPeriod  int     // trend reference, e.g. 50
	RSIPeriod  int     // e.g. 14
	Oversold   float64 // long entry threshold, e.g. 30
	Overbought float64 // short entry / long exit threshold, e.g. 70
}

// DefaultSMARSIConfig returns the reference parameters.
func DefaultSMARSIConfig() SMARSIConfig {
	return SMARSIConfig{SMAPeriod: 50, RSIPeriod: 14, Oversold: 30, Overbought: 70}
}

// SMARSI goes long on an RSI dip below the oversold line while price holds
// above its SMA, short on an RSI spike above the overbought line while
// price is below the SMA, and closes when RSI crosses back through the
// midline against the position.
type SMARSI struct {
	cfg    SMARSIConfig
	logger ports.Logger
}

// NewSMARSI validates the configuration and builds the strategy.
func NewSMARSI(cfg SMARSIConfig, logger ports.Logger) (*SMARSI, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.SMAPeriod <= 0 || cfg.RSIPeriod <= 0 {
		return nil, fmt.Errorf("%w: smarsi periods must be positive", ports.ErrConfigurationError)
	}
	if cfg.Oversold <= 0 || cfg.Overbought >= 100 || cfg.Oversold >= cfg.Overbought {
		return nil, fmt.Errorf("%w: smarsi thresholds must satisfy 0 < oversold < overbought < 100", ports.ErrConfigurationError)
	}
	return &SMARSI{cfg: cfg, logger: logger}, nil
}

// NewSMARSIFromParams builds the strategy from string parameters, falling
// back to defaults for absent keys.
func NewSMARSIFromParams(params map[string]string, logger ports.Logger) (ports.Strategy, error) {
	cfg := DefaultSMARSIConfig()
	var err error
	if cfg.SMAPeriod, err = intParam(params, "smaPeriod", cfg.SMAPeriod); err != nil {
		return nil, err
	}
	if cfg.RSIPeriod, err = intParam(params, "rsiPeriod", cfg.RSIPeriod); err != nil {
		return nil, err
	}
	if cfg.Oversold, err = floatParam(params, "oversold", cfg.Oversold); err != nil {
		return nil, err
	}
	if cfg.Overbought, err = floatParam(params, "overbought", cfg.Overbought); err != nil {
		return nil, err
	}
	return NewSMARSI(cfg, logger)
}

func (s *SMARSI) Name() string { return "smarsi" }

func (s *SMARSI) RequiredDataPoints() int {
	n := s.cfg.SMAPeriod
	if s.cfg.RSIPeriod+1 > n {
		n = s.cfg.RSIPeriod + 1
	}
	return n + 5
}

func (s *SMARSI) Evaluate(ctx context.Context, sctx *ports.StrategyContext) domain.Signal {
	if len(sctx.Candles) < s.RequiredDataPoints() {
		return domain.Hold("insufficient history")
	}

	closes := indicators.Closes(sctx.Candles)
	price := closes[len(closes)-1]
	sma := indicators.Last(indicators.SMA(closes, s.cfg.SMAPeriod))
	rsiSeries := indicators.RSI(closes, s.cfg.RSIPeriod)
	rsi := indicators.Last(rsiSeries)
	prevRSI := math.NaN()
	if len(rsiSeries) >= 2 {
		prevRSI = rsiSeries[len(rsiSeries)-2]
	}
	if math.IsNaN(sma) || math.IsNaN(rsi) || math.IsNaN(prevRSI) {
		return domain.Hold("indicators warming up")
	}

	s.logger.Debug(ctx, "smarsi evaluation", map[string]interface{}{
		"price": price, "sma": sma, "rsi": rsi, "prevRsi": prevRSI,
	})

	if sctx.Position != nil && sctx.Position.Quantity != 0 {
		// Exit on RSI crossing the midline against the position.
		if sctx.Position.IsLong() && prevRSI >= 50 && rsi < 50 {
			return domain.Signal{Action: domain.SignalClose, Reason: "rsi crossed below midline"}
		}
		if !sctx.Position.IsLong() && prevRSI <= 50 && rsi > 50 {
			return domain.Signal{Action: domain.SignalClose, Reason: "rsi crossed above midline"}
		}
		return domain.Hold("position open")
	}

	if price > sma && prevRSI < s.cfg.Oversold && rsi >= s.cfg.Oversold {
		return domain.Signal{
			Action:     domain.SignalBuy,
			Reason:     "rsi recovering from oversold above sma",
			Confidence: confidenceFromRSI(s.cfg.Oversold - prevRSI),
		}
	}
	if price < sma && prevRSI > s.cfg.Overbought && rsi <= s.cfg.Overbought {
		return domain.Signal{
			Action:     domain.SignalSell,
			Reason:     "rsi fading from overbought below sma",
			Confidence: confidenceFromRSI(prevRSI - s.cfg.Overbought),
		}
	}
	return domain.Hold("no setup")
}

// confidenceFromRSI maps how deep the RSI extreme was into (0, 1].
func confidenceFromRSI(depth float64) float64 {
	if depth <= 0 {
		return 0.1
	}
	return math.Min(0.1+depth/30, 1)
}

func intParam(params map[string]string, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %q: %v", ports.ErrConfigurationError, key, err)
	}
	return v, nil
}

func floatParam(params map[string]string, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %q: %v", ports.ErrConfigurationError, key, err)
	}
	return v, nil
}
