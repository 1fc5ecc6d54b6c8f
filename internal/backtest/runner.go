// Package backtest drives a full simulator run from a scenario config: it
// loads candles, wires the strategy, governor and executor together,
// replays the bars and assembles the report with round-trip analytics.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/saygoodluck/trading-bot/internal/analytics"
	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/engine"
	"github.com/saygoodluck/trading-bot/internal/ports"
	"github.com/saygoodluck/trading-bot/internal/sim"
	"github.com/saygoodluck/trading-bot/internal/strategy"
	"github.com/saygoodluck/trading-bot/internal/utils"
)

// Result is the full outcome of one backtest run.
type Result struct {
	Scenario    ScenarioConfig          `json:"scenario"`
	Summary     ports.ReportSummary     `json:"summary"`
	Trades      []domain.Trade          `json:"trades"`
	EquityCurve []domain.EquityPoint    `json:"equityCurve"`
	RoundTrips  []analytics.RoundTrip   `json:"roundTrips"`
	TripStats   analytics.TripMetrics   `json:"tripStats"`
	EquityStats analytics.EquityMetrics `json:"equityStats"`
}

// Runner executes backtest scenarios.
type Runner struct {
	registry *strategy.Registry
	logger   ports.Logger
}

// NewRunner creates a runner backed by the given strategy registry.
func NewRunner(registry *strategy.Registry, logger ports.Logger) *Runner {
	return &Runner{registry: registry, logger: logger}
}

// Run validates the scenario, replays its candle file through the governor
// and returns the assembled result.
func (r *Runner) Run(ctx context.Context, sc ScenarioConfig) (*Result, error) {
	from, to, err := sc.Validate()
	if err != nil {
		return nil, err
	}

	execCfg, err := sc.ExecutorConfig()
	if err != nil {
		return nil, err
	}
	riskCfg, err := sc.RiskConfig()
	if err != nil {
		return nil, err
	}

	strat, err := r.registry.Create(sc.Strategy, sc.Params, r.logger)
	if err != nil {
		return nil, err
	}

	candles, err := utils.ReadCandlesFromCSV(sc.DataFile)
	if err != nil {
		return nil, fmt.Errorf("loading candles from %s: %w", sc.DataFile, err)
	}
	candles = clipCandles(candles, from, to)
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles in range %s..%s", ports.ErrInvalidTimeRange, from, to)
	}

	executor := sim.NewExecutor(execCfg, r.logger)
	gov := engine.New(riskCfg, sc.Symbol, sc.Timeframe, strat, executor, r.logger)

	r.logger.Info(ctx, "Starting backtest", map[string]interface{}{
		"symbol":    sc.Symbol,
		"timeframe": sc.Timeframe,
		"strategy":  strat.Name(),
		"bars":      len(candles),
	})
	started := time.Now()

	for _, candle := range candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := gov.OnBar(ctx, candle); err != nil {
			return nil, fmt.Errorf("bar %d: %w", candle.Timestamp, err)
		}
	}

	report := executor.Report()
	trips := analytics.AttachPnL(analytics.BuildRoundTrips(report.Trades), report.Trades, candles)

	r.logger.Info(ctx, "Backtest finished", map[string]interface{}{
		"durationMs": time.Since(started).Milliseconds(),
		"trades":     report.Summary.Trades,
		"roundTrips": len(trips),
		"equityEnd":  report.Summary.EquityEnd,
	})

	return &Result{
		Scenario:    sc,
		Summary:     report.Summary,
		Trades:      report.Trades,
		EquityCurve: report.EquityCurve,
		RoundTrips:  trips,
		TripStats:   analytics.ComputeTripMetrics(trips),
		EquityStats: analytics.ComputeEquityMetrics(report.EquityCurve, sc.BarsPerYear()),
	}, nil
}

// clipCandles returns the candles inside [from, to), assuming the input is
// sorted by timestamp.
func clipCandles(candles []domain.Candle, from, to time.Time) []domain.Candle {
	fromMs, toMs := from.UnixMilli(), to.UnixMilli()
	lo := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp >= fromMs })
	hi := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp >= toMs })
	return candles[lo:hi]
}
