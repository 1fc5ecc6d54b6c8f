// Package engine contains the risk governor: the per-bar decision loop
// that sits between a strategy and an order executor. The governor owns
// position sizing, daily circuit breakers, the trend filter and protective
// stop maintenance; strategies only emit directional signals.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/indicators"
	"github.com/saygoodluck/trading-bot/internal/ports"
)

const minWarmupBars = 50

// minStopDistanceFrac floors the sizing stop distance at this fraction of
// price so a near-zero ATR cannot produce an absurd position size.
const minStopDistanceFrac = 0.001

// Engine drives one symbol/timeframe pair through the risk governor.
// Not safe for concurrent use.
type Engine struct {
	cfg      Config
	strategy ports.Strategy
	executor ports.OrderExecutor
	logger   ports.Logger

	symbol    string
	timeframe string

	candles []domain.Candle

	dayKey         string
	dayStartEquity float64
	tradesToday    int
	pausedUntil    int64
}

// New creates a governor for one symbol and timeframe.
func New(cfg Config, symbol, timeframe string, strategy ports.Strategy, executor ports.OrderExecutor, logger ports.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		strategy:  strategy,
		executor:  executor,
		logger:    logger,
		symbol:    symbol,
		timeframe: timeframe,
	}
}

// OnBar processes one closed candle: mark-to-market first so pending fills
// and stops resolve against this bar, then the day roll, circuit breakers,
// the trend filter, strategy evaluation, sizing and stop maintenance.
func (e *Engine) OnBar(ctx context.Context, candle domain.Candle) error {
	e.candles = append(e.candles, candle)
	e.executor.MarkToMarket(e.symbol, candle)

	e.rollDay(candle.Timestamp)

	if len(e.candles) < e.warmupBars() {
		return nil
	}

	if e.checkCircuitBreakers(ctx, candle.Timestamp) {
		return nil
	}
	if e.paused(candle.Timestamp) || e.executor.IsTradingPaused(candle.Timestamp) {
		return nil
	}

	pos, err := e.executor.GetPosition(ctx, e.symbol)
	if err != nil {
		return fmt.Errorf("fetching position for %s: %w", e.symbol, err)
	}

	sctx := &ports.StrategyContext{
		Symbol:    e.symbol,
		Timeframe: e.timeframe,
		Candles:   e.candles,
		Market:    e.buildMarketContext(),
		Portfolio: e.executor.GetState(),
		Position:  pos,
	}
	signal := e.strategy.Evaluate(ctx, sctx)

	switch signal.Action {
	case domain.SignalBuy, domain.SignalSell:
		if err := e.handleEntry(ctx, signal, pos, candle); err != nil {
			return err
		}
	case domain.SignalClose:
		if err := e.handleClose(ctx, pos, signal.Reason); err != nil {
			return err
		}
	}

	return e.maintainStop(ctx)
}

// rollDay resets the per-day counters at each UTC date boundary.
func (e *Engine) rollDay(ts int64) {
	key := time.UnixMilli(ts).UTC().Format("2006-01-02")
	if key == e.dayKey {
		return
	}
	e.dayKey = key
	e.dayStartEquity = e.executor.GetState().Equity
	e.tradesToday = 0
	e.pausedUntil = 0
}

// dayPnLPct is today's equity change relative to the day-open equity.
func (e *Engine) dayPnLPct() float64 {
	if e.dayStartEquity <= 0 {
		return 0
	}
	eq := e.executor.GetState().Equity
	return (eq - e.dayStartEquity) / e.dayStartEquity * 100
}

// checkCircuitBreakers trips the daily loss stop, profit stop and trade
// cap, in that order. Tripping pauses both the governor and the executor
// until the next UTC midnight and reports true.
func (e *Engine) checkCircuitBreakers(ctx context.Context, ts int64) bool {
	if e.paused(ts) {
		return true
	}

	pnl := e.dayPnLPct()
	if e.cfg.lossStopEnabled() && pnl <= -e.cfg.DailyLossStopPct {
		e.pause(ctx, ts, "daily_loss_stop", pnl)
		return true
	}
	if e.cfg.profitStopEnabled() && pnl >= e.cfg.DailyProfitStopPct {
		e.pause(ctx, ts, "daily_profit_stop", pnl)
		return true
	}
	if e.cfg.MaxTradesPerDay > 0 && e.tradesToday >= e.cfg.MaxTradesPerDay {
		e.pause(ctx, ts, "trade_cap", pnl)
		return true
	}
	return false
}

func (e *Engine) pause(ctx context.Context, ts int64, reason string, pnl float64) {
	e.pausedUntil = nextUTCMidnight(ts)
	e.executor.PauseUntilNextDay(ts)
	e.logger.Warn(ctx, "Trading paused for the rest of the day", map[string]interface{}{
		"symbol":    e.symbol,
		"reason":    reason,
		"dayPnLPct": pnl,
	})
}

func (e *Engine) paused(ts int64) bool {
	return e.pausedUntil != 0 && ts < e.pausedUntil
}

// handleEntry applies the trend filter, suppresses same-side re-entries,
// sizes the order off ATR and places a market order.
func (e *Engine) handleEntry(ctx context.Context, signal domain.Signal, pos *domain.Position, candle domain.Candle) error {
	side := domain.Buy
	if signal.Action == domain.SignalSell {
		side = domain.Sell
	}

	if !e.trendAllows(side, candle.Close) {
		return nil
	}
	if pos != nil && domain.SideForQty(pos.Quantity) == sideToPositionSide(side) {
		return nil
	}

	qty := e.positionSize(candle.Close)
	if qty <= 0 {
		return nil
	}
	// Opposite position open: fold its size into the order so one fill
	// flips the position instead of leaving a partial reduce.
	if pos != nil && pos.Quantity != 0 {
		qty += pos.AbsQuantity()
	}

	res, err := e.executor.Place(ctx, domain.OrderRequest{
		Symbol:   e.symbol,
		Side:     side,
		Type:     domain.OrderTypeMarket,
		Quantity: qty,
	})
	if err != nil {
		return fmt.Errorf("placing %s entry for %s: %w", side, e.symbol, err)
	}
	if res.Status == domain.OrderStatusCanceled {
		return nil
	}

	e.tradesToday++
	e.logger.Info(ctx, "Entry order placed", map[string]interface{}{
		"symbol":  e.symbol,
		"side":    side,
		"qty":     qty,
		"reason":  signal.Reason,
		"orderId": res.ID,
	})
	return nil
}

// handleClose flattens the open position with a reduce-only market order.
func (e *Engine) handleClose(ctx context.Context, pos *domain.Position, reason string) error {
	if pos == nil || pos.Quantity == 0 {
		return nil
	}
	side := domain.Sell
	if !pos.IsLong() {
		side = domain.Buy
	}
	_, err := e.executor.Place(ctx, domain.OrderRequest{
		Symbol:     e.symbol,
		Side:       side,
		Type:       domain.OrderTypeMarket,
		Quantity:   pos.AbsQuantity(),
		ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("closing %s position: %w", e.symbol, err)
	}
	e.logger.Info(ctx, "Close order placed", map[string]interface{}{
		"symbol": e.symbol,
		"reason": reason,
	})
	return nil
}

// positionSize converts the configured equity risk into a quantity using
// the ATR stop distance, floored at a fraction of price, truncated to
// 0.001 precision.
func (e *Engine) positionSize(price float64) float64 {
	equity := e.executor.GetState().Equity
	if equity <= 0 || price <= 0 {
		return 0
	}

	riskPct := e.effectiveRiskPct(equity)
	if riskPct <= 0 {
		return 0
	}

	atr := e.currentATR()
	stopDistance := atr * e.cfg.DefaultATRMult
	if min := price * minStopDistanceFrac; !(stopDistance > min) {
		stopDistance = min
	}

	qty := equity * riskPct / stopDistance
	return math.Floor(qty*1000) / 1000
}

// effectiveRiskPct shrinks the per-trade risk so the remaining daily loss
// budget spread over the remaining trade allowance is never exceeded.
func (e *Engine) effectiveRiskPct(equity float64) float64 {
	risk := e.cfg.RiskPct
	if !e.cfg.DynamicRiskScaling || !e.cfg.lossStopEnabled() || e.cfg.MaxTradesPerDay <= 0 {
		return risk
	}

	budget := e.cfg.DailyLossStopPct/100 + e.dayPnLPct()/100
	if budget <= 0 {
		return 0
	}
	remaining := e.cfg.MaxTradesPerDay - e.tradesToday
	if remaining < 1 {
		remaining = 1
	}
	if scaled := budget / float64(remaining); scaled < risk {
		risk = scaled
	}
	return risk
}

// maintainStop ratchets the protective ATR stop under the open position,
// or clears it when flat.
func (e *Engine) maintainStop(ctx context.Context) error {
	if !e.cfg.HardStop.Enabled {
		return nil
	}

	pos, err := e.executor.GetPosition(ctx, e.symbol)
	if err != nil {
		return fmt.Errorf("fetching position for stop maintenance: %w", err)
	}
	if pos == nil || pos.Quantity == 0 {
		e.executor.ClearProtectiveStop(e.symbol)
		return nil
	}

	atr := e.atrFor(e.cfg.HardStop.ATRPeriod)
	if !isFinite(atr) || atr <= 0 {
		return nil
	}

	dist := atr * e.cfg.HardStop.ATRMult
	var stop float64
	side := domain.SideForQty(pos.Quantity)
	if side == domain.Long {
		stop = pos.EntryPrice - dist
	} else {
		stop = pos.EntryPrice + dist
	}
	e.executor.SetProtectiveStop(e.symbol, side, stop, e.cfg.HardStop.NeverLoosen)
	return nil
}

// trendAllows applies the moving-average trend filter to an entry side.
func (e *Engine) trendAllows(side domain.OrderSide, close float64) bool {
	tf := e.cfg.TrendFilter
	if !tf.Enabled || tf.Period <= 0 {
		return true
	}
	if tf.Bias == "long" && side == domain.Sell {
		return false
	}
	if tf.Bias == "short" && side == domain.Buy {
		return false
	}

	// An unusable reference blocks the entry rather than waving it through.
	ma := e.trendMA(tf)
	if !isFinite(ma) {
		return false
	}
	if side == domain.Buy {
		return close >= ma
	}
	return close <= ma
}

func (e *Engine) trendMA(tf TrendFilterConfig) float64 {
	closes := indicators.Closes(e.candles)
	var series []float64
	if tf.Kind == TrendFilterEMA {
		series = indicators.EMA(closes, tf.Period)
	} else {
		series = indicators.SMA(closes, tf.Period)
	}
	return indicators.Last(series)
}

func (e *Engine) currentATR() float64 {
	atr := e.atrFor(e.cfg.HardStop.ATRPeriod)
	if isFinite(atr) {
		return atr
	}
	return 0
}

func (e *Engine) atrFor(period int) float64 {
	if period <= 0 || len(e.candles) <= period {
		return math.NaN()
	}
	return indicators.Last(indicators.ATR(e.candles, period))
}

// buildMarketContext precomputes shared indicator state for strategies.
func (e *Engine) buildMarketContext() domain.MarketContext {
	closes := indicators.Closes(e.candles)
	last := closes[len(closes)-1]

	ema := make(map[int]float64)
	for _, p := range []int{50, 200} {
		if v := indicators.Last(indicators.EMA(closes, p)); isFinite(v) {
			ema[p] = v
		}
	}

	volATR := 0.0
	if atr := e.currentATR(); last > 0 {
		volATR = atr / last
	}

	mc := domain.MarketContext{
		TrendHTF: trendFromEMA(ema, last),
		TrendLTF: trendFromEMA(ema, last),
		VolATR:   volATR,
		Regime:   classifyRegime(ema, volATR),
		EMA:      ema,
	}
	return mc
}

func trendFromEMA(ema map[int]float64, last float64) domain.Trend {
	fast, okF := ema[50]
	slow, okS := ema[200]
	if !okF || !okS {
		return domain.TrendRange
	}
	switch {
	case fast > slow && last > fast:
		return domain.TrendUp
	case fast < slow && last < fast:
		return domain.TrendDown
	default:
		return domain.TrendRange
	}
}

func classifyRegime(ema map[int]float64, volATR float64) domain.Regime {
	if volATR > 0.03 {
		return domain.RegimeVolatile
	}
	fast, okF := ema[50]
	slow, okS := ema[200]
	if okF && okS && slow > 0 && math.Abs(fast-slow)/slow > 0.01 {
		return domain.RegimeTrending
	}
	return domain.RegimeRanging
}

func (e *Engine) warmupBars() int {
	n := minWarmupBars
	if r := e.strategy.RequiredDataPoints(); r > n {
		n = r
	}
	if tf := e.cfg.TrendFilter; tf.Enabled && tf.Period+1 > n {
		n = tf.Period + 1
	}
	if hs := e.cfg.HardStop; hs.Enabled && hs.ATRPeriod+1 > n {
		n = hs.ATRPeriod + 1
	}
	return n
}

func sideToPositionSide(side domain.OrderSide) domain.PositionSide {
	if side == domain.Buy {
		return domain.Long
	}
	return domain.Short
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nextUTCMidnight(ts int64) int64 {
	t := time.UnixMilli(ts).UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(24 * time.Hour).UnixMilli()
}
