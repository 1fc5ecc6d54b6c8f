// Package sim implements the in-memory USDT-M futures execution simulator:
// one-way mode, cross margin, signed position quantities (>0 long,
// <0 short). Orders are matched against the simulator's own OHLC bars,
// never against an order book.
package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/ports"
	"github.com/saygoodluck/trading-bot/internal/stops"
)

// ExecMode selects when MARKET orders are filled.
type ExecMode string

const (
	// ExecModeImmediate fills MARKET orders at the decision-time mark.
	ExecModeImmediate ExecMode = "immediate"
	// ExecModeNextOpen queues MARKET orders and fills them at the next
	// bar's open, modeling slippage against stale decision-time prices.
	ExecModeNextOpen ExecMode = "market_next_open"
)

// Config holds the simulator's account and fee parameters.
type Config struct {
	StartCash             float64
	Leverage              int
	TakerFee              float64
	MakerFee              float64
	MaintenanceMarginRate float64
	LiquidationFee        float64
	ExecMode              ExecMode
}

// DefaultConfig returns the reference simulator configuration.
func DefaultConfig() Config {
	return Config{
		StartCash:             1000,
		Leverage:              10,
		TakerFee:              0.0004,
		MakerFee:              0.0002,
		MaintenanceMarginRate: 0.005,
		LiquidationFee:        0.0005,
		ExecMode:              ExecModeNextOpen,
	}
}

// pendingOrder is an order resting inside the simulator.
type pendingOrder struct {
	id  string
	req domain.OrderRequest
}

// Executor is the bar-driven futures simulator. It implements
// ports.OrderExecutor. Not safe for concurrent use: bars for one run must
// be processed by a single goroutine in timestamp order.
type Executor struct {
	cfg    Config
	ledger *Ledger
	stops  *stops.Manager
	logger ports.Logger

	clock       int64
	pausedUntil int64 // 0 = not paused

	pendingNextOpen map[string][]pendingOrder
	pendingOthers   map[string][]pendingOrder
}

var _ ports.OrderExecutor = (*Executor)(nil)

// NewExecutor creates a simulator with the given configuration.
func NewExecutor(cfg Config, logger ports.Logger) *Executor {
	return &Executor{
		cfg:             cfg,
		ledger:          NewLedger(cfg.StartCash, cfg.Leverage),
		stops:           stops.NewManager(),
		logger:          logger,
		pendingNextOpen: make(map[string][]pendingOrder),
		pendingOthers:   make(map[string][]pendingOrder),
	}
}

// Ledger exposes the underlying portfolio ledger for inspection.
func (e *Executor) Ledger() *Ledger { return e.ledger }

func newOrderID() string {
	return ulid.Make().String()
}

// Place submits an order against the simulator.
//
// The symbol must have been marked at least once; placing against an
// unmarked symbol indicates the caller skipped MarkToMarket and fails with
// ports.ErrNoMarkPrice. Paused trading and unsatisfiable reduce-only
// requests produce a CANCELED result, not an error.
func (e *Executor) Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	mark, ok := e.ledger.LastPrice(req.Symbol)
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("%w: %s", ports.ErrNoMarkPrice, req.Symbol)
	}

	canceled := domain.OrderResult{ID: newOrderID(), Symbol: req.Symbol, Status: domain.OrderStatusCanceled}

	if e.IsTradingPaused(e.clock) {
		return canceled, nil
	}
	if req.Quantity <= 0 {
		return canceled, nil
	}

	if req.ReduceOnly {
		pos := e.ledger.Position(req.Symbol)
		if pos == nil || sameSign(pos.Quantity, req.Side.Sign()) {
			return canceled, nil
		}
		closable := math.Min(req.Quantity, pos.AbsQuantity())
		if closable <= 0 {
			return canceled, nil
		}
		req.Quantity = closable
	}

	if req.Type == domain.OrderTypeMarket {
		if e.cfg.ExecMode == ExecModeImmediate {
			return e.fillNow(req, mark, "immediate"), nil
		}
		po := pendingOrder{id: newOrderID(), req: req}
		e.pendingNextOpen[req.Symbol] = append(e.pendingNextOpen[req.Symbol], po)
		return domain.OrderResult{ID: po.id, Symbol: req.Symbol, Status: domain.OrderStatusNew}, nil
	}

	// LIMIT / STOP_MARKET / TAKE_PROFIT rest until a bar reaches them.
	po := pendingOrder{id: newOrderID(), req: req}
	e.pendingOthers[req.Symbol] = append(e.pendingOthers[req.Symbol], po)
	return domain.OrderResult{ID: po.id, Symbol: req.Symbol, Status: domain.OrderStatusNew}, nil
}

// Cancel removes a resting order by ID. Unknown IDs are ignored.
func (e *Executor) Cancel(_ context.Context, id, symbol string) error {
	e.pendingNextOpen[symbol] = removeOrder(e.pendingNextOpen[symbol], id)
	e.pendingOthers[symbol] = removeOrder(e.pendingOthers[symbol], id)
	return nil
}

func removeOrder(queue []pendingOrder, id string) []pendingOrder {
	for i, po := range queue {
		if po.id == id {
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}

// GetState returns the current portfolio snapshot.
func (e *Executor) GetState() domain.PortfolioState {
	return e.ledger.State()
}

// GetPosition returns a copy of the open position with its unrealized PnL
// at the last mark, or nil when flat.
func (e *Executor) GetPosition(_ context.Context, symbol string) (*domain.Position, error) {
	pos := e.ledger.Position(symbol)
	if pos == nil {
		return nil, nil
	}
	cp := *pos
	cp.UnrealPnL = e.ledger.unrealized(pos)
	return &cp, nil
}

// MarkToMarket advances the clock to the bar and resolves, in this fixed
// order: (1) queued next-open MARKET orders at the open; (2) protective
// stop gap-through at the open; (3) intrabar protective stop at the exact
// stop price; (4) resting LIMIT/STOP/TAKE_PROFIT orders against high/low;
// (5) the close becomes the new mark, liquidation is checked, and an
// equity sample is pushed. This ordering guarantees a stop cannot be
// missed because a same-bar limit order filled first, and that voluntary
// exits take priority over forced liquidation.
func (e *Executor) MarkToMarket(symbol string, candle domain.Candle) {
	e.clock = candle.Timestamp
	if e.pausedUntil != 0 && candle.Timestamp >= e.pausedUntil {
		e.pausedUntil = 0
	}

	// 1) next-open MARKET orders fill at the open.
	for _, po := range e.pendingNextOpen[symbol] {
		e.execMarket(symbol, po.req.Side, po.req.Quantity, candle.Open, e.cfg.TakerFee, "next_open")
	}
	e.pendingNextOpen[symbol] = nil

	// 2) gap-through stop: the bar opened at or beyond the stop, so the
	// fill is the worse of open and stop price.
	if pos, stop, ok := e.armedStop(symbol); ok {
		if pos.IsLong() && candle.Low <= stop.Price {
			e.closeAll(symbol, math.Min(candle.Open, stop.Price), "gap_stop_long")
		} else if !pos.IsLong() && candle.High >= stop.Price {
			e.closeAll(symbol, math.Max(candle.Open, stop.Price), "gap_stop_short")
		}
	}

	// 3) intrabar stop: the bar traded through the level, fill exactly at
	// the stop price.
	if pos, stop, ok := e.armedStop(symbol); ok {
		if candle.Low <= stop.Price && stop.Price <= candle.High {
			if pos.IsLong() {
				e.closeAll(symbol, stop.Price, "stop_long")
			} else {
				e.closeAll(symbol, stop.Price, "stop_short")
			}
		}
	}

	// 4) resting LIMIT / STOP_MARKET / TAKE_PROFIT orders.
	var still []pendingOrder
	for _, po := range e.pendingOthers[symbol] {
		price, feeRate, ok := triggerPrice(po.req, candle)
		if !ok {
			still = append(still, po)
			continue
		}
		e.execMarket(symbol, po.req.Side, po.req.Quantity, price, feeRate, string(po.req.Type))
	}
	e.pendingOthers[symbol] = still

	// 5) close becomes the mark; forced liquidation runs only after all
	// voluntary exits above.
	e.ledger.MarkPrice(symbol, candle.Close)
	e.checkLiquidation(symbol, candle.Close)
	e.ledger.PushEquity(candle.Timestamp)
}

// triggerPrice decides whether a resting order fills inside the bar and at
// what price/fee rate. Resting limits fill as maker, triggered stops as
// taker.
func triggerPrice(req domain.OrderRequest, candle domain.Candle) (price, feeRate float64, ok bool) {
	switch req.Type {
	case domain.OrderTypeLimit:
		if req.Side == domain.Buy && candle.Low <= req.Price {
			return req.Price, -1, true
		}
		if req.Side == domain.Sell && candle.High >= req.Price {
			return req.Price, -1, true
		}
	case domain.OrderTypeStopMarket, domain.OrderTypeTakeProfit:
		if req.Side == domain.Buy && candle.High >= req.StopPrice {
			return req.StopPrice, 0, true
		}
		if req.Side == domain.Sell && candle.Low <= req.StopPrice {
			return req.StopPrice, 0, true
		}
	}
	return 0, 0, false
}

// armedStop returns the position and protective stop for a symbol when
// both exist and agree on direction. A direction mismatch is stale risk
// state and clears the stop.
func (e *Executor) armedStop(symbol string) (*domain.Position, stops.Stop, bool) {
	pos := e.ledger.Position(symbol)
	stop, ok := e.stops.Get(symbol)
	if pos == nil || !ok || pos.Quantity == 0 {
		return nil, stops.Stop{}, false
	}
	if domain.SideForQty(pos.Quantity) != stop.Side {
		e.stops.Clear(symbol)
		return nil, stops.Stop{}, false
	}
	return pos, stop, true
}

// execMarket executes one fill through the ledger. feeRate < 0 selects the
// maker rate. A fill that closes or flips the position invalidates the
// protective stop.
func (e *Executor) execMarket(symbol string, side domain.OrderSide, qty, price, feeRate float64, note string) FillOutcome {
	if qty <= 0 {
		return FillOutcome{}
	}
	rate := feeRate
	switch {
	case rate < 0:
		rate = e.cfg.MakerFee
	case rate == 0:
		rate = e.cfg.TakerFee
	}
	fee := qty * price * rate

	out := e.ledger.ApplyFill(e.clock, symbol, side, qty, price, fee, note)
	if out.ClosedAll || out.Flipped {
		e.stops.Clear(symbol)
	}
	return out
}

// closeAll closes the whole position at price as a taker fill.
func (e *Executor) closeAll(symbol string, price float64, note string) {
	pos := e.ledger.Position(symbol)
	if pos == nil || pos.Quantity == 0 {
		return
	}
	side := domain.Sell
	if !pos.IsLong() {
		side = domain.Buy
	}
	e.execMarket(symbol, side, pos.AbsQuantity(), price, e.cfg.TakerFee, note)
	e.stops.Clear(symbol)
}

// checkLiquidation force-closes the position at the mark when equity no
// longer covers the maintenance margin, charging the liquidation fee on
// top of the taker fee.
func (e *Executor) checkLiquidation(symbol string, mark float64) {
	pos := e.ledger.Position(symbol)
	if pos == nil || pos.Quantity == 0 {
		return
	}
	notional := pos.AbsQuantity() * mark
	if e.ledger.Equity() > notional*e.cfg.MaintenanceMarginRate+1e-8 {
		return
	}

	penalty := notional * e.cfg.LiquidationFee
	e.closeAll(symbol, mark, "liquidation")
	e.ledger.DebitFee(penalty)
	if e.logger != nil {
		e.logger.Warn(context.Background(), "Position liquidated", map[string]interface{}{
			"symbol": symbol, "mark": mark, "penalty": penalty,
		})
	}
}

// SetProtectiveStop installs or ratchets the protective stop for a symbol.
func (e *Executor) SetProtectiveStop(symbol string, side domain.PositionSide, price float64, neverLoosen bool) {
	e.stops.Set(symbol, side, price, neverLoosen)
}

// ClearProtectiveStop removes the protective stop for a symbol.
func (e *Executor) ClearProtectiveStop(symbol string) {
	e.stops.Clear(symbol)
}

// EnforceProtectiveStop is a no-op: stops are resolved inside MarkToMarket
// against the full OHLC, which already covers gap and intrabar triggers.
func (e *Executor) EnforceProtectiveStop(string, domain.Candle) {}

// IsTradingPaused reports whether new orders are rejected at ts.
func (e *Executor) IsTradingPaused(ts int64) bool {
	return e.pausedUntil != 0 && ts < e.pausedUntil
}

// PauseUntilNextDay rejects new orders until the next UTC midnight after ts.
// Orders already resting are left in place; callers wanting hard
// cancellation must Cancel them explicitly.
func (e *Executor) PauseUntilNextDay(ts int64) {
	e.pausedUntil = nextUTCMidnight(ts)
}

// DayPnLPct always returns zero: daily PnL bookkeeping lives in the risk
// governor for simulator runs.
func (e *Executor) DayPnLPct(int64) float64 { return 0 }

// Report returns the accumulated run report. It reads ledger state only
// and is idempotent between fills.
func (e *Executor) Report() ports.Report {
	endEq := e.ledger.Equity()
	start := e.ledger.EquityStart()
	trades := e.ledger.Trades()
	return ports.Report{
		Summary: ports.ReportSummary{
			EquityStart:    start,
			EquityEnd:      endEq,
			ReturnPct:      (endEq - start) / start * 100,
			Trades:         len(trades),
			RealizedPnL:    e.ledger.RealizedPnL(),
			MaxDrawdownPct: e.ledger.MaxDrawdownPct(),
		},
		Trades:      trades,
		EquityCurve: e.ledger.EquityCurve(),
	}
}

// fillNow executes a MARKET order immediately at the mark as a taker.
func (e *Executor) fillNow(req domain.OrderRequest, mark float64, note string) domain.OrderResult {
	e.execMarket(req.Symbol, req.Side, req.Quantity, mark, e.cfg.TakerFee, note)
	return domain.OrderResult{
		ID:          newOrderID(),
		Symbol:      req.Symbol,
		Status:      domain.OrderStatusFilled,
		ExecutedQty: req.Quantity,
		AvgPrice:    mark,
	}
}

// nextUTCMidnight returns the first UTC midnight strictly after ts.
func nextUTCMidnight(ts int64) int64 {
	t := time.UnixMilli(ts).UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(24 * time.Hour).UnixMilli()
}
