package binanceclient

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/ports"
	"github.com/saygoodluck/trading-bot/internal/stops"
)

// fillPollAttempts bounds how long Place waits for a market order to fill
// before reporting ErrOrderNotFilled.
const fillPollAttempts = 10

// LiveExecutor implements ports.OrderExecutor against the real exchange.
// Protective stops are mirrored exchange-side as STOP_MARKET close-position
// orders so they survive process restarts.
type LiveExecutor struct {
	client   *Client
	logger   ports.Logger
	trades   ports.TradeRepository
	equities ports.EquityRepository

	mu          sync.Mutex
	stops       *stops.Manager
	stopOrders  map[string]int64 // exchange order ID of the mirrored stop
	marks       map[string]float64
	quantityLot map[string]float64 // qty step size per symbol
	pausedUntil int64
	dayKey      string
	dayStartEq  float64
	startEquity float64
}

var _ ports.OrderExecutor = (*LiveExecutor)(nil)

// NewLiveExecutor wires a live executor around an authenticated client.
// The repositories may be nil, disabling journaling.
func NewLiveExecutor(client *Client, trades ports.TradeRepository, equities ports.EquityRepository) (*LiveExecutor, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: binance client is required", ports.ErrConfigurationError)
	}
	return &LiveExecutor{
		client:      client,
		logger:      client.logger,
		trades:      trades,
		equities:    equities,
		stops:       stops.NewManager(),
		stopOrders:  make(map[string]int64),
		marks:       make(map[string]float64),
		quantityLot: make(map[string]float64),
	}, nil
}

// Place submits an order to the exchange. Market orders are polled until
// filled; giving up after the poll budget returns ErrOrderNotFilled.
func (e *LiveExecutor) Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if e.IsTradingPaused(time.Now().UnixMilli()) {
		return domain.OrderResult{Symbol: req.Symbol, Status: domain.OrderStatusCanceled}, nil
	}

	qty, err := e.roundToLot(ctx, req.Symbol, req.Quantity)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if qty <= 0 {
		return domain.OrderResult{Symbol: req.Symbol, Status: domain.OrderStatusCanceled}, nil
	}

	svc := e.client.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Quantity(formatQty(qty))

	switch req.Type {
	case domain.OrderTypeMarket:
		svc = svc.Type(futures.OrderTypeMarket)
	case domain.OrderTypeLimit:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(req.Price, 'f', -1, 64))
	case domain.OrderTypeStopMarket:
		svc = svc.Type(futures.OrderTypeStopMarket).
			StopPrice(strconv.FormatFloat(req.StopPrice, 'f', -1, 64))
	case domain.OrderTypeTakeProfit:
		svc = svc.Type(futures.OrderTypeTakeProfitMarket).
			StopPrice(strconv.FormatFloat(req.StopPrice, 'f', -1, 64))
	default:
		return domain.OrderResult{}, fmt.Errorf("%w: unsupported order type %q", ports.ErrOrderPlacementFailed, req.Type)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderResult{}, e.client.handleError(ctx, err, "Place")
	}

	res := domain.OrderResult{
		ID:     strconv.FormatInt(order.OrderID, 10),
		Symbol: req.Symbol,
		Status: domain.OrderStatus(order.Status),
	}
	if req.Type != domain.OrderTypeMarket {
		return res, nil
	}

	filled, err := e.waitUntilFilled(ctx, req.Symbol, order.OrderID)
	if err != nil {
		return res, err
	}
	res.Status = domain.OrderStatusFilled
	res.ExecutedQty, _ = strconv.ParseFloat(filled.ExecutedQuantity, 64)
	res.AvgPrice, _ = strconv.ParseFloat(filled.AvgPrice, 64)
	e.journalFill(ctx, req, res)
	return res, nil
}

// waitUntilFilled polls the order status with exponential backoff.
func (e *LiveExecutor) waitUntilFilled(ctx context.Context, symbol string, orderID int64) (*futures.Order, error) {
	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 3 * time.Second, Factor: 2, Jitter: true}
	for attempt := 0; attempt < fillPollAttempts; attempt++ {
		order, err := e.client.futuresClient.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
		if err != nil {
			return nil, e.client.handleError(ctx, err, "waitUntilFilled")
		}
		switch order.Status {
		case futures.OrderStatusTypeFilled:
			return order, nil
		case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeRejected, futures.OrderStatusTypeExpired:
			return nil, fmt.Errorf("%w: order %d ended as %s", ports.ErrOrderNotFilled, orderID, order.Status)
		}
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: order %d still unfilled after %d polls", ports.ErrOrderNotFilled, orderID, fillPollAttempts)
}

func (e *LiveExecutor) journalFill(ctx context.Context, req domain.OrderRequest, res domain.OrderResult) {
	if e.trades == nil {
		return
	}
	_, err := e.trades.SaveTrade(ctx, &domain.Trade{
		Timestamp: time.Now().UnixMilli(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  res.ExecutedQty,
		Price:     res.AvgPrice,
		Note:      "live",
	})
	if err != nil {
		e.logger.Error(ctx, err, "Failed to journal fill", map[string]interface{}{"symbol": req.Symbol})
	}
}

// Cancel cancels an open order by its exchange ID.
func (e *LiveExecutor) Cancel(ctx context.Context, id, symbol string) error {
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed order id %q", ports.ErrOrderNotFound, id)
	}
	if _, err := e.client.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx); err != nil {
		return e.client.handleError(ctx, err, "Cancel")
	}
	return nil
}

// GetState returns a snapshot from the exchange account endpoint.
func (e *LiveExecutor) GetState() domain.PortfolioState {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	account, err := e.client.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		e.client.handleError(ctx, err, "GetState")
		return domain.PortfolioState{}
	}
	equity, _ := strconv.ParseFloat(account.TotalMarginBalance, 64)
	cash, _ := strconv.ParseFloat(account.TotalWalletBalance, 64)
	margin, _ := strconv.ParseFloat(account.TotalPositionInitialMargin, 64)
	free, _ := strconv.ParseFloat(account.AvailableBalance, 64)
	return domain.PortfolioState{Equity: equity, Cash: cash, MarginUsed: margin, FreeMargin: free}
}

// GetPosition returns the open position reported by the exchange, nil when
// flat.
func (e *LiveExecutor) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	positions, err := e.client.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, e.client.handleError(ctx, err, "GetPosition")
	}
	if len(positions) == 0 {
		return nil, nil
	}
	p := positions[0]
	qty, _ := strconv.ParseFloat(p.PositionAmt, 64)
	if qty == 0 {
		return nil, nil
	}
	entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
	unreal, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
	return &domain.Position{
		Symbol:     symbol,
		Side:       domain.SideForQty(qty),
		Quantity:   qty,
		EntryPrice: entry,
		UnrealPnL:  unreal,
	}, nil
}

// MarkToMarket records the close as the last mark, rolls the daily PnL
// anchor and journals an equity sample. Order matching happens on the
// exchange, not here.
func (e *LiveExecutor) MarkToMarket(symbol string, candle domain.Candle) {
	e.mu.Lock()
	e.marks[symbol] = candle.Close
	if e.pausedUntil != 0 && candle.Timestamp >= e.pausedUntil {
		e.pausedUntil = 0
	}
	e.mu.Unlock()

	state := e.GetState()

	e.mu.Lock()
	if e.startEquity == 0 {
		e.startEquity = state.Equity
	}
	day := time.UnixMilli(candle.Timestamp).UTC().Format("2006-01-02")
	if day != e.dayKey {
		e.dayKey = day
		e.dayStartEq = state.Equity
	}
	e.mu.Unlock()

	if e.equities != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.equities.SaveEquityPoint(ctx, domain.EquityPoint{Timestamp: candle.Timestamp, Equity: state.Equity}); err != nil {
			e.logger.Error(ctx, err, "Failed to journal equity point")
		}
	}
}

// SetProtectiveStop ratchets the local stop record and mirrors any change
// as an exchange-side STOP_MARKET close-position order.
func (e *LiveExecutor) SetProtectiveStop(symbol string, side domain.PositionSide, price float64, neverLoosen bool) {
	e.mu.Lock()
	before, hadBefore := e.stops.Get(symbol)
	e.stops.Set(symbol, side, price, neverLoosen)
	after, _ := e.stops.Get(symbol)
	unchanged := hadBefore && before == after
	prevOrder := e.stopOrders[symbol]
	e.mu.Unlock()

	if unchanged {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if prevOrder != 0 {
		if _, err := e.client.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(prevOrder).Do(ctx); err != nil {
			e.client.handleError(ctx, err, "SetProtectiveStop cancel previous")
		}
	}

	closeSide := futures.SideTypeSell
	if side == domain.Short {
		closeSide = futures.SideTypeBuy
	}
	order, err := e.client.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(closeSide).
		Type(futures.OrderTypeStopMarket).
		StopPrice(strconv.FormatFloat(after.Price, 'f', -1, 64)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		e.client.handleError(ctx, err, "SetProtectiveStop place")
		return
	}

	e.mu.Lock()
	e.stopOrders[symbol] = order.OrderID
	e.mu.Unlock()
	e.logger.Info(ctx, "Protective stop mirrored on exchange", map[string]interface{}{
		"symbol": symbol, "stopPrice": after.Price, "orderID": order.OrderID,
	})
}

// ClearProtectiveStop removes the local record and cancels the mirrored
// exchange order.
func (e *LiveExecutor) ClearProtectiveStop(symbol string) {
	e.mu.Lock()
	e.stops.Clear(symbol)
	orderID := e.stopOrders[symbol]
	delete(e.stopOrders, symbol)
	e.mu.Unlock()

	if orderID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := e.client.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx); err != nil {
		e.client.handleError(ctx, err, "ClearProtectiveStop")
	}
}

// EnforceProtectiveStop is a no-op: the mirrored STOP_MARKET order is
// matched by the exchange itself.
func (e *LiveExecutor) EnforceProtectiveStop(string, domain.Candle) {}

// IsTradingPaused reports whether order placement is rejected at ts.
func (e *LiveExecutor) IsTradingPaused(ts int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pausedUntil != 0 && ts < e.pausedUntil
}

// PauseUntilNextDay rejects new orders until the next UTC midnight.
func (e *LiveExecutor) PauseUntilNextDay(ts int64) {
	t := time.UnixMilli(ts).UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	e.mu.Lock()
	e.pausedUntil = midnight.UnixMilli()
	e.mu.Unlock()
}

// DayPnLPct returns today's equity change against the day-open anchor.
func (e *LiveExecutor) DayPnLPct(int64) float64 {
	e.mu.Lock()
	anchor := e.dayStartEq
	e.mu.Unlock()
	if anchor <= 0 {
		return 0
	}
	return (e.GetState().Equity - anchor) / anchor * 100
}

// Report assembles a run report from the journals and the current account
// state.
func (e *LiveExecutor) Report() ports.Report {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state := e.GetState()
	e.mu.Lock()
	start := e.startEquity
	e.mu.Unlock()

	report := ports.Report{
		Summary: ports.ReportSummary{
			EquityStart: start,
			EquityEnd:   state.Equity,
		},
	}
	if start > 0 {
		report.Summary.ReturnPct = (state.Equity - start) / start * 100
	}
	if e.equities != nil {
		if curve, err := e.equities.EquityCurve(ctx); err == nil {
			report.EquityCurve = curve
			report.Summary.MaxDrawdownPct = maxDrawdown(curve)
		}
	}
	return report
}

func maxDrawdown(curve []domain.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if dd := (peak - p.Equity) / math.Max(peak, 1); dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD * 100
}

// roundToLot truncates the quantity to the symbol's lot step size, fetched
// once and cached.
func (e *LiveExecutor) roundToLot(ctx context.Context, symbol string, qty float64) (float64, error) {
	e.mu.Lock()
	step, ok := e.quantityLot[symbol]
	e.mu.Unlock()

	if !ok {
		info, err := e.client.futuresClient.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return 0, e.client.handleError(ctx, err, "roundToLot")
		}
		step = 0.001
		for _, s := range info.Symbols {
			if s.Symbol != symbol {
				continue
			}
			if f := s.LotSizeFilter(); f != nil {
				if parsed, err := strconv.ParseFloat(f.StepSize, 64); err == nil && parsed > 0 {
					step = parsed
				}
			}
		}
		e.mu.Lock()
		e.quantityLot[symbol] = step
		e.mu.Unlock()
	}

	return math.Floor(qty/step) * step, nil
}

func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}
