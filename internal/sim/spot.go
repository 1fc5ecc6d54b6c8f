package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/oklog/ulid/v2"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/ports"
	"github.com/saygoodluck/trading-bot/internal/stops"
)

// SpotExecutor is a simplified cash-account simulator: no leverage, no
// short selling, no liquidation, market orders only, filled immediately at
// the last mark. It exists for strategy experiments where futures margin
// mechanics would only add noise.
type SpotExecutor struct {
	ledger *Ledger
	stops  *stops.Manager
	fee    float64
	clock  int64
}

var _ ports.OrderExecutor = (*SpotExecutor)(nil)

// NewSpotExecutor creates a spot simulator with the given starting cash
// and a single flat fee rate applied to every fill.
func NewSpotExecutor(startCash, feeRate float64) *SpotExecutor {
	return &SpotExecutor{
		ledger: NewLedger(startCash, 1),
		stops:  stops.NewManager(),
		fee:    feeRate,
	}
}

// Place fills a MARKET order at the last mark. Non-market order types and
// sells exceeding the held quantity are canceled.
func (s *SpotExecutor) Place(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	mark, ok := s.ledger.LastPrice(req.Symbol)
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("%w: %s", ports.ErrNoMarkPrice, req.Symbol)
	}

	canceled := domain.OrderResult{ID: ulid.Make().String(), Symbol: req.Symbol, Status: domain.OrderStatusCanceled}
	if req.Type != domain.OrderTypeMarket || req.Quantity <= 0 {
		return canceled, nil
	}

	qty := req.Quantity
	if req.Side == domain.Sell {
		pos := s.ledger.Position(req.Symbol)
		if pos == nil || pos.Quantity <= 0 {
			return canceled, nil
		}
		qty = math.Min(qty, pos.Quantity)
	} else if cost := qty*mark + qty*mark*s.fee; cost > s.ledger.State().Cash {
		return canceled, nil
	}

	out := s.ledger.ApplyFill(s.clock, req.Symbol, req.Side, qty, mark, qty*mark*s.fee, "spot")
	if out.ClosedAll {
		s.stops.Clear(req.Symbol)
	}
	return domain.OrderResult{
		ID:          ulid.Make().String(),
		Symbol:      req.Symbol,
		Status:      domain.OrderStatusFilled,
		ExecutedQty: qty,
		AvgPrice:    mark,
	}, nil
}

// Cancel is a no-op: spot orders fill or cancel synchronously.
func (s *SpotExecutor) Cancel(context.Context, string, string) error { return nil }

func (s *SpotExecutor) GetState() domain.PortfolioState { return s.ledger.State() }

func (s *SpotExecutor) GetPosition(_ context.Context, symbol string) (*domain.Position, error) {
	pos := s.ledger.Position(symbol)
	if pos == nil {
		return nil, nil
	}
	cp := *pos
	cp.UnrealPnL = s.ledger.unrealized(pos)
	return &cp, nil
}

// MarkToMarket updates the mark to the close, enforces the protective
// stop against the full bar range and records an equity sample.
func (s *SpotExecutor) MarkToMarket(symbol string, candle domain.Candle) {
	s.clock = candle.Timestamp
	s.EnforceProtectiveStop(symbol, candle)
	s.ledger.MarkPrice(symbol, candle.Close)
	s.ledger.PushEquity(candle.Timestamp)
}

func (s *SpotExecutor) SetProtectiveStop(symbol string, side domain.PositionSide, price float64, neverLoosen bool) {
	s.stops.Set(symbol, side, price, neverLoosen)
}

func (s *SpotExecutor) ClearProtectiveStop(symbol string) { s.stops.Clear(symbol) }

// EnforceProtectiveStop sells the whole holding at the stop price when the
// bar trades at or below it. Gap opens below the stop fill at the open.
func (s *SpotExecutor) EnforceProtectiveStop(symbol string, candle domain.Candle) {
	pos := s.ledger.Position(symbol)
	stop, ok := s.stops.Get(symbol)
	if pos == nil || pos.Quantity <= 0 || !ok {
		return
	}
	if candle.Low > stop.Price {
		return
	}
	price := stop.Price
	if candle.Open < stop.Price {
		price = candle.Open
	}
	s.ledger.ApplyFill(candle.Timestamp, symbol, domain.Sell, pos.Quantity, price, pos.Quantity*price*s.fee, "stop")
	s.stops.Clear(symbol)
}

// IsTradingPaused always reports false: circuit breakers apply to the
// futures simulator only.
func (s *SpotExecutor) IsTradingPaused(int64) bool { return false }

func (s *SpotExecutor) PauseUntilNextDay(int64) {}

func (s *SpotExecutor) DayPnLPct(int64) float64 { return 0 }

func (s *SpotExecutor) Report() ports.Report {
	endEq := s.ledger.Equity()
	start := s.ledger.EquityStart()
	trades := s.ledger.Trades()
	return ports.Report{
		Summary: ports.ReportSummary{
			EquityStart:    start,
			EquityEnd:      endEq,
			ReturnPct:      (endEq - start) / start * 100,
			Trades:         len(trades),
			RealizedPnL:    s.ledger.RealizedPnL(),
			MaxDrawdownPct: s.ledger.MaxDrawdownPct(),
		},
		Trades:      trades,
		EquityCurve: s.ledger.EquityCurve(),
	}
}
