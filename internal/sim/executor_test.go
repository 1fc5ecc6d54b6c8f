package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/ports"
)

type mockLogger struct {
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

const sym = "ETHUSDT"

func flatBar(ts int64, price float64) domain.Candle {
	return domain.Candle{Timestamp: ts, Open: price, High: price, Low: price, Close: price}
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(DefaultConfig(), &mockLogger{})
}

func TestPlaceWithoutMarkFails(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.Place(context.Background(), domain.OrderRequest{
		Symbol: sym, Side: domain.Buy, Type: domain.OrderTypeMarket, Quantity: 1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNoMarkPrice)
}

func TestMarketFillsAtNextOpenWithTakerFees(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	e.MarkToMarket(sym, flatBar(1, 100))
	res, err := e.Place(ctx, domain.OrderRequest{
		Symbol: sym, Side: domain.Buy, Type: domain.OrderTypeMarket, Quantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusNew, res.Status)
	// Nothing fills until the next bar arrives.
	assert.Nil(t, e.Ledger().Position(sym))

	e.MarkToMarket(sym, flatBar(2, 100))
	pos, err := e.GetPosition(ctx, sym)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.InDelta(t, 1.0, pos.Quantity, 1e-12)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-12)

	_, err = e.Place(ctx, domain.OrderRequest{
		Symbol: sym, Side: domain.Sell, Type: domain.OrderTypeMarket, Quantity: 1, ReduceOnly: true,
	})
	require.NoError(t, err)
	e.MarkToMarket(sym, flatBar(3, 110))

	// Round trip: +10 gross, fees 1*100*0.0004 + 1*110*0.0004 = 0.084.
	assert.Nil(t, e.Ledger().Position(sym))
	assert.InDelta(t, 1009.916, e.GetState().Equity, 1e-9)

	trades := e.Ledger().Trades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 0.04, trades[0].Fee, 1e-12)
	assert.InDelta(t, 0.044, trades[1].Fee, 1e-12)
}

func TestImmediateModeFillsAtMark(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExecMode = ExecModeImmediate
	e := NewExecutor(cfg, &mockLogger{})

	e.MarkToMarket(sym, flatBar(1, 100))
	res, err := e.Place(context.Background(), domain.OrderRequest{
		Symbol: sym, Side: domain.Buy, Type: domain.OrderTypeMarket, Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
	assert.InDelta(t, 100.0, res.AvgPrice, 1e-12)
	assert.InDelta(t, 2.0, res.ExecutedQty, 1e-12)
	require.NotNil(t, e.Ledger().Position(sym))
}

func TestLimitFillsAsMaker(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	e.MarkToMarket(sym, flatBar(1, 100))
	_, err := e.Place(ctx, domain.OrderRequest{
		Symbol: sym, Side: domain.Buy, Type: domain.OrderTypeLimit, Quantity: 1, Price: 92,
	})
	require.NoError(t, err)

	// The bar never reaches 92: the order keeps resting.
	e.MarkToMarket(sym, domain.Candle{Timestamp: 2, Open: 100, High: 101, Low: 95, Close: 98})
	assert.Nil(t, e.Ledger().Position(sym))

	// Low trades through the limit: fill at the limit price, maker fee.
	e.MarkToMarket(sym, domain.Candle{Timestamp: 3, Open: 98, High: 99, Low: 90, Close: 91})
	pos := e.Ledger().Position(sym)
	require.NotNil(t, pos)
	assert.InDelta(t, 92.0, pos.EntryPrice, 1e-12)

	trades := e.Ledger().Trades()
	require.Len(t, trades, 1)
	assert.InDelta(t, 1*92*0.0002, trades[0].Fee, 1e-12)
}

func TestStopMarketTriggersAsTaker(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	e.MarkToMarket(sym, flatBar(1, 100))
	_, err := e.Place(ctx, domain.OrderRequest{
		Symbol: sym, Side: domain.Buy, Type: domain.OrderTypeStopMarket, Quantity: 1, StopPrice: 105,
	})
	require.NoError(t, err)

	e.MarkToMarket(sym, domain.Candle{Timestamp: 2, Open: 101, High: 106, Low: 100, Close: 104})
	pos := e.Ledger().Position(sym)
	require.NotNil(t, pos)
	assert.InDelta(t, 105.0, pos.EntryPrice, 1e-12)

	trades := e.Ledger().Trades()
	require.Len(t, trades, 1)
	assert.InDelta(t, 1*105*0.0004, trades[0].Fee, 1e-12)
}

func TestProtectiveStopIntrabar(t *testing.T) {
	e := newTestExecutor(t)
	e.MarkToMarket(sym, flatBar(1, 100))
	e.Ledger().ApplyFill(1, sym, domain.Buy, 1, 100, 0, "open")
	e.SetProtectiveStop(sym, domain.Long, 95, true)

	// Bar opens above the stop and trades through it: exit at the stop.
	e.MarkToMarket(sym, domain.Candle{Timestamp: 2, Open: 98, High: 99, Low: 94, Close: 96})
	assert.Nil(t, e.Ledger().Position(sym))

	trades := e.Ledger().Trades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 95.0, trades[1].Price, 1e-12)
	_, armed := e.stops.Get(sym)
	assert.False(t, armed)
}

func TestProtectiveStopGapThrough(t *testing.T) {
	e := newTestExecutor(t)
	e.MarkToMarket(sym, flatBar(1, 100))
	e.Ledger().ApplyFill(1, sym, domain.Buy, 1, 100, 0, "open")
	e.SetProtectiveStop(sym, domain.Long, 95, true)

	// Bar opens below the stop: the fill is the open, not the stop.
	e.MarkToMarket(sym, domain.Candle{Timestamp: 2, Open: 90, High: 92, Low: 89, Close: 91})
	trades := e.Ledger().Trades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 90.0, trades[1].Price, 1e-12)
}

func TestProtectiveStopShortGap(t *testing.T) {
	e := newTestExecutor(t)
	e.MarkToMarket(sym, flatBar(1, 100))
	e.Ledger().ApplyFill(1, sym, domain.Sell, 1, 100, 0, "open short")
	e.SetProtectiveStop(sym, domain.Short, 105, true)

	e.MarkToMarket(sym, domain.Candle{Timestamp: 2, Open: 110, High: 112, Low: 108, Close: 111})
	trades := e.Ledger().Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, domain.Buy, trades[1].Side)
	assert.InDelta(t, 110.0, trades[1].Price, 1e-12)
}

func TestStaleStopSideIsCleared(t *testing.T) {
	e := newTestExecutor(t)
	e.MarkToMarket(sym, flatBar(1, 100))
	e.Ledger().ApplyFill(1, sym, domain.Sell, 1, 100, 0, "open short")
	// Stop left over from a long position must not fire against a short.
	e.SetProtectiveStop(sym, domain.Long, 95, true)

	e.MarkToMarket(sym, domain.Candle{Timestamp: 2, Open: 96, High: 97, Low: 94, Close: 95})
	require.NotNil(t, e.Ledger().Position(sym))
	_, armed := e.stops.Get(sym)
	assert.False(t, armed)
}

func TestFlipClearsProtectiveStop(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	e.MarkToMarket(sym, flatBar(1, 100))
	e.Ledger().ApplyFill(1, sym, domain.Buy, 1, 100, 0, "open")
	e.SetProtectiveStop(sym, domain.Long, 10, true) // far away, never triggers

	_, err := e.Place(ctx, domain.OrderRequest{
		Symbol: sym, Side: domain.Sell, Type: domain.OrderTypeMarket, Quantity: 3,
	})
	require.NoError(t, err)
	e.MarkToMarket(sym, flatBar(2, 100))

	pos := e.Ledger().Position(sym)
	require.NotNil(t, pos)
	assert.InDelta(t, -2.0, pos.Quantity, 1e-12)
	_, armed := e.stops.Get(sym)
	assert.False(t, armed)
}

func TestReduceOnlyClipsToPosition(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	e.MarkToMarket(sym, flatBar(1, 100))
	e.Ledger().ApplyFill(1, sym, domain.Buy, 1, 100, 0, "open")

	_, err := e.Place(ctx, domain.OrderRequest{
		Symbol: sym, Side: domain.Sell, Type: domain.OrderTypeMarket, Quantity: 5, ReduceOnly: true,
	})
	require.NoError(t, err)
	e.MarkToMarket(sym, flatBar(2, 100))
	assert.Nil(t, e.Ledger().Position(sym))

	// Reduce-only against a flat book is canceled outright.
	res, err := e.Place(ctx, domain.OrderRequest{
		Symbol: sym, Side: domain.Sell, Type: domain.OrderTypeMarket, Quantity: 1, ReduceOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, res.Status)
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	e.MarkToMarket(sym, flatBar(1, 100))
	res, err := e.Place(ctx, domain.OrderRequest{
		Symbol: sym, Side: domain.Buy, Type: domain.OrderTypeLimit, Quantity: 1, Price: 99,
	})
	require.NoError(t, err)
	require.NoError(t, e.Cancel(ctx, res.ID, sym))

	e.MarkToMarket(sym, domain.Candle{Timestamp: 2, Open: 100, High: 100, Low: 95, Close: 96})
	assert.Nil(t, e.Ledger().Position(sym))
}

func TestLiquidationAfterMark(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartCash = 100
	log := &mockLogger{}
	e := NewExecutor(cfg, log)

	e.MarkToMarket(sym, flatBar(1, 100))
	e.Ledger().ApplyFill(1, sym, domain.Buy, 10, 100, 0, "open")

	// Mark drops to 90: equity 0 no longer covers 900 * 0.005 maintenance.
	e.MarkToMarket(sym, flatBar(2, 90))
	assert.Nil(t, e.Ledger().Position(sym))

	trades := e.Ledger().Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "liquidation", trades[1].Note)
	assert.InDelta(t, 90.0, trades[1].Price, 1e-12)

	// 100 - 100 loss - 0.36 taker fee - 0.45 liquidation penalty.
	assert.InDelta(t, -0.81, e.GetState().Equity, 1e-9)
	assert.NotEmpty(t, log.warnMsgs)
}

func TestPauseUntilNextDay(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	ts := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC).UnixMilli()
	e.MarkToMarket(sym, flatBar(ts, 100))
	e.PauseUntilNextDay(ts)
	assert.True(t, e.IsTradingPaused(ts))

	res, err := e.Place(ctx, domain.OrderRequest{
		Symbol: sym, Side: domain.Buy, Type: domain.OrderTypeMarket, Quantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, res.Status)

	// Pause lifts with the first bar of the next UTC day.
	next := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC).UnixMilli()
	e.MarkToMarket(sym, flatBar(next, 100))
	assert.False(t, e.IsTradingPaused(next))
}

func TestReportIsIdempotent(t *testing.T) {
	e := newTestExecutor(t)
	e.MarkToMarket(sym, flatBar(1, 100))
	e.Ledger().ApplyFill(1, sym, domain.Buy, 1, 100, 0.04, "open")
	e.MarkToMarket(sym, flatBar(2, 110))

	r1 := e.Report()
	r2 := e.Report()
	assert.Equal(t, r1.Summary, r2.Summary)
	assert.Equal(t, len(r1.Trades), len(r2.Trades))
	assert.InDelta(t, 1000.0, r1.Summary.EquityStart, 1e-12)
	assert.InDelta(t, 1009.96, r1.Summary.EquityEnd, 1e-9)
	assert.Equal(t, 1, r1.Summary.Trades)
}
