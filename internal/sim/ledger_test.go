package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

func TestLedgerOpenAndIncrease(t *testing.T) {
	l := NewLedger(1000, 10)
	l.MarkPrice("ETHUSDT", 100)

	out := l.ApplyFill(1, "ETHUSDT", domain.Buy, 1, 100, 0.04, "open")
	assert.Equal(t, FillOutcome{}, out)

	pos := l.Position("ETHUSDT")
	require.NotNil(t, pos)
	assert.Equal(t, domain.Long, pos.Side)
	assert.InDelta(t, 1.0, pos.Quantity, 1e-12)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-12)
	assert.Equal(t, int64(1), pos.OpenedAt)

	// Increase at a higher price: entry becomes the volume-weighted mean,
	// the open timestamp stays.
	l.ApplyFill(2, "ETHUSDT", domain.Buy, 1, 110, 0.044, "add")
	pos = l.Position("ETHUSDT")
	require.NotNil(t, pos)
	assert.InDelta(t, 2.0, pos.Quantity, 1e-12)
	assert.InDelta(t, 105.0, pos.EntryPrice, 1e-12)
	assert.Equal(t, int64(1), pos.OpenedAt)

	st := l.State()
	// Margin: (1*100 + 1*110) / 10.
	assert.InDelta(t, 21.0, st.MarginUsed, 1e-9)
	assert.InDelta(t, 1000-0.04-0.044, st.Cash, 1e-9)
}

func TestLedgerReduceRealizesPnL(t *testing.T) {
	l := NewLedger(1000, 10)
	l.MarkPrice("ETHUSDT", 100)
	l.ApplyFill(1, "ETHUSDT", domain.Buy, 2, 100, 0, "open")

	out := l.ApplyFill(2, "ETHUSDT", domain.Sell, 1, 110, 0, "reduce")
	assert.InDelta(t, 10.0, out.Realized, 1e-9)
	assert.False(t, out.ClosedAll)
	assert.False(t, out.Flipped)

	pos := l.Position("ETHUSDT")
	require.NotNil(t, pos)
	assert.InDelta(t, 1.0, pos.Quantity, 1e-12)
	// Entry of the remainder is unchanged.
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-12)
	assert.InDelta(t, 10.0, l.RealizedPnL(), 1e-9)
}

func TestLedgerCloseAll(t *testing.T) {
	l := NewLedger(1000, 10)
	l.MarkPrice("ETHUSDT", 100)
	l.ApplyFill(1, "ETHUSDT", domain.Sell, 1, 100, 0, "open short")

	out := l.ApplyFill(2, "ETHUSDT", domain.Buy, 1, 90, 0, "close")
	assert.True(t, out.ClosedAll)
	assert.InDelta(t, 10.0, out.Realized, 1e-9) // short gained 10 per unit
	assert.Nil(t, l.Position("ETHUSDT"))
	assert.InDelta(t, 0.0, l.State().MarginUsed, 1e-9)
}

func TestLedgerFlip(t *testing.T) {
	l := NewLedger(1000, 10)
	l.MarkPrice("ETHUSDT", 100)
	l.ApplyFill(1, "ETHUSDT", domain.Buy, 1, 100, 0, "open")

	// Sell 3 against a 1-lot long: realize on 1, flip short 2 at 120.
	out := l.ApplyFill(2, "ETHUSDT", domain.Sell, 3, 120, 0, "flip")
	assert.True(t, out.Flipped)
	assert.InDelta(t, 20.0, out.Realized, 1e-9)

	pos := l.Position("ETHUSDT")
	require.NotNil(t, pos)
	assert.Equal(t, domain.Short, pos.Side)
	assert.InDelta(t, -2.0, pos.Quantity, 1e-12)
	assert.InDelta(t, 120.0, pos.EntryPrice, 1e-12)
	assert.Equal(t, int64(2), pos.OpenedAt)
}

func TestLedgerEquityAndDrawdown(t *testing.T) {
	l := NewLedger(1000, 10)
	l.MarkPrice("ETHUSDT", 100)
	l.ApplyFill(1, "ETHUSDT", domain.Buy, 1, 100, 0, "open")

	l.MarkPrice("ETHUSDT", 110)
	assert.InDelta(t, 1010.0, l.Equity(), 1e-9)
	l.PushEquity(2)

	l.MarkPrice("ETHUSDT", 90)
	assert.InDelta(t, 990.0, l.Equity(), 1e-9)
	l.PushEquity(3)

	// Peak 1010, trough 990.
	assert.InDelta(t, (1010.0-990.0)/1010.0*100, l.MaxDrawdownPct(), 1e-9)

	curve := l.EquityCurve()
	require.Len(t, curve, 2)
	assert.Equal(t, int64(2), curve[0].Timestamp)
	assert.InDelta(t, 1010.0, curve[0].Equity, 1e-9)
}

func TestLedgerIgnoresNonPositiveQty(t *testing.T) {
	l := NewLedger(1000, 10)
	out := l.ApplyFill(1, "ETHUSDT", domain.Buy, 0, 100, 0, "noop")
	assert.Equal(t, FillOutcome{}, out)
	assert.Nil(t, l.Position("ETHUSDT"))
	assert.Empty(t, l.Trades())
}

func TestLedgerLeverageFloor(t *testing.T) {
	l := NewLedger(500, 0)
	l.ApplyFill(1, "ETHUSDT", domain.Buy, 1, 100, 0, "open")
	// Leverage below 1 falls back to 1.
	assert.InDelta(t, 100.0, l.State().MarginUsed, 1e-9)
}
