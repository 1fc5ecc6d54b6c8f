package sim

import (
	"math"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// Ledger holds the pure portfolio state of a simulated account: cash,
// margin in use, realized PnL, open positions, last marks, and the
// append-only trade log and equity curve. It performs no I/O and knows
// nothing about bars or order types; the executor drives it fill by fill.
type Ledger struct {
	leverage float64

	cash        float64
	equityStart float64
	marginUsed  float64
	realizedPnL float64

	lastPrice map[string]float64
	positions map[string]*domain.Position

	trades      []domain.Trade
	equityCurve []domain.EquityPoint

	ddPeak float64
	ddMax  float64
}

// FillOutcome describes what a fill did to the position it touched.
type FillOutcome struct {
	Realized  float64 // PnL realized on the closed portion, fee-exclusive
	ClosedAll bool    // The position reached zero
	Flipped   bool    // The position reversed direction
}

// NewLedger creates a ledger with the given starting cash and leverage.
func NewLedger(startCash float64, leverage int) *Ledger {
	if leverage <= 0 {
		leverage = 1
	}
	return &Ledger{
		leverage:    float64(leverage),
		cash:        startCash,
		equityStart: startCash,
		ddPeak:      startCash,
		lastPrice:   make(map[string]float64),
		positions:   make(map[string]*domain.Position),
	}
}

// MarkPrice records the latest mark for a symbol.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	l.lastPrice[symbol] = price
}

// LastPrice returns the last recorded mark for a symbol.
func (l *Ledger) LastPrice(symbol string) (float64, bool) {
	p, ok := l.lastPrice[symbol]
	return p, ok
}

// Position returns the open position for a symbol, or nil when flat.
func (l *Ledger) Position(symbol string) *domain.Position {
	return l.positions[symbol]
}

// unrealized returns the unrealized PnL of one position at its last mark.
func (l *Ledger) unrealized(p *domain.Position) float64 {
	mark, ok := l.lastPrice[p.Symbol]
	if !ok {
		return 0
	}
	return (mark - p.EntryPrice) * p.Quantity
}

// Equity returns cash plus the unrealized PnL of all open positions.
func (l *Ledger) Equity() float64 {
	eq := l.cash
	for _, p := range l.positions {
		eq += l.unrealized(p)
	}
	return eq
}

// State returns a portfolio snapshot.
func (l *Ledger) State() domain.PortfolioState {
	eq := l.Equity()
	return domain.PortfolioState{
		Equity:     eq,
		Cash:       l.cash,
		MarginUsed: l.marginUsed,
		FreeMargin: eq - l.marginUsed,
	}
}

// ApplyFill mutates the ledger for one executed fill and appends a trade
// record. Same-direction fills increase the position and recompute the
// volume-weighted entry; opposite fills realize PnL on the closed portion,
// release its margin, and on a flip replace the position wholesale with
// the fill price as the new entry.
func (l *Ledger) ApplyFill(ts int64, symbol string, side domain.OrderSide, qty, price, fee float64, note string) FillOutcome {
	var out FillOutcome
	if qty <= 0 {
		return out
	}

	signed := qty * side.Sign()
	pos := l.positions[symbol]

	if pos == nil || pos.Quantity == 0 || sameSign(pos.Quantity, signed) {
		// Open or increase in the same direction.
		oldQty := 0.0
		oldEntry := 0.0
		openedAt := ts
		if pos != nil {
			oldQty = pos.Quantity
			oldEntry = pos.EntryPrice
			openedAt = pos.OpenedAt
		}
		newQty := oldQty + signed
		newEntry := price
		if oldQty != 0 {
			newEntry = (oldEntry*math.Abs(oldQty) + price*math.Abs(signed)) / math.Abs(newQty)
		}
		l.positions[symbol] = &domain.Position{
			Symbol:     symbol,
			Side:       domain.SideForQty(newQty),
			Quantity:   newQty,
			EntryPrice: newEntry,
			OpenedAt:   openedAt,
		}
		l.marginUsed += math.Abs(signed) * price / l.leverage
		l.cash -= fee
	} else {
		// Reduce or flip.
		closingSigned := math.Min(qty, math.Abs(pos.Quantity)) * sign(pos.Quantity)
		realized := (price - pos.EntryPrice) * closingSigned

		l.realizedPnL += realized
		l.cash += realized
		l.cash -= fee
		l.marginUsed -= math.Abs(closingSigned) * price / l.leverage
		out.Realized = realized

		remaining := pos.Quantity + signed
		switch {
		case remaining == 0:
			delete(l.positions, symbol)
			out.ClosedAll = true
		case sameSign(remaining, pos.Quantity):
			pos.Quantity = remaining
		default:
			// Flip: the old position is gone, the residual opens fresh at
			// the fill price.
			l.positions[symbol] = &domain.Position{
				Symbol:     symbol,
				Side:       domain.SideForQty(remaining),
				Quantity:   remaining,
				EntryPrice: price,
				OpenedAt:   ts,
			}
			l.marginUsed += math.Abs(remaining) * price / l.leverage
			out.Flipped = true
		}
	}

	l.trades = append(l.trades, domain.Trade{
		Timestamp:   ts,
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		Fee:         fee,
		Note:        note,
		RealizedPnL: out.Realized,
	})
	l.trackDrawdown()
	return out
}

// DebitFee subtracts a fee that is not part of a regular fill, such as a
// liquidation penalty.
func (l *Ledger) DebitFee(fee float64) {
	l.cash -= fee
}

// PushEquity appends one equity curve sample at ts.
func (l *Ledger) PushEquity(ts int64) {
	l.equityCurve = append(l.equityCurve, domain.EquityPoint{Timestamp: ts, Equity: l.Equity()})
	l.trackDrawdown()
}

// trackDrawdown updates the incremental peak/max drawdown figures. The
// maximum is never recomputed from scratch.
func (l *Ledger) trackDrawdown() {
	eq := l.Equity()
	if eq > l.ddPeak {
		l.ddPeak = eq
	}
	dd := (l.ddPeak - eq) / math.Max(l.ddPeak, 1)
	if dd > l.ddMax {
		l.ddMax = dd
	}
}

// MaxDrawdownPct returns the maximum drawdown seen so far, in percent.
func (l *Ledger) MaxDrawdownPct() float64 {
	return l.ddMax * 100
}

// EquityStart returns the starting cash of the ledger.
func (l *Ledger) EquityStart() float64 { return l.equityStart }

// RealizedPnL returns cumulative realized PnL, fee-exclusive.
func (l *Ledger) RealizedPnL() float64 { return l.realizedPnL }

// Trades returns a copy of the append-only trade log.
func (l *Ledger) Trades() []domain.Trade {
	out := make([]domain.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// EquityCurve returns a copy of the equity curve samples.
func (l *Ledger) EquityCurve() []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(l.equityCurve))
	copy(out, l.equityCurve)
	return out
}

func sign(x float64) float64 {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
