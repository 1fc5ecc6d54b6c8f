// Package analytics turns a raw trade log and equity curve into round
// trips and performance metrics.
package analytics

import (
	"math"
	"sort"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// RoundTrip is one complete position lifecycle: flat to flat. A direction
// flip closes the old trip and opens the new one at the same timestamp.
type RoundTrip struct {
	Symbol     string              `json:"symbol" csv:"symbol"`
	Side       domain.PositionSide `json:"side" csv:"side"`
	EntryTs    int64               `json:"entryTs" csv:"entry_ts"`
	ExitTs     int64               `json:"exitTs" csv:"exit_ts"`
	EntryPrice float64             `json:"entryPrice" csv:"entry_price"`
	ExitPrice  float64             `json:"exitPrice" csv:"exit_price"`
	Quantity   float64             `json:"qty" csv:"qty"`
	PnL        float64             `json:"pnl" csv:"pnl"`
	Fees       float64             `json:"fees" csv:"fees"`
	Bars       int                 `json:"bars" csv:"bars"`
}

// normalizeTs lifts second-resolution timestamps to milliseconds. Anything
// below 1e11 is amounts to a date before 1973 in ms, so it must be seconds.
func normalizeTs(ts int64) int64 {
	if ts < 1e11 {
		return ts * 1000
	}
	return ts
}

// tripBuilder accumulates one in-flight round trip.
type tripBuilder struct {
	symbol   string
	side     domain.PositionSide
	entryTs  int64
	entryQty float64 // total opened quantity
	entryVWP float64 // volume-weighted entry price
	exitQty  float64
	exitVWP  float64
}

func (b *tripBuilder) addEntry(qty, price float64) {
	total := b.entryQty + qty
	b.entryVWP = (b.entryVWP*b.entryQty + price*qty) / total
	b.entryQty = total
}

func (b *tripBuilder) addExit(qty, price float64) {
	total := b.exitQty + qty
	b.exitVWP = (b.exitVWP*b.exitQty + price*qty) / total
	b.exitQty = total
}

func (b *tripBuilder) finish(exitTs int64) RoundTrip {
	return RoundTrip{
		Symbol:     b.symbol,
		Side:       b.side,
		EntryTs:    b.entryTs,
		ExitTs:     exitTs,
		EntryPrice: b.entryVWP,
		ExitPrice:  b.exitVWP,
		Quantity:   b.entryQty,
	}
}

// BuildRoundTrips replays the trade log chronologically and cuts it into
// flat-to-flat round trips per symbol. Fill timestamps in seconds are
// normalized to milliseconds first; fills with a non-positive quantity or
// a non-finite price are dropped.
func BuildRoundTrips(trades []domain.Trade) []RoundTrip {
	fills := sanitizeFills(trades)

	var trips []RoundTrip
	open := map[string]*tripBuilder{} // in-flight trip per symbol
	pos := map[string]float64{}       // signed position per symbol

	for _, f := range fills {
		signed := f.Quantity * f.Side.Sign()
		prev := pos[f.Symbol]
		next := prev + signed
		if math.Abs(next) < 1e-12 {
			next = 0
		}
		pos[f.Symbol] = next

		switch {
		case prev == 0:
			b := &tripBuilder{symbol: f.Symbol, side: domain.SideForQty(next), entryTs: f.Timestamp}
			b.addEntry(f.Quantity, f.Price)
			open[f.Symbol] = b

		case sameDirection(prev, signed):
			open[f.Symbol].addEntry(f.Quantity, f.Price)

		case next == 0:
			b := open[f.Symbol]
			b.addExit(f.Quantity, f.Price)
			trips = append(trips, b.finish(f.Timestamp))
			delete(open, f.Symbol)

		case sameDirection(prev, next):
			open[f.Symbol].addExit(f.Quantity, f.Price)

		default:
			// Flip: the fill both closes the old trip and opens the new one.
			b := open[f.Symbol]
			b.addExit(math.Abs(prev), f.Price)
			trips = append(trips, b.finish(f.Timestamp))

			nb := &tripBuilder{symbol: f.Symbol, side: domain.SideForQty(next), entryTs: f.Timestamp}
			nb.addEntry(math.Abs(next), f.Price)
			open[f.Symbol] = nb
		}
	}

	// A still-open trip at the end of the log is not a round trip.
	return trips
}

func sameDirection(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// sanitizeFills copies the log, drops unusable fills and returns it sorted
// by normalized timestamp.
func sanitizeFills(trades []domain.Trade) []domain.Trade {
	fills := make([]domain.Trade, 0, len(trades))
	for _, f := range trades {
		if f.Quantity <= 0 || math.IsNaN(f.Price) || math.IsInf(f.Price, 0) {
			continue
		}
		f.Timestamp = normalizeTs(f.Timestamp)
		fills = append(fills, f)
	}
	sort.SliceStable(fills, func(i, j int) bool { return fills[i].Timestamp < fills[j].Timestamp })
	return fills
}

// AttachPnL computes each trip's PnL by a single chronological FIFO lot
// replay of the full fill log, net of fees. A flip fill is split between
// the trip it closes and the trip it opens, pro-rata by quantity. Bars
// are counted per trip against the candle series.
func AttachPnL(trips []RoundTrip, trades []domain.Trade, candles []domain.Candle) []RoundTrip {
	fills := sanitizeFills(trades)

	out := make([]RoundTrip, len(trips))
	copy(out, trips)

	// Chronological trip order per symbol.
	tripIdx := map[string][]int{}
	for i, t := range out {
		tripIdx[t.Symbol] = append(tripIdx[t.Symbol], i)
	}

	type lot struct{ qty, price float64 }
	type state struct {
		lots []lot
		sign float64 // +1 long lots, -1 short lots
		trip int     // index into tripIdx[symbol]
	}
	states := map[string]*state{}

	for _, f := range fills {
		st := states[f.Symbol]
		if st == nil {
			st = &state{}
			states[f.Symbol] = st
		}
		order := tripIdx[f.Symbol]
		if st.trip >= len(order) {
			continue // fills past the last completed trip
		}
		cur := &out[order[st.trip]]

		signed := f.Quantity * f.Side.Sign()
		feePerQty := 0.0
		if f.Quantity > 0 {
			feePerQty = f.Fee / f.Quantity
		}

		if len(st.lots) == 0 || sameDirection(signed, st.sign) {
			st.sign = sign(signed)
			st.lots = append(st.lots, lot{qty: f.Quantity, price: f.Price})
			cur.Fees += f.Fee
			cur.PnL -= f.Fee
			continue
		}

		// Closing fill: consume lots front-first.
		remaining := f.Quantity
		for remaining > 1e-12 && len(st.lots) > 0 {
			l := &st.lots[0]
			matched := math.Min(remaining, l.qty)
			cur.PnL += (f.Price - l.price) * matched * st.sign
			cur.PnL -= matched * feePerQty
			cur.Fees += matched * feePerQty
			l.qty -= matched
			remaining -= matched
			if l.qty <= 1e-12 {
				st.lots = st.lots[1:]
			}
		}
		if len(st.lots) == 0 {
			st.trip++
		}
		if remaining > 1e-12 && st.trip < len(order) {
			// The flip remainder opens the next trip.
			next := &out[order[st.trip]]
			st.sign = sign(signed)
			st.lots = append(st.lots, lot{qty: remaining, price: f.Price})
			next.Fees += remaining * feePerQty
			next.PnL -= remaining * feePerQty
		}
	}

	for i := range out {
		out[i].Bars = countBars(candles, out[i].EntryTs, out[i].ExitTs)
	}
	return out
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// countBars returns the number of candles from the entry bar to the exit
// bar inclusive, using binary search over the candle timestamps.
func countBars(candles []domain.Candle, entryTs, exitTs int64) int {
	if len(candles) == 0 {
		return 0
	}
	lo := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp >= entryTs })
	hi := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp > exitTs })
	if hi <= lo {
		return 1
	}
	return hi - lo
}
