package domain

// SignalAction is the decision a strategy communicates for one bar.
type SignalAction string

const (
	SignalBuy   SignalAction = "buy"
	SignalSell  SignalAction = "sell"
	SignalClose SignalAction = "close"
	SignalHold  SignalAction = "hold"
)

// Signal is the output of a strategy evaluation.
type Signal struct {
	Action     SignalAction
	Reason     string
	Confidence float64 // Optional, 0..1; zero means "not provided"
}

// Hold returns a hold signal with an optional reason.
func Hold(reason string) Signal {
	return Signal{Action: SignalHold, Reason: reason}
}

// Trend direction labels used in the market context.
type Trend string

const (
	TrendUp    Trend = "up"
	TrendDown  Trend = "down"
	TrendRange Trend = "range"
)

// Regime classifies the prevailing market behaviour.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeVolatile Regime = "volatile"
)

// MarketContext carries pre-computed indicator state handed to strategies
// so they do not recompute shared reference levels per bar.
type MarketContext struct {
	TrendHTF Trend
	TrendLTF Trend
	VolATR   float64 // ATR as a fraction of the last close
	Regime   Regime
	EMA      map[int]float64 // EMA value by period, finite entries only
}
