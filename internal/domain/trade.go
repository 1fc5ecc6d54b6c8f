package domain

// Trade represents a single executed fill. The trade log is append-only
// and is the system of record for post-hoc analytics.
type Trade struct {
	Timestamp   int64     `csv:"timestamp" json:"ts"`
	Symbol      string    `csv:"symbol" json:"symbol"`
	Side        OrderSide `csv:"side" json:"side"`
	Quantity    float64   `csv:"quantity" json:"qty"`
	Price       float64   `csv:"price" json:"price"`
	Fee         float64   `csv:"fee" json:"fee"`
	Note        string    `csv:"note,omitempty" json:"note,omitempty"`
	RealizedPnL float64   `csv:"pnl" json:"pnlRealized,omitempty"`
}

// EquityPoint is one sample of the account equity curve.
type EquityPoint struct {
	Timestamp int64   `json:"ts"`
	Equity    float64 `json:"equity"`
}

// PortfolioState is a snapshot of the account exposed to strategies and
// the risk governor.
type PortfolioState struct {
	Equity     float64
	Cash       float64
	MarginUsed float64
	FreeMargin float64
}
