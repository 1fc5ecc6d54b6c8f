package ports

import (
	"context"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// Report summarises an executor run: headline figures plus the full trade
// log and equity curve. Calling OrderExecutor.Report twice without new
// fills returns identical reports.
type Report struct {
	Summary     ReportSummary        `json:"summary"`
	Trades      []domain.Trade       `json:"trades"`
	EquityCurve []domain.EquityPoint `json:"equityCurve"`
}

// ReportSummary holds the headline run figures.
type ReportSummary struct {
	EquityStart    float64 `json:"equityStart"`
	EquityEnd      float64 `json:"equityEnd"`
	ReturnPct      float64 `json:"retPct"`
	Trades         int     `json:"trades"`
	RealizedPnL    float64 `json:"realizedPnL"`
	MaxDrawdownPct float64 `json:"maxDD"`
}

// OrderExecutor is the execution contract consumed by the risk governor.
// It is implemented by the in-memory bar simulator and by the live
// exchange adapter; the governor depends only on this interface.
//
// Callers must mark a symbol (MarkToMarket) before placing orders for it;
// placing against an unmarked symbol is a programming error and fails with
// ErrNoMarkPrice.
type OrderExecutor interface {
	// Place submits an order. A CANCELED result with zero executed quantity
	// is normal control flow (trading paused, unsatisfiable reduce-only);
	// an error return indicates a contract violation or I/O failure.
	Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)

	// Cancel removes a pending order by ID. Cancelling an unknown or
	// already-filled order is a no-op.
	Cancel(ctx context.Context, id, symbol string) error

	// GetState returns the current portfolio snapshot.
	GetState() domain.PortfolioState

	// GetPosition returns the open position for a symbol, or nil when flat.
	GetPosition(ctx context.Context, symbol string) (*domain.Position, error)

	// MarkToMarket advances the executor clock to the candle timestamp,
	// resolves pending orders and protective stops against the bar's OHLC,
	// and records an equity sample at the close.
	MarkToMarket(symbol string, candle domain.Candle)

	// SetProtectiveStop installs or ratchets the per-symbol protective stop.
	SetProtectiveStop(symbol string, side domain.PositionSide, price float64, neverLoosen bool)

	// ClearProtectiveStop removes the protective stop for a symbol.
	ClearProtectiveStop(symbol string)

	// EnforceProtectiveStop checks the stop against a bar outside the
	// regular MarkToMarket pass. Implementations that resolve stops inside
	// MarkToMarket may treat this as a no-op.
	EnforceProtectiveStop(symbol string, candle domain.Candle)

	// IsTradingPaused reports whether order placement is rejected at ts.
	IsTradingPaused(ts int64) bool

	// PauseUntilNextDay rejects new orders until the next UTC midnight
	// after ts. Pending orders already queued are not retroactively
	// canceled.
	PauseUntilNextDay(ts int64)

	// DayPnLPct returns the interday PnL percentage if the executor tracks
	// it; simulator variants return zero and leave the bookkeeping to the
	// risk governor.
	DayPnLPct(ts int64) float64

	// Report returns the accumulated run report.
	Report() Report
}
