package ports

import (
	"context"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// StrategyContext is the full view of the world a strategy may use for one
// evaluation. Strategies must treat it as read-only.
type StrategyContext struct {
	Symbol    string
	Timeframe string
	Candles   []domain.Candle // Full history up to and including the current bar
	Market    domain.MarketContext
	Portfolio domain.PortfolioState
	Position  *domain.Position // nil when flat
}

// Strategy is the signal-generation contract consumed by the risk governor.
// The governor treats Evaluate as a pure function of the context; a
// strategy may be stateless or keep internal state between calls, but it
// must never place orders itself.
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// RequiredDataPoints returns the minimum number of candles needed
	// before Evaluate produces meaningful signals.
	RequiredDataPoints() int

	// Evaluate inspects the context and returns a signal. Insufficient
	// history must yield a hold signal, never an error.
	Evaluate(ctx context.Context, sctx *StrategyContext) domain.Signal
}
