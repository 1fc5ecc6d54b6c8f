package ports

import (
	"context"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// TradeRepository persists executed fills for the live service.
type TradeRepository interface {
	// SaveTrade appends a fill record and returns its assigned ID.
	SaveTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindBySymbol retrieves the most recent fills for a symbol, newest
	// first, up to limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// CountTodayBySymbol counts fills recorded today (UTC) for a symbol.
	CountTodayBySymbol(ctx context.Context, symbol string) (int, error)
}

// EquityRepository persists equity curve samples.
type EquityRepository interface {
	// SaveEquityPoint appends one equity sample.
	SaveEquityPoint(ctx context.Context, point domain.EquityPoint) error
	// EquityCurve returns all samples ordered by timestamp.
	EquityCurve(ctx context.Context) ([]domain.EquityPoint, error)
}
