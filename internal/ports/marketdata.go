package ports

import (
	"context"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// MarketDataProvider supplies candle history and live candle streams.
// Candles are returned ordered by non-decreasing timestamp; gaps are left
// as-is, never interpolated.
type MarketDataProvider interface {
	// GetCandles retrieves up to limit most recent candles for the symbol
	// and interval.
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)

	// StreamCandles starts a live candle stream. handler receives every
	// candle event (isFinal marks a closed bar); errHandler receives
	// transport errors. The returned stop channel terminates the stream,
	// done is closed when the stream has fully shut down.
	StreamCandles(ctx context.Context, symbol, interval string,
		handler func(candle domain.Candle, isFinal bool),
		errHandler func(err error)) (done <-chan struct{}, stop chan<- struct{}, err error)
}
