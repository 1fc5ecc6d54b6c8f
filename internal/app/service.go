// Package app wires the live trading service: it loads warm-up history,
// subscribes to the candle stream and feeds closed bars through the risk
// governor against the live executor.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/saygoodluck/trading-bot/config"
	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/engine"
	"github.com/saygoodluck/trading-bot/internal/ports"
)

// warmupHistoryBars is how much history is preloaded before going live so
// indicators are settled from the first streamed bar.
const warmupHistoryBars = 500

// TradingService orchestrates the live trading loop.
type TradingService struct {
	cfg      *config.Config
	logger   ports.Logger
	market   ports.MarketDataProvider
	executor ports.OrderExecutor
	strategy ports.Strategy

	// Bars are processed strictly one at a time; the stream handler runs
	// on the WebSocket goroutine.
	mu       sync.Mutex
	governor *engine.Engine
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	market ports.MarketDataProvider,
	executor ports.OrderExecutor,
	strat ports.Strategy,
) (*TradingService, error) {
	if cfg == nil || logger == nil || market == nil || executor == nil || strat == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for TradingService", ports.ErrConfigurationError)
	}
	return &TradingService{
		cfg:      cfg,
		logger:   logger,
		market:   market,
		executor: executor,
		strategy: strat,
		governor: engine.New(cfg.Risk, cfg.Symbol, cfg.Timeframe, strat, executor, logger),
	}, nil
}

// Start runs the live loop until the context is canceled or a shutdown
// signal arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service", map[string]interface{}{
		"symbol":    s.cfg.Symbol,
		"timeframe": s.cfg.Timeframe,
		"strategy":  s.strategy.Name(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	if err := s.preloadHistory(ctx); err != nil {
		return err
	}

	state := s.executor.GetState()
	if state.FreeMargin < s.cfg.MinAvailableBalance {
		return fmt.Errorf("%w: available balance %.2f below required minimum %.2f",
			ports.ErrInsufficientFunds, state.FreeMargin, s.cfg.MinAvailableBalance)
	}

	done, stop, err := s.market.StreamCandles(ctx, s.cfg.Symbol, s.cfg.Timeframe,
		s.onCandle,
		func(err error) {
			s.logger.Error(ctx, err, "Candle stream error")
		})
	if err != nil {
		return fmt.Errorf("starting candle stream: %w", err)
	}

	select {
	case <-ctx.Done():
		select {
		case stop <- struct{}{}:
		default:
		}
		<-done
	case <-done:
		// Stream gave up (max reconnects); nothing left to drive the loop.
		return fmt.Errorf("%w: candle stream terminated", ports.ErrConnectionFailed)
	}

	s.logger.Info(context.Background(), "Trading service stopped")
	return nil
}

// preloadHistory replays recent closed candles through the governor so its
// indicator state is warm before live bars arrive.
func (s *TradingService) preloadHistory(ctx context.Context) error {
	candles, err := s.market.GetCandles(ctx, s.cfg.Symbol, s.cfg.Timeframe, warmupHistoryBars)
	if err != nil {
		return fmt.Errorf("loading warm-up history: %w", err)
	}
	// The newest candle may still be forming; the stream delivers it again
	// when final.
	if len(candles) > 0 {
		candles = candles[:len(candles)-1]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, candle := range candles {
		if err := s.governor.OnBar(ctx, candle); err != nil {
			return fmt.Errorf("replaying warm-up bar %d: %w", candle.Timestamp, err)
		}
	}
	s.logger.Info(ctx, "Warm-up history loaded", map[string]interface{}{"bars": len(candles)})
	return nil
}

// onCandle handles one stream event; only closed bars reach the governor.
func (s *TradingService) onCandle(candle domain.Candle, isFinal bool) {
	if !isFinal {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	if err := s.governor.OnBar(ctx, candle); err != nil {
		s.logger.Error(ctx, err, "Bar processing failed", map[string]interface{}{
			"symbol": s.cfg.Symbol, "ts": candle.Timestamp,
		})
	}
}
