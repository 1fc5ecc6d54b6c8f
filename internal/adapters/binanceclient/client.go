// Package binanceclient adapts the Binance USDT-M futures API to the
// ports contracts: market data (REST history + WebSocket streams) and
// live order execution.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/ports"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client wraps the go-binance futures client and implements
// ports.MarketDataProvider.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

var _ ports.MarketDataProvider = (*Client)(nil)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for Binance client", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"baseURL": client.BaseURL, "testnet": cfg.UseTestnet,
	})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates Binance API errors into the ports sentinels.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1022, -2014, -2015: // Bad signature / API key problems
			mappedErr = ports.ErrAuthenticationFailed
		case -2010, -2022: // New order rejected / reduce-only rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2019, -3005, -3041: // Insufficient margin / balance / position
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrExchangeUnavailable
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s: %w", operation, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Ping")
	}
	return nil
}

// GetMarkPrice retrieves the current mark price for a symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetMarkPrice"
	tickers, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
	}
	price, err := strconv.ParseFloat(tickers[0].MarkPrice, 64)
	if err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", tickers[0].MarkPrice, err), op)
	}
	return price, nil
}

// GetAccountBalance retrieves the wallet balance for an asset (e.g. USDT).
func (c *Client) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAccountBalance"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	for _, bal := range account.Assets {
		if bal.Asset == asset {
			balance, err := strconv.ParseFloat(bal.WalletBalance, 64)
			if err != nil {
				return 0, c.handleError(ctx, fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.WalletBalance, asset, err), op)
			}
			return balance, nil
		}
	}
	return 0, c.handleError(ctx, fmt.Errorf("asset %s not found in account balance", asset), op)
}

// SetLeverage sets the leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// GetCandles retrieves up to limit most recent candles.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	op := "GetCandles"
	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := translateKline(k)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// GetCandlesRange fetches all candles between start and end, paging past
// the per-request limit.
func (c *Client) GetCandlesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Candle, error) {
	op := "GetCandlesRange"
	const maxLimit = 1500
	var all []domain.Candle
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			candle, err := translateKline(k)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline in range: %w", err), op)
			}
			all = append(all, candle)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime)
		if from.After(end) || len(klines) < maxLimit {
			break
		}
	}
	return all, nil
}

// StreamCandles starts a kline WebSocket stream with automatic
// reconnection and exponential backoff.
func (c *Client) StreamCandles(ctx context.Context, symbol, interval string,
	handler func(candle domain.Candle, isFinal bool),
	errHandler func(err error)) (<-chan struct{}, chan<- struct{}, error) {

	op := "StreamCandles"
	wsCtx, cancelWs := context.WithCancel(ctx)

	binanceHandler := func(event *futures.WsKlineEvent) {
		candle, err := translateWsKline(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": failed to translate WebSocket kline event")
			return
		}
		handler(candle, event.Kline.IsFinal)
	}
	binanceErrHandler := func(err error) {
		errHandler(c.handleError(wsCtx, err, op+" WebSocket"))
	}

	go func() {
		defer cancelWs()
		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				return
			default:
			}

			innerDone, innerStop, connectErr := futures.WsKlineServe(symbol, interval, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				c.handleError(wsCtx, connectErr, op+" connection attempt")
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": max reconnection attempts exceeded, giving up", map[string]interface{}{
						"symbol": symbol, "interval": interval, "maxAttempts": c.maxReconnectAttempts,
					})
					return
				}
				delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established", map[string]interface{}{
				"symbol": symbol, "interval": interval,
			})
			attempt = 0

			select {
			case <-innerDone:
				c.logger.Warn(wsCtx, op+": WebSocket closed unexpectedly, reconnecting", map[string]interface{}{
					"symbol": symbol, "interval": interval,
				})
			case <-wsCtx.Done():
				select {
				case innerStop <- struct{}{}:
				default:
				}
				return
			}
		}
	}()

	done := make(chan struct{})
	stop := make(chan struct{})

	go func() {
		select {
		case <-stop:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()
	go func() {
		<-wsCtx.Done()
		close(done)
	}()

	return done, stop, nil
}

func translateKline(k *futures.Kline) (domain.Candle, error) {
	if k == nil {
		return domain.Candle{}, errors.New("received nil kline")
	}
	return parseCandle(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
}

func translateWsKline(event *futures.WsKlineEvent) (domain.Candle, error) {
	if event == nil {
		return domain.Candle{}, errors.New("received nil kline event")
	}
	k := event.Kline
	return parseCandle(k.StartTime, k.Open, k.High, k.Low, k.Close, k.Volume)
}

func parseCandle(ts int64, open, high, low, cls, vol string) (domain.Candle, error) {
	c := domain.Candle{Timestamp: ts}
	fields := []struct {
		name string
		dst  *float64
		raw  string
	}{
		{"open", &c.Open, open},
		{"high", &c.High, high},
		{"low", &c.Low, low},
		{"close", &c.Close, cls},
		{"volume", &c.Volume, vol},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return c, fmt.Errorf("parsing %s price '%s': %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return c, nil
}
