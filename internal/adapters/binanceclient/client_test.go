package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{APIKey: "k", SecretKey: "s", UseTestnet: true, Logger: &mockLogger{}})
	require.NoError(t, err)
	return c
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(Config{APIKey: "k", SecretKey: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestHandleErrorMapsAPICodes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		code int64
		want error
	}{
		{-1003, ports.ErrRateLimited},
		{-1022, ports.ErrAuthenticationFailed},
		{-2014, ports.ErrAuthenticationFailed},
		{-2015, ports.ErrAuthenticationFailed},
		{-2010, ports.ErrOrderPlacementFailed},
		{-2022, ports.ErrOrderPlacementFailed},
		{-2013, ports.ErrOrderNotFound},
		{-2019, ports.ErrInsufficientFunds},
		{-3005, ports.ErrInsufficientFunds},
		{-3041, ports.ErrInsufficientFunds},
		{-9999, ports.ErrExchangeUnavailable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("code_%d", tt.code), func(t *testing.T) {
			apiErr := &common.APIError{Code: tt.code, Message: "api error"}
			err := c.handleError(ctx, apiErr, "TestOp")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, apiErr)
		})
	}
}

func TestHandleErrorNetworkStrings(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	err := c.handleError(ctx, errors.New("dial tcp: connection refused"), "Ping")
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)

	err = c.handleError(ctx, errors.New("read: connection reset by peer"), "Ping")
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)

	err = c.handleError(ctx, errors.New("something else entirely"), "Ping")
	assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
}

func TestHandleErrorPreservesContextErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	err := c.handleError(ctx, context.Canceled, "GetCandles")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ports.ErrExchangeUnavailable)
}

func TestHandleErrorNil(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.handleError(context.Background(), nil, "Noop"))
}

func TestFormatQty(t *testing.T) {
	assert.Equal(t, "0.5", formatQty(0.5))
	assert.Equal(t, "10", formatQty(10))
	assert.Equal(t, "0.001", formatQty(0.001))
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, 0.0, maxDrawdown(nil), 1e-12)

	curve := []domain.EquityPoint{
		{Timestamp: 1, Equity: 1000},
		{Timestamp: 2, Equity: 1200},
		{Timestamp: 3, Equity: 900},
		{Timestamp: 4, Equity: 1100},
	}
	assert.InDelta(t, (1200.0-900.0)/1200.0*100, maxDrawdown(curve), 1e-9)
}
