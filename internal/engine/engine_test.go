package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saygoodluck/trading-bot/internal/domain"
	"github.com/saygoodluck/trading-bot/internal/ports"
)

const sym = "ETHUSDT"

type mockLogger struct {
	warnMsgs []string
	infoMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type stopCall struct {
	side        domain.PositionSide
	price       float64
	neverLoosen bool
}

// mockExecutor records calls and serves scripted portfolio state.
type mockExecutor struct {
	state       domain.PortfolioState
	position    *domain.Position
	placed      []domain.OrderRequest
	placeStatus domain.OrderStatus
	paused      bool
	pauseCalls  int
	stopCalls   []stopCall
	stopClears  int
	marked      []domain.Candle
}

func newMockExecutor(equity float64) *mockExecutor {
	return &mockExecutor{
		state:       domain.PortfolioState{Equity: equity, Cash: equity, FreeMargin: equity},
		placeStatus: domain.OrderStatusFilled,
	}
}

func (m *mockExecutor) Place(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	m.placed = append(m.placed, req)
	return domain.OrderResult{ID: "order-1", Symbol: req.Symbol, Status: m.placeStatus}, nil
}

func (m *mockExecutor) Cancel(context.Context, string, string) error { return nil }

func (m *mockExecutor) GetState() domain.PortfolioState { return m.state }

func (m *mockExecutor) GetPosition(context.Context, string) (*domain.Position, error) {
	return m.position, nil
}

func (m *mockExecutor) MarkToMarket(_ string, candle domain.Candle) {
	m.marked = append(m.marked, candle)
}

func (m *mockExecutor) SetProtectiveStop(_ string, side domain.PositionSide, price float64, neverLoosen bool) {
	m.stopCalls = append(m.stopCalls, stopCall{side: side, price: price, neverLoosen: neverLoosen})
}

func (m *mockExecutor) ClearProtectiveStop(string) { m.stopClears++ }

func (m *mockExecutor) EnforceProtectiveStop(string, domain.Candle) {}

func (m *mockExecutor) IsTradingPaused(int64) bool { return m.paused }

func (m *mockExecutor) PauseUntilNextDay(int64) {
	m.paused = true
	m.pauseCalls++
}

func (m *mockExecutor) DayPnLPct(int64) float64 { return 0 }

func (m *mockExecutor) Report() ports.Report { return ports.Report{} }

var _ ports.OrderExecutor = (*mockExecutor)(nil)

// scriptStrategy returns a fixed signal on every evaluation.
type scriptStrategy struct {
	required int
	signal   domain.Signal
}

func (s *scriptStrategy) Name() string            { return "script" }
func (s *scriptStrategy) RequiredDataPoints() int { return s.required }
func (s *scriptStrategy) Evaluate(context.Context, *ports.StrategyContext) domain.Signal {
	return s.signal
}

var dayStart = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func barAt(i int, price float64) domain.Candle {
	ts := dayStart.Add(time.Duration(i) * time.Minute).UnixMilli()
	return domain.Candle{Timestamp: ts, Open: price, High: price, Low: price, Close: price, Volume: 1}
}

// plainConfig disables the trend filter and the hard stop so the warm-up
// is exactly the 50-bar floor.
func plainConfig() Config {
	cfg := DefaultConfig()
	cfg.DynamicRiskScaling = false
	cfg.TrendFilter.Enabled = false
	cfg.HardStop.Enabled = false
	cfg.HardStop.ATRPeriod = 0
	return cfg
}

func feedBars(t *testing.T, e *Engine, from, to int, price float64) {
	t.Helper()
	for i := from; i < to; i++ {
		require.NoError(t, e.OnBar(context.Background(), barAt(i, price)))
	}
}

func TestNoEntriesDuringWarmup(t *testing.T) {
	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	e := New(plainConfig(), sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 49, 100)
	assert.Empty(t, exec.placed)
	// Bars are still marked to market while warming up.
	assert.Len(t, exec.marked, 49)

	feedBars(t, e, 49, 50, 100)
	require.Len(t, exec.placed, 1)
	assert.Equal(t, domain.Buy, exec.placed[0].Side)
	assert.Equal(t, domain.OrderTypeMarket, exec.placed[0].Type)
}

func TestPositionSizeUsesStopDistanceFloor(t *testing.T) {
	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	e := New(plainConfig(), sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 50, 100)
	require.Len(t, exec.placed, 1)
	// Flat bars give zero ATR, so the distance floors at 0.1% of price:
	// 1000 * 0.01 / 0.1 = 100.
	assert.InDelta(t, 100.0, exec.placed[0].Quantity, 1e-9)
}

func TestDynamicRiskScalingShrinksSize(t *testing.T) {
	cfg := plainConfig()
	cfg.DynamicRiskScaling = true
	cfg.DailyLossStopPct = 2
	cfg.MaxTradesPerDay = 4

	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	e := New(cfg, sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 50, 100)
	require.Len(t, exec.placed, 1)
	// Budget 2% over 4 remaining trades caps risk at 0.5%: qty 50.
	assert.InDelta(t, 50.0, exec.placed[0].Quantity, 1e-9)
}

func TestDailyLossStopPausesTrading(t *testing.T) {
	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	log := &mockLogger{}
	e := New(plainConfig(), sym, "1m", strat, exec, log)

	feedBars(t, e, 0, 49, 100)
	// Down 2.5% on the day before the warm-up completes.
	exec.state.Equity = 975
	feedBars(t, e, 49, 55, 100)

	assert.Empty(t, exec.placed)
	assert.Equal(t, 1, exec.pauseCalls)
	assert.NotEmpty(t, log.warnMsgs)
}

func TestDailyProfitStopPausesTrading(t *testing.T) {
	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	e := New(plainConfig(), sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 49, 100)
	exec.state.Equity = 1025
	feedBars(t, e, 49, 55, 100)

	assert.Empty(t, exec.placed)
	assert.Equal(t, 1, exec.pauseCalls)
}

func TestTradeCapPausesAfterLimit(t *testing.T) {
	cfg := plainConfig()
	cfg.MaxTradesPerDay = 1

	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	e := New(cfg, sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 51, 100)
	// One entry went out, then the cap tripped the breaker.
	assert.Len(t, exec.placed, 1)
	assert.Equal(t, 1, exec.pauseCalls)
}

func TestSameSideEntrySuppressed(t *testing.T) {
	exec := newMockExecutor(1000)
	exec.position = &domain.Position{Symbol: sym, Side: domain.Long, Quantity: 2, EntryPrice: 100}
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	e := New(plainConfig(), sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 52, 100)
	assert.Empty(t, exec.placed)
}

func TestOppositeEntryFoldsPositionIntoFlip(t *testing.T) {
	exec := newMockExecutor(1000)
	exec.position = &domain.Position{Symbol: sym, Side: domain.Short, Quantity: -2, EntryPrice: 100}
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	e := New(plainConfig(), sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 50, 100)
	require.Len(t, exec.placed, 1)
	// Sized 100 plus the 2 lots needed to flatten the short.
	assert.InDelta(t, 102.0, exec.placed[0].Quantity, 1e-9)
	assert.False(t, exec.placed[0].ReduceOnly)
}

func TestCloseSignalFlattensReduceOnly(t *testing.T) {
	exec := newMockExecutor(1000)
	exec.position = &domain.Position{Symbol: sym, Side: domain.Long, Quantity: 3, EntryPrice: 100}
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalClose, Reason: "exit"}}
	e := New(plainConfig(), sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 50, 100)
	require.Len(t, exec.placed, 1)
	req := exec.placed[0]
	assert.Equal(t, domain.Sell, req.Side)
	assert.True(t, req.ReduceOnly)
	assert.InDelta(t, 3.0, req.Quantity, 1e-9)
}

func TestCloseSignalIgnoredWhenFlat(t *testing.T) {
	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalClose}}
	e := New(plainConfig(), sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 52, 100)
	assert.Empty(t, exec.placed)
}

func TestTrendFilterBlocksCounterTrendEntry(t *testing.T) {
	cfg := plainConfig()
	cfg.TrendFilter = TrendFilterConfig{Enabled: true, Kind: TrendFilterSMA, Period: 5, Bias: "both"}

	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	e := New(cfg, sym, "1m", strat, exec, &mockLogger{})

	// Declining closes keep the last price below its SMA: buys are blocked.
	for i := 0; i < 60; i++ {
		price := 200 - float64(i)
		require.NoError(t, e.OnBar(context.Background(), barAt(i, price)))
	}
	assert.Empty(t, exec.placed)

	// A sell in the same tape is with the trend.
	strat.signal = domain.Signal{Action: domain.SignalSell}
	require.NoError(t, e.OnBar(context.Background(), barAt(60, 140)))
	require.Len(t, exec.placed, 1)
	assert.Equal(t, domain.Sell, exec.placed[0].Side)
}

func TestTrendFilterBias(t *testing.T) {
	cfg := plainConfig()
	cfg.TrendFilter = TrendFilterConfig{Enabled: true, Kind: TrendFilterSMA, Period: 5, Bias: "long"}

	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalSell}}
	e := New(cfg, sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 55, 100)
	assert.Empty(t, exec.placed)
}

func TestTrendFilterBlocksWhenReferenceUnavailable(t *testing.T) {
	cfg := plainConfig()
	cfg.TrendFilter = TrendFilterConfig{Enabled: true, Kind: TrendFilterSMA, Period: 5, Bias: "both"}

	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Hold("")}
	e := New(cfg, sym, "1m", strat, exec, &mockLogger{})

	// No candles buffered yet, so the moving average is NaN; an unusable
	// reference must block the entry, not allow it.
	assert.False(t, e.trendAllows(domain.Buy, 100))
	assert.False(t, e.trendAllows(domain.Sell, 100))
}

func TestStopMaintenanceRatchetsUnderPosition(t *testing.T) {
	cfg := plainConfig()
	cfg.HardStop = HardStopConfig{Enabled: true, ATRPeriod: 14, ATRMult: 2.5, NeverLoosen: true}

	exec := newMockExecutor(1000)
	exec.position = &domain.Position{Symbol: sym, Side: domain.Long, Quantity: 1, EntryPrice: 100}
	strat := &scriptStrategy{required: 1, signal: domain.Hold("")}
	e := New(cfg, sym, "1m", strat, exec, &mockLogger{})

	// Constant 2-point bar range keeps the ATR pinned at 2.
	for i := 0; i < 52; i++ {
		ts := dayStart.Add(time.Duration(i) * time.Minute).UnixMilli()
		c := domain.Candle{Timestamp: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
		require.NoError(t, e.OnBar(context.Background(), c))
	}

	require.NotEmpty(t, exec.stopCalls)
	last := exec.stopCalls[len(exec.stopCalls)-1]
	assert.Equal(t, domain.Long, last.side)
	// Entry 100 minus 2.5 * ATR(2).
	assert.InDelta(t, 95.0, last.price, 1e-9)
	assert.True(t, last.neverLoosen)
}

func TestStopClearedWhenFlat(t *testing.T) {
	cfg := plainConfig()
	cfg.HardStop = HardStopConfig{Enabled: true, ATRPeriod: 14, ATRMult: 2.5, NeverLoosen: true}

	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Hold("")}
	e := New(cfg, sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 51, 100)
	assert.Empty(t, exec.stopCalls)
	assert.Greater(t, exec.stopClears, 0)
}

func TestDayRollResetsBreaker(t *testing.T) {
	exec := newMockExecutor(1000)
	strat := &scriptStrategy{required: 1, signal: domain.Signal{Action: domain.SignalBuy}}
	e := New(plainConfig(), sym, "1m", strat, exec, &mockLogger{})

	feedBars(t, e, 0, 49, 100)
	exec.state.Equity = 975
	feedBars(t, e, 49, 52, 100)
	require.Equal(t, 1, exec.pauseCalls)
	require.Empty(t, exec.placed)

	// Next UTC day: counters reset against the new day-open equity and
	// the executor-side pause has lapsed.
	exec.paused = false
	nextDay := dayStart.Add(24 * time.Hour).UnixMilli()
	c := domain.Candle{Timestamp: nextDay, Open: 100, High: 100, Low: 100, Close: 100, Volume: 1}
	require.NoError(t, e.OnBar(context.Background(), c))
	assert.Len(t, exec.placed, 1)
	assert.Equal(t, 1, exec.pauseCalls)
}
