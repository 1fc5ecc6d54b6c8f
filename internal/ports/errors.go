package ports

import "errors"

// Standard application-level errors. Adapters and core components wrap
// underlying failures with these so callers can branch on errors.Is.
var (
	// Configuration errors: fatal for the request, surfaced immediately.
	ErrConfigurationError   = errors.New("invalid or missing configuration")
	ErrStrategyNotFound     = errors.New("unknown strategy name")
	ErrInvalidTimeRange     = errors.New("invalid time range (from must precede to)")
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

	// Execution-contract violations: programming errors, fail loudly.
	// Placing an order before the symbol has ever been marked means the
	// caller skipped MarkToMarket.
	ErrNoMarkPrice = errors.New("no mark price for symbol before place")

	// Exchange / live-I/O errors.
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderNotFilled       = errors.New("order not filled after retries")

	// Database errors.
	ErrNotFound       = errors.New("resource not found")
	ErrDuplicateEntry = errors.New("database record already exists")
)
