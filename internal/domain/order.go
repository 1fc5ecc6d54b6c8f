package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the opposing order side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign returns +1 for BUY and -1 for SELL.
func (s OrderSide) Sign() float64 {
	if s == Buy {
		return 1
	}
	return -1
}

// OrderType represents the execution type of an order.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
)

// OrderStatus represents the lifecycle state of a submitted order.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// OrderRequest describes an order to be placed with an executor.
// It is immutable once submitted; executors may internally clip the
// quantity when ReduceOnly exceeds the open position.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   float64 // Always positive; direction comes from Side
	Price      float64 // Limit price (LIMIT only)
	StopPrice  float64 // Trigger price (STOP_MARKET / TAKE_PROFIT)
	ReduceOnly bool    // Only shrink, never grow or reverse, the position
}

// OrderResult reports the outcome of placing an order.
type OrderResult struct {
	ID          string
	Symbol      string
	Status      OrderStatus
	ExecutedQty float64
	AvgPrice    float64 // Average fill price; zero when nothing executed
}
