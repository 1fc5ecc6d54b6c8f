package domain

import "math"

// PositionSide represents the direction of an open position.
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// Position represents an open position in one symbol.
// Quantity is signed: >0 long, <0 short. A flat position is never stored
// as a zero record; it is removed the instant quantity reaches zero, and a
// direction flip replaces the position wholesale.
type Position struct {
	Symbol     string
	Side       PositionSide
	Quantity   float64 // Signed quantity
	EntryPrice float64 // Volume-weighted average across same-direction fills
	OpenedAt   int64   // Fill timestamp (ms) of the first (or flip) fill
	UnrealPnL  float64 // Unrealized PnL at the last mark; informational
}

// AbsQuantity returns the unsigned position size.
func (p *Position) AbsQuantity() float64 {
	return math.Abs(p.Quantity)
}

// IsLong reports whether the position is long.
func (p *Position) IsLong() bool {
	return p.Quantity > 0
}

// SideForQty returns the position side implied by a signed quantity.
func SideForQty(qty float64) PositionSide {
	if qty > 0 {
		return Long
	}
	return Short
}
